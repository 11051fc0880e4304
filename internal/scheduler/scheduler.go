// Package scheduler triggers periodic sync passes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/asteroid-belt/prepsync/internal/log"
)

// DefaultInterval is how often auto-sync runs when no interval is configured.
const DefaultInterval = 5 * time.Minute

// SyncFunc runs one sync pass.
type SyncFunc func(ctx context.Context) error

// AutoSync runs a SyncFunc on a fixed interval until stopped.
type AutoSync struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	run       SyncFunc
	logger    *log.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	runs    int
}

// New creates an auto-sync trigger. A non-positive interval selects
// DefaultInterval.
func New(interval time.Duration, run SyncFunc, logger *log.Logger) *AutoSync {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	// At most one pass runs at a time.
	s.SingletonModeAll()
	return &AutoSync{
		scheduler: s,
		interval:  interval,
		run:       run,
		logger:    logger,
	}
}

// Start schedules the first run immediately and then every interval.
// The context bounds every run; cancelling it stops future runs.
func (a *AutoSync) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("auto-sync already started")
	}

	a.ctx, a.cancel = context.WithCancel(ctx)
	if _, err := a.scheduler.Every(a.interval).Do(a.tick); err != nil {
		a.cancel()
		return fmt.Errorf("schedule auto-sync: %w", err)
	}
	a.scheduler.StartAsync()
	a.started = true
	a.logger.Debugf("auto-sync every %s", a.interval)
	return nil
}

// Stop cancels the in-flight run, if any, and stops the scheduler.
func (a *AutoSync) Stop() {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return
	}
	a.started = false
	a.cancel()
	a.mu.Unlock()

	// Not under mu: Stop waits for a running tick, which takes mu.
	a.scheduler.Stop()
}

// Runs returns how many passes have been triggered.
func (a *AutoSync) Runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

func (a *AutoSync) tick() {
	a.mu.Lock()
	ctx := a.ctx
	a.runs++
	a.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if err := a.run(ctx); err != nil {
		a.logger.Warnf("auto-sync: %v", err)
	}
}
