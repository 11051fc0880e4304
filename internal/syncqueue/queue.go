// Package syncqueue is the durable, priority-ordered queue of mutations that
// have not yet been acknowledged by the remote progress service.
package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/asteroid-belt/prepsync/internal/log"
	"github.com/asteroid-belt/prepsync/internal/models"
)

// ErrMaxRetriesExceeded is passed to OnDrop when an item is abandoned.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// DefaultMaxAttempts is used when an item does not set its own ceiling.
const DefaultMaxAttempts = 3

// Store is the persistence the queue needs. *db.DB satisfies it.
type Store interface {
	InsertQueueItem(ctx context.Context, item *models.SyncQueueItem) error
	ListQueueItems(ctx context.Context) ([]models.SyncQueueItem, error)
	UpdateQueueItem(ctx context.Context, item *models.SyncQueueItem) error
	DeleteQueueItem(ctx context.Context, id uint) error
	QueueSummary(ctx context.Context) (int64, time.Time, error)
}

// Handler applies one item to the remote service. A nil return
// acknowledges the item.
type Handler func(ctx context.Context, item models.SyncQueueItem) error

// Config tunes a Queue.
type Config struct {
	// MaxAttempts caps retries per item (default 3).
	MaxAttempts int

	// RatePerSecond paces handler calls during a drain. Zero disables pacing.
	RatePerSecond float64

	// Burst is the limiter burst size (default 1).
	Burst int

	// OnDrop is called after an item is removed for exceeding MaxAttempts.
	OnDrop func(item models.SyncQueueItem, err error)

	// Logger for queue activity (default: global logger).
	Logger *log.Logger

	// Now is the clock used to timestamp new items (default: time.Now).
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   DefaultMaxAttempts,
		RatePerSecond: 10,
		Burst:         5,
	}
}

// Status summarizes the queue.
type Status struct {
	Count               int
	OldestItemTimestamp time.Time
}

// DrainResult reports what a drain pass did.
type DrainResult struct {
	Attempted int
	Succeeded int
	Failed    int
	Dropped   int
	// Skipped is true when another drain was already in flight.
	Skipped bool
}

// Queue is a FIFO-with-priority queue persisted in the local store.
type Queue struct {
	store   Store
	cfg     Config
	limiter *rate.Limiter

	mu        sync.Mutex
	draining  bool
	dropHooks []func(models.SyncQueueItem, error)
}

// New creates a queue over store.
func New(store Store, cfg Config) *Queue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	q := &Queue{
		store:   store,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
	if cfg.OnDrop != nil {
		q.dropHooks = append(q.dropHooks, cfg.OnDrop)
	}
	return q
}

// AddDropHook registers fn to be called, after OnDrop, for every dropped item.
func (q *Queue) AddDropHook(fn func(item models.SyncQueueItem, err error)) {
	q.mu.Lock()
	q.dropHooks = append(q.dropHooks, fn)
	q.mu.Unlock()
}

// Enqueue appends a mutation with zero attempts.
func (q *Queue) Enqueue(ctx context.Context, typ, operation string, data []byte, priority int) (*models.SyncQueueItem, error) {
	item := &models.SyncQueueItem{
		Type:        typ,
		Operation:   operation,
		Data:        string(data),
		Priority:    priority,
		Timestamp:   q.cfg.Now(),
		Attempts:    0,
		MaxAttempts: q.cfg.MaxAttempts,
	}
	if err := q.store.InsertQueueItem(ctx, item); err != nil {
		return nil, fmt.Errorf("enqueue %s/%s: %w", typ, operation, err)
	}
	q.cfg.Logger.Debugf("queued %s/%s (id=%d, priority=%d)", typ, operation, item.ID, priority)
	return item, nil
}

// Draining reports whether a drain pass is in flight.
func (q *Queue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// Drain applies every queued item in (priority desc, timestamp asc) order.
// Items enqueued while the pass runs wait for the next pass. A concurrent
// call returns immediately with Skipped set.
func (q *Queue) Drain(ctx context.Context, handler Handler) (DrainResult, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return DrainResult{Skipped: true}, nil
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	var res DrainResult

	items, err := q.store.ListQueueItems(ctx)
	if err != nil {
		return res, err
	}

	for _, item := range items {
		if err := q.limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("drain paused: %w", err)
		}

		res.Attempted++
		herr := handler(ctx, item)
		if herr == nil {
			if err := q.store.DeleteQueueItem(ctx, item.ID); err != nil {
				return res, err
			}
			res.Succeeded++
			continue
		}

		res.Failed++
		item.Attempts++
		item.LastError = herr.Error()
		if item.MaxAttempts <= 0 {
			item.MaxAttempts = q.cfg.MaxAttempts
		}

		if item.Exhausted() {
			if err := q.store.DeleteQueueItem(ctx, item.ID); err != nil {
				return res, err
			}
			res.Dropped++
			q.cfg.Logger.Warnf("dropping sync item %d (%s/%s) after %d attempts: %v",
				item.ID, item.Type, item.Operation, item.Attempts, herr)
			q.mu.Lock()
			hooks := slices.Clone(q.dropHooks)
			q.mu.Unlock()
			dropErr := fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, herr)
			for _, fn := range hooks {
				fn(item, dropErr)
			}
			continue
		}

		if err := q.store.UpdateQueueItem(ctx, &item); err != nil {
			return res, err
		}
		q.cfg.Logger.Debugf("sync item %d failed (attempt %d/%d): %v",
			item.ID, item.Attempts, item.MaxAttempts, herr)
	}

	return res, nil
}

// Status returns the number of pending items and the oldest timestamp.
func (q *Queue) Status(ctx context.Context) (Status, error) {
	count, oldest, err := q.store.QueueSummary(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{Count: int(count), OldestItemTimestamp: oldest}, nil
}

// List returns pending items in drain order.
func (q *Queue) List(ctx context.Context) ([]models.SyncQueueItem, error) {
	return q.store.ListQueueItems(ctx)
}
