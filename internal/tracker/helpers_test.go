package tracker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/prepsync/internal/conflict"
	"github.com/asteroid-belt/prepsync/internal/db"
	"github.com/asteroid-belt/prepsync/internal/log"
	"github.com/asteroid-belt/prepsync/internal/models"
	"github.com/asteroid-belt/prepsync/internal/notify"
	"github.com/asteroid-belt/prepsync/internal/syncqueue"
)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeService is an in-memory ProgressService with failure injection.
type fakeService struct {
	mu       sync.Mutex
	progress map[string]*models.ProgressDocument
	settings map[string]*models.SettingsDocument

	fetchErr error
	pushErr  error

	progressPushes int
	settingsPushes int

	// onFetch, when set, runs at the start of FetchProgress.
	onFetch func()
}

func newFakeService() *fakeService {
	return &fakeService{
		progress: make(map[string]*models.ProgressDocument),
		settings: make(map[string]*models.SettingsDocument),
	}
}

func (s *fakeService) FetchProgress(_ context.Context, userID string) (*models.ProgressDocument, error) {
	if s.onFetch != nil {
		s.onFetch()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.progress[userID].Clone(), nil
}

func (s *fakeService) PushProgress(_ context.Context, userID string, doc *models.ProgressDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return s.pushErr
	}
	s.progressPushes++
	s.progress[userID] = doc.Clone()
	return nil
}

func (s *fakeService) FetchSettings(_ context.Context, userID string) (*models.SettingsDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.settings[userID].Clone(), nil
}

func (s *fakeService) PushSettings(_ context.Context, userID string, doc *models.SettingsDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pushErr != nil {
		return s.pushErr
	}
	s.settingsPushes++
	s.settings[userID] = doc.Clone()
	return nil
}

func (s *fakeService) Ping(context.Context) error { return nil }

func (s *fakeService) setErrors(fetch, push error) {
	s.mu.Lock()
	s.fetchErr, s.pushErr = fetch, push
	s.mu.Unlock()
}

func (s *fakeService) pushes() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressPushes, s.settingsPushes
}

// eventLog records notifications.
type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Notify(e notify.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) ofType(typ notify.EventType) []notify.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []notify.Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	tracker *Tracker
	store   Store
	queue   *syncqueue.Queue
	svc     *fakeService
	clock   *testClock
	events  *eventLog
}

type harnessOption func(*Deps)

func withStore(s Store) harnessOption {
	return func(d *Deps) { d.Store = s }
}

func withoutService() harnessOption {
	return func(d *Deps) { d.Service = nil }
}

func newHarness(t *testing.T, online bool, opts ...harnessOption) *harness {
	t.Helper()

	mem, err := db.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	clock := newTestClock()
	svc := newFakeService()
	events := &eventLog{}

	queue := syncqueue.New(mem, syncqueue.Config{Logger: log.Discard, Now: clock.Now})
	deps := Deps{
		Store:    mem,
		Queue:    queue,
		Resolver: conflict.New(conflict.Config{Logger: log.Discard, Now: clock.Now}),
		Service:  svc,
		Notifier: events,
		Logger:   log.Discard,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	tr, err := New(deps, Options{Online: online, Now: clock.Now})
	require.NoError(t, err)

	return &harness{tracker: tr, store: deps.Store, queue: queue, svc: svc, clock: clock, events: events}
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	require.NoError(t, h.tracker.Initialize(context.Background(), "u1"))
}

func (h *harness) snapshot(t *testing.T) *models.ProgressDocument {
	t.Helper()
	doc, err := h.tracker.Snapshot()
	require.NoError(t, err)
	return doc
}

func (h *harness) queued(t *testing.T) []models.SyncQueueItem {
	t.Helper()
	items, err := h.queue.List(context.Background())
	require.NoError(t, err)
	return items
}
