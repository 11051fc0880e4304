// Package tracker owns the user's in-memory progress and settings documents.
// It records study activity, keeps streaks, statistics and achievements
// current, persists every change locally and drives the sync pass against
// the remote progress service.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asteroid-belt/prepsync/internal/conflict"
	"github.com/asteroid-belt/prepsync/internal/log"
	"github.com/asteroid-belt/prepsync/internal/models"
	"github.com/asteroid-belt/prepsync/internal/notify"
	"github.com/asteroid-belt/prepsync/internal/remote"
	"github.com/asteroid-belt/prepsync/internal/syncqueue"
)

// ErrNotInitialized is returned by every operation before Initialize.
var ErrNotInitialized = errors.New("tracker not initialized")

// DefaultTrackDays is the number of days in a study track.
const DefaultTrackDays = 30

// Store is the local persistence the tracker needs. *db.DB satisfies it.
type Store interface {
	GetProgress(ctx context.Context, userID string) (*models.ProgressDocument, error)
	PutProgress(ctx context.Context, doc *models.ProgressDocument) error
	GetSettings(ctx context.Context, userID string) (*models.SettingsDocument, error)
	PutSettings(ctx context.Context, doc *models.SettingsDocument) error
	GetOrCreateLocalUserID() string
	GetSyncMeta(key string) (string, error)
	SetSyncMeta(key, value string) error
	ClearOfflineData(ctx context.Context) error
}

// Deps are the collaborators a Tracker is built from.
type Deps struct {
	Store    Store
	Queue    *syncqueue.Queue
	Resolver *conflict.Resolver

	// Service is the remote copy. Nil keeps the tracker offline-only.
	Service remote.ProgressService

	Notifier notify.Notifier
	Logger   *log.Logger
}

// Options tune a Tracker.
type Options struct {
	// TrackDays is the length of a track for completion rate (default 30).
	TrackDays int

	// Online is the initial connectivity state.
	Online bool

	// Degraded reports that Store is an in-memory fallback.
	Degraded bool

	Now func() time.Time
}

// Tracker is safe for concurrent use. Mutations are serialized; a sync pass
// runs at most once at a time.
type Tracker struct {
	store    Store
	queue    *syncqueue.Queue
	resolver *conflict.Resolver
	service  remote.ProgressService
	notifier notify.Notifier
	logger   *log.Logger

	trackDays int
	now       func() time.Time
	degraded  bool

	mu          sync.Mutex
	initialized bool
	online      bool
	doc         *models.ProgressDocument
	settings    *models.SettingsDocument

	// progressBase is the document pending progress conflicts were
	// detected against.
	progressBase *models.ProgressDocument

	syncMu sync.Mutex
	inSync bool
}

// New creates a tracker. Call Initialize before using it.
func New(deps Deps, opts Options) (*Tracker, error) {
	if deps.Store == nil {
		return nil, errors.New("tracker needs a store")
	}
	if deps.Queue == nil {
		return nil, errors.New("tracker needs a sync queue")
	}
	if deps.Resolver == nil {
		deps.Resolver = conflict.New(conflict.Config{Logger: deps.Logger})
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Noop()
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if opts.TrackDays <= 0 {
		opts.TrackDays = DefaultTrackDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	t := &Tracker{
		store:     deps.Store,
		queue:     deps.Queue,
		resolver:  deps.Resolver,
		service:   deps.Service,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		trackDays: opts.TrackDays,
		now:       opts.Now,
		degraded:  opts.Degraded,
		online:    opts.Online,
	}
	t.queue.AddDropHook(t.itemDropped)
	return t, nil
}

// Initialize loads the user's documents from the store, creating empty ones
// on first use. An empty userID selects the anonymous local user.
func (t *Tracker) Initialize(ctx context.Context, userID string) error {
	if userID == "" {
		userID = t.store.GetOrCreateLocalUserID()
	}
	now := t.now()

	doc, err := t.store.GetProgress(ctx, userID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	if doc == nil {
		doc = models.NewProgressDocument(userID, now)
		t.recompute(doc)
		if err := t.store.PutProgress(ctx, doc); err != nil {
			return fmt.Errorf("create progress: %w", err)
		}
	}

	settings, err := t.store.GetSettings(ctx, userID)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if settings == nil {
		settings = models.NewSettingsDocument(userID, now)
		if err := t.store.PutSettings(ctx, settings); err != nil {
			return fmt.Errorf("create settings: %w", err)
		}
	}

	t.mu.Lock()
	t.doc = doc
	t.settings = settings
	t.initialized = true
	t.mu.Unlock()

	t.logger.Debugf("tracker ready for %s", userID)
	if t.degraded {
		t.logger.Warnf("persistent storage unavailable, progress is kept in memory for this session")
		t.notify(notify.Event{Type: notify.EventSyncStatusChanged, UserID: userID, Status: notify.StatusDegraded,
			Message: "progress will not survive a restart"})
	}
	return nil
}

// UserID returns the user the tracker was initialized for.
func (t *Tracker) UserID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doc == nil {
		return ""
	}
	return t.doc.UserID
}

// Snapshot returns a copy of the current progress document.
func (t *Tracker) Snapshot() (*models.ProgressDocument, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return nil, ErrNotInitialized
	}
	return t.doc.Clone(), nil
}

// Settings returns a copy of the current settings document.
func (t *Tracker) Settings() (*models.SettingsDocument, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return nil, ErrNotInitialized
	}
	return t.settings.Clone(), nil
}

// Degraded reports whether progress is only kept in memory.
func (t *Tracker) Degraded() bool {
	return t.degraded
}

// Online reports the current connectivity state.
func (t *Tracker) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online && t.service != nil
}

// PendingConflicts returns conflicts waiting for a user choice.
func (t *Tracker) PendingConflicts() []models.Conflict {
	return t.resolver.Pending()
}

// QueueStatus summarizes mutations not yet acknowledged by the service.
func (t *Tracker) QueueStatus(ctx context.Context) (syncqueue.Status, error) {
	return t.queue.Status(ctx)
}

// ClearOfflineData deletes cached progress, settings and queued mutations and
// starts over with empty documents for the same user.
func (t *Tracker) ClearOfflineData(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return ErrNotInitialized
	}

	if err := t.store.ClearOfflineData(ctx); err != nil {
		return fmt.Errorf("clear offline data: %w", err)
	}
	now := t.now()
	t.doc = models.NewProgressDocument(t.doc.UserID, now)
	t.recompute(t.doc)
	t.settings = models.NewSettingsDocument(t.settings.UserID, now)
	t.progressBase = nil
	t.resolver.ClearPending(models.DataProgress)
	t.resolver.ClearPending(models.DataSettings)
	t.logger.Debugf("offline data cleared for %s", t.doc.UserID)
	return nil
}

func (t *Tracker) notify(e notify.Event) {
	if e.Time.IsZero() {
		e.Time = t.now()
	}
	t.notifier.Notify(e)
}

func (t *Tracker) itemDropped(item models.SyncQueueItem, err error) {
	t.notify(notify.Event{
		Type:    notify.EventSyncItemDropped,
		UserID:  t.UserID(),
		Item:    &item,
		Status:  notify.StatusFailed,
		Message: err.Error(),
	})
}
