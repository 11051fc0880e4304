package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asteroid-belt/prepsync/internal/conflict"
	"github.com/asteroid-belt/prepsync/internal/models"
	"github.com/asteroid-belt/prepsync/internal/notify"
	"github.com/asteroid-belt/prepsync/internal/syncqueue"
)

// errAwaitingChoice blocks pushes of a document with unresolved user-choice
// conflicts, so the server copy stays available for the user's decision.
var errAwaitingChoice = errors.New("conflicts awaiting user choice")

// SyncResult describes one sync pass.
type SyncResult struct {
	// Skipped is true when another pass was already running.
	Skipped bool
	// Offline is true when no pass ran because the service is unreachable.
	Offline bool

	Progress DocumentResult
	Settings DocumentResult
	Drain    syncqueue.DrainResult
	Status   notify.SyncStatus
}

// DocumentResult describes the sync of one document type.
type DocumentResult struct {
	RemoteFound bool
	Conflicts   int
	Applied     int
	Pending     int
	Pushed      bool
	Err         error
}

// Status is a point-in-time summary for display.
type Status struct {
	UserID           string
	Online           bool
	Degraded         bool
	Syncing          bool
	Synced           bool
	Queue            syncqueue.Status
	PendingConflicts int
	LastSyncAt       time.Time
	LastSyncStatus   string
}

// Status summarizes the tracker and its queue.
func (t *Tracker) Status(ctx context.Context) (Status, error) {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return Status{}, ErrNotInitialized
	}
	st := Status{
		UserID:   t.doc.UserID,
		Online:   t.online && t.service != nil,
		Degraded: t.degraded,
		Synced:   t.doc.Synced && t.settings.Synced,
	}
	t.mu.Unlock()

	t.syncMu.Lock()
	st.Syncing = t.inSync
	t.syncMu.Unlock()

	q, err := t.queue.Status(ctx)
	if err != nil {
		return st, err
	}
	st.Queue = q
	st.PendingConflicts = len(t.resolver.Pending())

	if v, err := t.store.GetSyncMeta(models.SyncMetaLastSyncAt); err == nil && v != "" {
		st.LastSyncAt, _ = time.Parse(time.RFC3339, v)
	}
	st.LastSyncStatus, _ = t.store.GetSyncMeta(models.SyncMetaLastSyncStatus)
	return st, nil
}

// SetOnline records a connectivity change. Coming online starts a sync pass.
func (t *Tracker) SetOnline(ctx context.Context, online bool) (SyncResult, error) {
	t.mu.Lock()
	was := t.online
	t.online = online
	userID := ""
	if t.doc != nil {
		userID = t.doc.UserID
	}
	t.mu.Unlock()

	if !online {
		if was {
			t.notify(notify.Event{Type: notify.EventSyncStatusChanged, UserID: userID, Status: notify.StatusOffline})
		}
		return SyncResult{Offline: true}, nil
	}
	return t.Sync(ctx)
}

// VisibilityRestored starts a sync pass when the host becomes active again.
func (t *Tracker) VisibilityRestored(ctx context.Context) (SyncResult, error) {
	return t.Sync(ctx)
}

// Sync reconciles the local documents with the service, pushes the result
// and drains the queue. Network failures are reported in the result; only
// local storage failures are returned as errors.
func (t *Tracker) Sync(ctx context.Context) (SyncResult, error) {
	t.mu.Lock()
	initialized := t.initialized
	online := t.online && t.service != nil
	userID := ""
	if t.doc != nil {
		userID = t.doc.UserID
	}
	t.mu.Unlock()

	if !initialized {
		return SyncResult{}, ErrNotInitialized
	}
	if !online {
		return SyncResult{Offline: true}, nil
	}

	t.syncMu.Lock()
	if t.inSync {
		t.syncMu.Unlock()
		t.logger.Debugf("sync already in progress")
		return SyncResult{Skipped: true}, nil
	}
	t.inSync = true
	t.syncMu.Unlock()
	defer func() {
		t.syncMu.Lock()
		t.inSync = false
		t.syncMu.Unlock()
	}()

	t.notify(notify.Event{Type: notify.EventSyncStatusChanged, UserID: userID, Status: notify.StatusSyncing})

	var (
		res                                SyncResult
		storageErr                         error
		progressPushedAt, settingsPushedAt time.Time
	)

	res.Progress, progressPushedAt, storageErr = t.syncProgress(ctx, userID)
	if storageErr == nil {
		res.Settings, settingsPushedAt, storageErr = t.syncSettings(ctx, userID)
	}

	drain, err := t.queue.Drain(ctx, t.drainHandler(progressPushedAt, settingsPushedAt))
	res.Drain = drain
	if err != nil {
		t.logger.Warnf("drain sync queue: %v", err)
	}

	res.Status = notify.StatusSynced
	if storageErr != nil || err != nil || res.Progress.Err != nil || res.Settings.Err != nil || drain.Failed > 0 {
		res.Status = notify.StatusFailed
	}

	if err := t.store.SetSyncMeta(models.SyncMetaLastSyncAt, t.now().UTC().Format(time.RFC3339)); err != nil {
		t.logger.Warnf("record sync time: %v", err)
	}
	if err := t.store.SetSyncMeta(models.SyncMetaLastSyncStatus, string(res.Status)); err != nil {
		t.logger.Warnf("record sync status: %v", err)
	}
	t.notify(notify.Event{Type: notify.EventSyncStatusChanged, UserID: userID, Status: res.Status})

	return res, storageErr
}

// syncProgress fetches, reconciles and pushes the progress document. It
// returns the time the pushed snapshot was taken, or zero if nothing was
// pushed.
func (t *Tracker) syncProgress(ctx context.Context, userID string) (DocumentResult, time.Time, error) {
	var res DocumentResult

	t.mu.Lock()
	base := t.doc
	local := base.Clone()
	t.mu.Unlock()

	remoteDoc, err := t.service.FetchProgress(ctx, userID)
	if err != nil {
		t.logger.Warnf("fetch progress: %v", err)
		res.Err = err
		return res, time.Time{}, nil
	}

	needsPush := !local.Synced || remoteDoc == nil
	if remoteDoc != nil {
		res.RemoteFound = true
		t.resolver.ClearPending(models.DataProgress)

		conflicts := t.resolver.DetectProgress(local, remoteDoc)
		res.Conflicts = len(conflicts)
		if len(conflicts) > 0 {
			resolutions := t.resolver.ResolveAll(conflicts)
			applied, pending, err := t.applyProgress(ctx, base, resolutions)
			if err != nil {
				return res, time.Time{}, err
			}
			res.Applied = applied
			res.Pending = pending
			needsPush = needsPush || applied > 0
		}
	}

	if !needsPush || res.Pending > 0 {
		return res, time.Time{}, nil
	}

	at := t.now()
	if err := t.pushProgress(ctx); err != nil {
		t.logger.Warnf("push progress: %v", err)
		res.Err = err
		return res, time.Time{}, nil
	}
	res.Pushed = true
	return res, at, nil
}

// applyProgress writes resolved values into a copy of the document and
// persists it. base is the document the conflicts were detected against.
// Pending resolutions are announced to the host.
func (t *Tracker) applyProgress(ctx context.Context, base *models.ProgressDocument, resolutions []models.Resolution) (int, int, error) {
	pending := 0
	for _, r := range resolutions {
		if r.Pending {
			pending++
		}
	}

	t.mu.Lock()
	now := t.now()
	next, applied, err := t.resolveProgress(base, resolutions, now)
	if err != nil {
		t.logger.Warnf("apply progress resolutions: %v", err)
	}
	t.progressBase = base
	var unlocked []string
	if applied > 0 {
		next.LastModified = now
		next.Synced = false
		t.recompute(next)
		unlocked = evaluateAchievements(next, now)
		if err := t.store.PutProgress(ctx, next); err != nil {
			t.mu.Unlock()
			return 0, pending, fmt.Errorf("persist merged progress: %w", err)
		}
		if t.doc == base {
			t.progressBase = next
		}
		t.doc = next
	}
	userID := next.UserID
	t.mu.Unlock()

	for _, key := range unlocked {
		a := next.Achievements[key]
		t.notify(notify.Event{Type: notify.EventAchievementUnlocked, UserID: userID, AchievementID: key, Achievement: &a, Message: a.Title})
	}
	t.announcePending(userID, resolutions)
	return applied, pending, nil
}

// resolveProgress applies resolutions to a copy of the current document.
// When the current document was replaced after base was detected against,
// the result is merged field by field with the current one so local writes
// made in the meantime are kept. Callers hold t.mu.
func (t *Tracker) resolveProgress(base *models.ProgressDocument, resolutions []models.Resolution, now time.Time) (*models.ProgressDocument, int, error) {
	current := t.doc
	next := current.Clone()
	applied := 0
	var errs []error
	for _, r := range resolutions {
		if r.Pending {
			continue
		}
		if err := conflict.ApplyProgress(next, r); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Conflict.Field, err))
			continue
		}
		applied++
	}
	if applied == 0 || current == base {
		return next, applied, errors.Join(errs...)
	}

	merged, err := conflict.MergeProgress(current, next, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("fold into changed document: %w", err))
		return current.Clone(), 0, errors.Join(errs...)
	}
	return merged, applied, errors.Join(errs...)
}

// syncSettings is syncProgress for the settings document.
func (t *Tracker) syncSettings(ctx context.Context, userID string) (DocumentResult, time.Time, error) {
	var res DocumentResult

	t.mu.Lock()
	local := t.settings.Clone()
	t.mu.Unlock()

	remoteDoc, err := t.service.FetchSettings(ctx, userID)
	if err != nil {
		t.logger.Warnf("fetch settings: %v", err)
		res.Err = err
		return res, time.Time{}, nil
	}

	needsPush := !local.Synced || remoteDoc == nil
	if remoteDoc != nil {
		res.RemoteFound = true
		t.resolver.ClearPending(models.DataSettings)

		conflicts := t.resolver.DetectSettings(local, remoteDoc)
		res.Conflicts = len(conflicts)
		if len(conflicts) > 0 {
			resolutions := t.resolver.ResolveAll(conflicts)
			applied, pending, err := t.applySettings(ctx, resolutions)
			if err != nil {
				return res, time.Time{}, err
			}
			res.Applied = applied
			res.Pending = pending
			needsPush = needsPush || applied > 0
		}
	}

	if !needsPush || res.Pending > 0 {
		return res, time.Time{}, nil
	}

	at := t.now()
	if err := t.pushSettings(ctx); err != nil {
		t.logger.Warnf("push settings: %v", err)
		res.Err = err
		return res, time.Time{}, nil
	}
	res.Pushed = true
	return res, at, nil
}

func (t *Tracker) applySettings(ctx context.Context, resolutions []models.Resolution) (int, int, error) {
	applied, pending := 0, 0

	t.mu.Lock()
	next := t.settings.Clone()
	for _, r := range resolutions {
		if r.Pending {
			pending++
			continue
		}
		if err := conflict.ApplySettings(next, r); err != nil {
			t.logger.Warnf("apply %s resolution: %v", r.Conflict.Field, err)
			continue
		}
		applied++
	}
	if applied > 0 {
		next.LastModified = t.now()
		next.Synced = false
		if err := t.store.PutSettings(ctx, next); err != nil {
			t.mu.Unlock()
			return 0, pending, fmt.Errorf("persist merged settings: %w", err)
		}
		t.settings = next
	}
	userID := next.UserID
	t.mu.Unlock()

	t.announcePending(userID, resolutions)
	return applied, pending, nil
}

func (t *Tracker) announcePending(userID string, resolutions []models.Resolution) {
	for _, r := range resolutions {
		if !r.Pending {
			continue
		}
		c := r.Conflict
		t.notify(notify.Event{
			Type:     notify.EventConflictRequiresChoice,
			UserID:   userID,
			Conflict: &c,
			Message:  fmt.Sprintf("%s %s differs between devices", c.DataType, c.Field),
		})
	}
}

// ResolveConflict applies the user's choice to a pending conflict, persists
// the result and pushes it once no conflicts of that type remain pending.
func (t *Tracker) ResolveConflict(ctx context.Context, id string, choice models.Choice) (models.Resolution, error) {
	t.mu.Lock()
	initialized := t.initialized
	t.mu.Unlock()
	if !initialized {
		return models.Resolution{}, ErrNotInitialized
	}

	res, err := t.resolver.ResolveChoice(id, choice)
	if err != nil {
		return res, err
	}

	t.mu.Lock()
	now := t.now()
	var persistErr error
	switch res.Conflict.DataType {
	case models.DataSettings:
		next := t.settings.Clone()
		if err := conflict.ApplySettings(next, res); err != nil {
			t.mu.Unlock()
			return res, err
		}
		next.LastModified = now
		next.Synced = false
		if persistErr = t.store.PutSettings(ctx, next); persistErr == nil {
			t.settings = next
		}
	default:
		next, applied, err := t.resolveProgress(t.progressBase, []models.Resolution{res}, now)
		if applied == 0 && err != nil {
			t.mu.Unlock()
			return res, err
		}
		next.LastModified = now
		next.Synced = false
		t.recompute(next)
		evaluateAchievements(next, now)
		if persistErr = t.store.PutProgress(ctx, next); persistErr == nil {
			t.doc = next
			t.progressBase = next
		}
	}
	online := t.online && t.service != nil
	t.mu.Unlock()

	if persistErr != nil {
		return res, fmt.Errorf("persist resolution: %w", persistErr)
	}

	typ, op, priority := itemProgress, "conflict_resolved", priorityActivity
	push := t.pushProgress
	if res.Conflict.DataType == models.DataSettings {
		typ, priority = itemSettings, prioritySettings
		push = t.pushSettings
	}

	if online {
		err := push(ctx)
		if err == nil || errors.Is(err, errAwaitingChoice) {
			return res, nil
		}
		t.logger.Debugf("push after resolution failed, queueing: %v", err)
	}
	t.enqueue(ctx, typ, op, priority, map[string]any{"conflictId": id, "field": res.Conflict.Field})
	return res, nil
}

func (t *Tracker) hasPending(dt models.DataType) bool {
	for _, c := range t.resolver.Pending() {
		if c.DataType == dt {
			return true
		}
	}
	return false
}

// pushProgress sends the current document and marks it synced if no local
// change happened while the push was in flight.
func (t *Tracker) pushProgress(ctx context.Context) error {
	if t.hasPending(models.DataProgress) {
		return errAwaitingChoice
	}

	t.mu.Lock()
	cur := t.doc
	snap := cur.Clone()
	t.mu.Unlock()

	if err := t.service.PushProgress(ctx, snap.UserID, snap); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.doc != cur || t.doc.Synced {
		return nil
	}
	next := t.doc.Clone()
	next.Synced = true
	if err := t.store.PutProgress(ctx, next); err != nil {
		t.logger.Warnf("mark progress synced: %v", err)
		return nil
	}
	t.doc = next
	return nil
}

// pushSettings is pushProgress for the settings document.
func (t *Tracker) pushSettings(ctx context.Context) error {
	if t.hasPending(models.DataSettings) {
		return errAwaitingChoice
	}

	t.mu.Lock()
	snap := t.settings.Clone()
	t.mu.Unlock()

	if err := t.service.PushSettings(ctx, snap.UserID, snap); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.settings.LastModified.Equal(snap.LastModified) || t.settings.Synced {
		return nil
	}
	next := t.settings.Clone()
	next.Synced = true
	if err := t.store.PutSettings(ctx, next); err != nil {
		t.logger.Warnf("mark settings synced: %v", err)
		return nil
	}
	t.settings = next
	return nil
}

// drainHandler pushes the current document for each queued mutation. Every
// queued mutation is already part of the current document, so one successful
// push acknowledges all items queued before it was taken.
func (t *Tracker) drainHandler(progressPushedAt, settingsPushedAt time.Time) syncqueue.Handler {
	return func(ctx context.Context, item models.SyncQueueItem) error {
		var pushedAt *time.Time
		var push func(context.Context) error
		switch item.Type {
		case itemProgress:
			pushedAt, push = &progressPushedAt, t.pushProgress
		case itemSettings:
			pushedAt, push = &settingsPushedAt, t.pushSettings
		default:
			return fmt.Errorf("unknown sync item type %q", item.Type)
		}

		if !pushedAt.IsZero() && !item.Timestamp.After(*pushedAt) {
			return nil
		}
		at := t.now()
		if err := push(ctx); err != nil {
			if errors.Is(err, errAwaitingChoice) {
				// The resolution pushes the document once the user decides.
				return nil
			}
			return err
		}
		*pushedAt = at
		return nil
	}
}
