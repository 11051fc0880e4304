package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asteroid-belt/prepsync/internal/models"
	"github.com/asteroid-belt/prepsync/internal/notify"
)

// Queue item types and priorities. Higher priorities drain first.
const (
	itemProgress = "progress"
	itemSettings = "settings"

	priorityDay      = 2
	priorityActivity = 1
	prioritySettings = 0
)

// Session types recorded by the tracker.
const (
	SessionQuestion = "question"
	SessionStudy    = "study"
)

// TrackDayCompletion marks day of track complete. Completing a day again
// keeps its original completion time and refines its tasks and study time.
func (t *Tracker) TrackDayCompletion(ctx context.Context, track string, day int, tasks []string, studyTime time.Duration) error {
	if track == "" {
		return errors.New("track name is required")
	}
	if day <= 0 {
		return fmt.Errorf("invalid day %d", day)
	}
	secs := int64(studyTime.Seconds())
	if secs < 0 {
		return fmt.Errorf("negative study time %v", studyTime)
	}

	return t.mutateProgress(ctx, "day_completion", priorityDay, map[string]any{"track": track, "day": day},
		func(d *models.ProgressDocument, now time.Time) {
			tp := d.Tracks[track]
			if tp.CompletedDays == nil {
				tp.CompletedDays = make(map[int]models.DayCompletion)
			}

			dc, exists := tp.CompletedDays[day]
			if !exists {
				dc = models.DayCompletion{CompletedAt: now}
			}
			dc.Tasks = models.UnionStrings(dc.Tasks, tasks)
			if secs > 0 {
				d.Statistics.TotalStudyTime = max(0, d.Statistics.TotalStudyTime+secs-dc.StudyTime)
				dc.StudyTime = secs
			}
			tp.CompletedDays[day] = dc
			tp.CurrentDay = max(tp.CurrentDay, day)
			d.Tracks[track] = tp

			applyStudyDay(&d.Streaks, models.DateKey(now))
		})
}

// TrackQuestionStudied records that a question was studied. A question is
// counted once in the studied set and in its category no matter how often
// it is tracked; time spent always accumulates.
func (t *Tracker) TrackQuestionStudied(ctx context.Context, questionID, category string, timeSpent time.Duration) error {
	if questionID == "" {
		return errors.New("question id is required")
	}
	secs := int64(timeSpent.Seconds())
	if secs < 0 {
		return fmt.Errorf("negative time spent %v", timeSpent)
	}

	return t.mutateProgress(ctx, "question_studied", priorityActivity, map[string]any{"questionId": questionID, "category": category},
		func(d *models.ProgressDocument, now time.Time) {
			if !d.HasStudiedQuestion(questionID) {
				d.Statistics.QuestionsStudied = append(d.Statistics.QuestionsStudied, questionID)
				if category != "" {
					d.Statistics.CategoriesExplored[category]++
				}
			}
			if secs > 0 {
				d.Statistics.TotalStudyTime += secs
				d.Sessions = append(d.Sessions, models.StudySession{
					ID:        uuid.NewString(),
					Type:      SessionQuestion,
					Timestamp: now,
					Duration:  secs,
					Metadata:  map[string]string{"questionId": questionID, "category": category},
				})
			}
			applyStudyDay(&d.Streaks, models.DateKey(now))
		})
}

// TrackSessionTime records a study session of the given type.
func (t *Tracker) TrackSessionTime(ctx context.Context, sessionType string, duration time.Duration, metadata map[string]string) error {
	if sessionType == "" {
		sessionType = SessionStudy
	}
	secs := int64(duration.Seconds())
	if secs <= 0 {
		return fmt.Errorf("invalid session duration %v", duration)
	}

	return t.mutateProgress(ctx, "session_time", priorityActivity, map[string]any{"type": sessionType, "duration": secs},
		func(d *models.ProgressDocument, now time.Time) {
			var md map[string]string
			if len(metadata) > 0 {
				md = make(map[string]string, len(metadata))
				for k, v := range metadata {
					md[k] = v
				}
			}
			d.Sessions = append(d.Sessions, models.StudySession{
				ID:        uuid.NewString(),
				Type:      sessionType,
				Timestamp: now,
				Duration:  secs,
				Metadata:  md,
			})
			d.Statistics.TotalStudyTime += secs
			applyStudyDay(&d.Streaks, models.DateKey(now))
		})
}

// UpdateStreak records a study event on the calendar day of date.
// Recording the same day twice does not extend the streak.
func (t *Tracker) UpdateStreak(ctx context.Context, date time.Time) error {
	day := models.DateKey(date)
	return t.mutateProgress(ctx, "streak", priorityActivity, map[string]any{"date": day},
		func(d *models.ProgressDocument, _ time.Time) {
			applyStudyDay(&d.Streaks, day)
		})
}

// UpdateSetting sets the value at a dotted category.key path.
func (t *Tracker) UpdateSetting(ctx context.Context, path string, value any) error {
	if _, _, err := models.SplitSettingsPath(path); err != nil {
		return err
	}

	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}
	now := t.now()
	next := t.settings.Clone()
	if err := next.Set(path, value); err != nil {
		t.mu.Unlock()
		return err
	}
	next.LastModified = now
	next.Synced = false
	if err := t.store.PutSettings(ctx, next); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("persist settings: %w", err)
	}
	t.settings = next
	online := t.online && t.service != nil
	t.mu.Unlock()

	if online {
		err := t.pushSettings(ctx)
		if err == nil {
			return nil
		}
		t.logger.Debugf("push settings failed, queueing: %v", err)
	}
	t.enqueue(ctx, itemSettings, "setting_changed", prioritySettings, map[string]any{"path": path})
	return nil
}

// mutateProgress applies fn to a copy of the document, recomputes derived
// state and persists the copy. The in-memory document is replaced only after
// the store accepted the change. The mutation is then pushed when online or
// queued otherwise.
func (t *Tracker) mutateProgress(ctx context.Context, op string, priority int, detail map[string]any, fn func(d *models.ProgressDocument, now time.Time)) error {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return ErrNotInitialized
	}

	now := t.now()
	next := t.doc.Clone()
	fn(next, now)
	next.LastModified = now
	next.Synced = false
	t.recompute(next)
	unlocked := evaluateAchievements(next, now)

	if err := t.store.PutProgress(ctx, next); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("persist progress: %w", err)
	}
	t.doc = next
	online := t.online && t.service != nil
	userID := next.UserID
	achievements := next.Achievements
	t.mu.Unlock()

	for _, key := range unlocked {
		a := achievements[key]
		t.notify(notify.Event{
			Type:          notify.EventAchievementUnlocked,
			UserID:        userID,
			AchievementID: key,
			Achievement:   &a,
			Message:       a.Title,
		})
	}

	if online {
		err := t.pushProgress(ctx)
		if err == nil {
			return nil
		}
		t.logger.Debugf("push progress failed, queueing %s: %v", op, err)
	}
	t.enqueue(ctx, itemProgress, op, priority, detail)
	return nil
}

// recompute refreshes derived statistics and restores streak invariants.
func (t *Tracker) recompute(d *models.ProgressDocument) {
	d.Normalize()

	possible := len(d.Tracks) * t.trackDays
	if possible == 0 {
		d.Statistics.CompletionRate = 0
	} else {
		rate := float64(d.CompletedDayCount()) / float64(possible) * 100
		d.Statistics.CompletionRate = min(rate, 100)
	}
}

// enqueue records a mutation for a later drain. The local write already
// succeeded, so a queue failure is logged rather than returned.
func (t *Tracker) enqueue(ctx context.Context, typ, op string, priority int, detail map[string]any) {
	payload := map[string]any{"userId": t.UserID()}
	for k, v := range detail {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.logger.Warnf("encode %s mutation: %v", op, err)
		return
	}
	if _, err := t.queue.Enqueue(ctx, typ, op, data, priority); err != nil {
		t.logger.Warnf("queue %s mutation: %v", op, err)
	}
}
