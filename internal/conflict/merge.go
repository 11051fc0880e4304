package conflict

import (
	"fmt"
	"time"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// MergeProgress deep-merges two progress documents, starting from the server
// copy. Completed days are unioned with local entries winning on collision,
// streak and study-time counters take the larger side, sessions and studied
// questions are unioned, and achievements stay unlocked if either side
// unlocked them. The result is stamped with now.
func MergeProgress(local, server *models.ProgressDocument, now time.Time) (*models.ProgressDocument, error) {
	if local == nil || server == nil {
		return nil, fmt.Errorf("%w: merge progress needs both documents", ErrMergeFailure)
	}

	out := server.Clone()
	out.Normalize()
	if local.UserID != "" {
		out.UserID = local.UserID
	}

	out.SetCompletedDays(mergeCompletedDays(local.CompletedDays(), server.CompletedDays()))
	for name, tp := range local.Tracks {
		merged := out.Tracks[name]
		if tp.CurrentDay > merged.CurrentDay {
			merged.CurrentDay = tp.CurrentDay
			out.Tracks[name] = merged
		}
	}

	out.Streaks.Current = max(local.Streaks.Current, server.Streaks.Current)
	out.Streaks.Longest = max(local.Streaks.Longest, server.Streaks.Longest, out.Streaks.Current)
	for _, day := range local.Streaks.StudyDates {
		out.Streaks.AddStudyDate(day)
	}
	if local.Streaks.LastStudyDate > out.Streaks.LastStudyDate {
		out.Streaks.LastStudyDate = local.Streaks.LastStudyDate
	}

	out.Statistics.TotalStudyTime = max(local.Statistics.TotalStudyTime, server.Statistics.TotalStudyTime)
	out.Statistics.QuestionsStudied = models.UnionStrings(server.Statistics.QuestionsStudied, local.Statistics.QuestionsStudied)
	for cat, n := range local.Statistics.CategoriesExplored {
		if n > out.Statistics.CategoriesExplored[cat] {
			out.Statistics.CategoriesExplored[cat] = n
		}
	}
	out.Statistics.CompletionRate = max(local.Statistics.CompletionRate, server.Statistics.CompletionRate)

	out.Sessions = mergeSessions(server.Sessions, local.Sessions)
	out.Achievements = MergeAchievements(out.Achievements, local.Achievements)

	out.LastModified = now
	out.Synced = false
	return out, nil
}

// MergeSettings shallow-merges each category, local keys overriding server
// keys. The result is stamped with now.
func MergeSettings(local, server *models.SettingsDocument, now time.Time) (*models.SettingsDocument, error) {
	if local == nil || server == nil {
		return nil, fmt.Errorf("%w: merge settings needs both documents", ErrMergeFailure)
	}

	out := server.Clone()
	out.Normalize()
	if local.UserID != "" {
		out.UserID = local.UserID
	}
	for category, kv := range local.Values {
		if !models.IsSettingsCategory(category) {
			return nil, fmt.Errorf("%w: unknown settings category %q", ErrMergeFailure, category)
		}
		for k, v := range kv {
			out.Values[category][k] = v
		}
	}
	out.LastModified = now
	out.Synced = false
	return out, nil
}

// MergeAchievements returns base with every achievement unlocked in other
// also unlocked. The earliest unlock time is kept.
func MergeAchievements(base, other map[string]models.Achievement) map[string]models.Achievement {
	out := make(map[string]models.Achievement, len(base)+len(other))
	for k, a := range base {
		out[k] = a
	}
	for k, a := range other {
		cur, ok := out[k]
		switch {
		case !ok:
			out[k] = a
		case a.Unlocked && !cur.Unlocked:
			out[k] = a
		case a.Unlocked && cur.Unlocked && a.UnlockedAt != nil &&
			(cur.UnlockedAt == nil || a.UnlockedAt.Before(*cur.UnlockedAt)):
			cur.UnlockedAt = a.UnlockedAt
			out[k] = cur
		}
	}
	return out
}

func mergeCompletedDays(local, server map[string]map[int]models.DayCompletion) map[string]map[int]models.DayCompletion {
	out := make(map[string]map[int]models.DayCompletion, len(server)+len(local))
	for _, src := range []map[string]map[int]models.DayCompletion{server, local} {
		for track, days := range src {
			if out[track] == nil {
				out[track] = make(map[int]models.DayCompletion, len(days))
			}
			for n, dc := range days {
				out[track][n] = dc
			}
		}
	}
	return out
}

// sessionKey identifies a session across devices that assign different ids.
type sessionKey struct {
	at       int64
	duration int64
	typ      string
}

func mergeSessions(server, local []models.StudySession) []models.StudySession {
	out := make([]models.StudySession, 0, len(server)+len(local))
	seen := make(map[sessionKey]struct{}, len(server)+len(local))
	for _, src := range [][]models.StudySession{server, local} {
		for _, s := range src {
			k := sessionKey{at: s.Timestamp.UnixMilli(), duration: s.Duration, typ: s.Type}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
