package conflict

import (
	"fmt"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// ApplyProgress writes a resolved progress value into doc. Pending
// resolutions and nil values are ignored. Achievements already unlocked in
// doc stay unlocked.
func ApplyProgress(doc *models.ProgressDocument, res models.Resolution) error {
	if res.Pending || res.ResolvedValue == nil {
		return nil
	}

	c := res.Conflict
	switch c.Field {
	case models.FieldGeneral:
		resolved, ok := res.ResolvedValue.(*models.ProgressDocument)
		if !ok {
			return fmt.Errorf("apply general: unexpected value %T", res.ResolvedValue)
		}
		userID := doc.UserID
		achievements := doc.Achievements
		*doc = *resolved.Clone()
		doc.UserID = userID
		doc.Achievements = MergeAchievements(doc.Achievements, achievements)

	case models.FieldCompletedDays:
		days, ok := res.ResolvedValue.(map[string]map[int]models.DayCompletion)
		if !ok {
			return fmt.Errorf("apply completedDays: unexpected value %T", res.ResolvedValue)
		}
		doc.SetCompletedDays(days)

	case models.FieldCurrentStreak:
		n, ok := res.ResolvedValue.(int)
		if !ok {
			return fmt.Errorf("apply currentStreak: unexpected value %T", res.ResolvedValue)
		}
		doc.Streaks.Current = n
		doc.Streaks.Longest = max(doc.Streaks.Longest, n)

	case models.FieldLongestStreak:
		n, ok := res.ResolvedValue.(int)
		if !ok {
			return fmt.Errorf("apply longestStreak: unexpected value %T", res.ResolvedValue)
		}
		doc.Streaks.Longest = max(n, doc.Streaks.Current)

	case models.FieldTotalStudyTime:
		n, ok := res.ResolvedValue.(int64)
		if !ok {
			return fmt.Errorf("apply totalStudyTime: unexpected value %T", res.ResolvedValue)
		}
		doc.Statistics.TotalStudyTime = n

	default:
		return fmt.Errorf("apply progress: unknown field %q", c.Field)
	}
	return nil
}

// ApplySettings writes a resolved value at the conflict's category.key path.
// A nil value removes the key.
func ApplySettings(doc *models.SettingsDocument, res models.Resolution) error {
	if res.Pending {
		return nil
	}
	category, key, err := models.SplitSettingsPath(res.Conflict.Field)
	if err != nil {
		return err
	}
	doc.Normalize()
	if res.ResolvedValue == nil {
		delete(doc.Values[category], key)
		return nil
	}
	doc.Values[category][key] = res.ResolvedValue
	return nil
}
