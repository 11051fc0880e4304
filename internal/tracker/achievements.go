package tracker

import (
	"time"

	"github.com/asteroid-belt/prepsync/internal/models"
)

type achievementDef struct {
	key         string
	title       string
	description string
	unlocked    func(d *models.ProgressDocument) bool
}

func questionsAtLeast(n int) func(*models.ProgressDocument) bool {
	return func(d *models.ProgressDocument) bool {
		return len(d.Statistics.QuestionsStudied) >= n
	}
}

func streakAtLeast(n int) func(*models.ProgressDocument) bool {
	return func(d *models.ProgressDocument) bool {
		return d.Streaks.Current >= n
	}
}

var achievementDefs = []achievementDef{
	{"first_question", "First Question", "Study your first interview question", questionsAtLeast(1)},
	{"ten_questions", "Getting Started", "Study 10 questions", questionsAtLeast(10)},
	{"fifty_questions", "Dedicated", "Study 50 questions", questionsAtLeast(50)},
	{"hundred_questions", "Centurion", "Study 100 questions", questionsAtLeast(100)},
	{"category_explorer", "Explorer", "Study questions from 5 categories", func(d *models.ProgressDocument) bool {
		return len(d.Statistics.CategoriesExplored) >= 5
	}},
	{"week_streak", "Week Warrior", "Study 7 days in a row", streakAtLeast(7)},
	{"month_streak", "Unstoppable", "Study 30 days in a row", streakAtLeast(30)},
	{"ten_hours", "Time Invested", "Spend 10 hours studying", func(d *models.ProgressDocument) bool {
		return d.Statistics.TotalStudyTime >= int64((10 * time.Hour).Seconds())
	}},
	{"first_day", "Day One", "Complete your first track day", func(d *models.ProgressDocument) bool {
		return d.CompletedDayCount() >= 1
	}},
}

// AchievementKeys lists every achievement in evaluation order.
func AchievementKeys() []string {
	keys := make([]string, len(achievementDefs))
	for i, def := range achievementDefs {
		keys[i] = def.key
	}
	return keys
}

// evaluateAchievements unlocks every newly satisfied achievement and returns
// their keys. Unlocked achievements are never re-evaluated.
func evaluateAchievements(d *models.ProgressDocument, now time.Time) []string {
	var unlocked []string
	for _, def := range achievementDefs {
		a, ok := d.Achievements[def.key]
		if ok && a.Unlocked {
			continue
		}
		a.Title = def.title
		a.Description = def.description
		if def.unlocked(d) {
			at := now
			a.Unlocked = true
			a.UnlockedAt = &at
			unlocked = append(unlocked, def.key)
		}
		d.Achievements[def.key] = a
	}
	return unlocked
}
