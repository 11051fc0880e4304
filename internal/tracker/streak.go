package tracker

import (
	"time"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// applyStudyDay records a study event on day (YYYY-MM-DD).
//
// The streak continues when the previous study day was the day before,
// stays put when it is the same day, and restarts at 1 otherwise.
func applyStudyDay(s *models.Streaks, day string) {
	switch s.LastStudyDate {
	case day:
		if s.Current == 0 {
			s.Current = 1
		}
	case previousDay(day):
		s.Current++
	default:
		s.Current = 1
	}
	s.LastStudyDate = day
	s.AddStudyDate(day)
	s.Longest = max(s.Longest, s.Current)
}

func previousDay(day string) string {
	d, err := time.Parse(models.DateLayout, day)
	if err != nil {
		return ""
	}
	return d.AddDate(0, 0, -1).Format(models.DateLayout)
}
