// Package models defines the core data structures for prepsync.
package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidDocument is returned when a decoded document fails validation.
var ErrInvalidDocument = errors.New("invalid document")

// DateLayout is the calendar-day format used for streak bookkeeping.
const DateLayout = "2006-01-02"

// DateKey returns the calendar day of t in t's location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ProgressDocument is the per-user unit of synchronization.
type ProgressDocument struct {
	UserID       string                   `json:"userId"`
	Tracks       map[string]TrackProgress `json:"tracks"`
	Sessions     []StudySession           `json:"sessions"`
	Streaks      Streaks                  `json:"streaks"`
	Statistics   Statistics               `json:"statistics"`
	Achievements map[string]Achievement   `json:"achievements"`
	LastModified time.Time                `json:"lastModified"`
	Synced       bool                     `json:"synced"`
}

// TrackProgress holds the completed days of a single study track.
type TrackProgress struct {
	CompletedDays map[int]DayCompletion `json:"completedDays"`
	CurrentDay    int                   `json:"currentDay"`
}

// DayCompletion is created once per (track, day) pair.
type DayCompletion struct {
	CompletedAt time.Time `json:"completedAt"`
	Tasks       []string  `json:"tasks"`
	StudyTime   int64     `json:"studyTime"` // seconds
}

// StudySession is an append-only record of time spent studying.
type StudySession struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Duration  int64             `json:"duration"` // seconds
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Streaks tracks consecutive study days.
type Streaks struct {
	Current       int      `json:"current"`
	Longest       int      `json:"longest"`
	LastStudyDate string   `json:"lastStudyDate,omitempty"`
	StudyDates    []string `json:"studyDates"` // sorted, unique
}

// Statistics is derived aggregate state.
type Statistics struct {
	TotalStudyTime     int64          `json:"totalStudyTime"` // seconds
	QuestionsStudied   []string       `json:"questionsStudied"`
	CategoriesExplored map[string]int `json:"categoriesExplored"`
	CompletionRate     float64        `json:"completionRate"`
}

// Achievement is monotonic: once unlocked it is never revoked.
type Achievement struct {
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlockedAt,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
}

// NewProgressDocument returns an empty document for userID.
func NewProgressDocument(userID string, now time.Time) *ProgressDocument {
	doc := &ProgressDocument{
		UserID:       userID,
		LastModified: now,
	}
	doc.Normalize()
	return doc
}

// Normalize fills nil collections and restores the set/ordering invariants.
// It is applied to every document decoded from storage or the network.
func (d *ProgressDocument) Normalize() {
	if d.Tracks == nil {
		d.Tracks = make(map[string]TrackProgress)
	}
	for name, tp := range d.Tracks {
		if tp.CompletedDays == nil {
			tp.CompletedDays = make(map[int]DayCompletion)
			d.Tracks[name] = tp
		}
	}
	if d.Sessions == nil {
		d.Sessions = []StudySession{}
	}
	if d.Achievements == nil {
		d.Achievements = make(map[string]Achievement)
	}
	if d.Statistics.CategoriesExplored == nil {
		d.Statistics.CategoriesExplored = make(map[string]int)
	}
	d.Statistics.QuestionsStudied = uniqueStrings(d.Statistics.QuestionsStudied)
	d.Streaks.StudyDates = uniqueSorted(d.Streaks.StudyDates)
	if d.Streaks.Longest < d.Streaks.Current {
		d.Streaks.Longest = d.Streaks.Current
	}
}

// Validate reports whether the document satisfies its schema.
func (d *ProgressDocument) Validate() error {
	if d.UserID == "" {
		return fmt.Errorf("%w: progress document has no user id", ErrInvalidDocument)
	}
	if d.Streaks.Current < 0 || d.Streaks.Longest < 0 {
		return fmt.Errorf("%w: negative streak", ErrInvalidDocument)
	}
	if d.Statistics.TotalStudyTime < 0 {
		return fmt.Errorf("%w: negative study time", ErrInvalidDocument)
	}
	for name, tp := range d.Tracks {
		if name == "" {
			return fmt.Errorf("%w: empty track name", ErrInvalidDocument)
		}
		for day := range tp.CompletedDays {
			if day <= 0 {
				return fmt.Errorf("%w: track %s has day %d", ErrInvalidDocument, name, day)
			}
		}
	}
	if d.Streaks.LastStudyDate != "" {
		if _, err := time.Parse(DateLayout, d.Streaks.LastStudyDate); err != nil {
			return fmt.Errorf("%w: last study date: %v", ErrInvalidDocument, err)
		}
	}
	return nil
}

// Clone returns a deep copy of the document.
func (d *ProgressDocument) Clone() *ProgressDocument {
	if d == nil {
		return nil
	}
	out := *d
	out.Tracks = CloneTracks(d.Tracks)

	out.Sessions = make([]StudySession, len(d.Sessions))
	for i, s := range d.Sessions {
		out.Sessions[i] = s.clone()
	}

	out.Streaks.StudyDates = append([]string(nil), d.Streaks.StudyDates...)
	out.Statistics.QuestionsStudied = append([]string(nil), d.Statistics.QuestionsStudied...)
	out.Statistics.CategoriesExplored = make(map[string]int, len(d.Statistics.CategoriesExplored))
	for k, v := range d.Statistics.CategoriesExplored {
		out.Statistics.CategoriesExplored[k] = v
	}

	out.Achievements = make(map[string]Achievement, len(d.Achievements))
	for k, a := range d.Achievements {
		if a.UnlockedAt != nil {
			at := *a.UnlockedAt
			a.UnlockedAt = &at
		}
		out.Achievements[k] = a
	}
	return &out
}

// CloneTracks deep-copies a tracks mapping.
func CloneTracks(tracks map[string]TrackProgress) map[string]TrackProgress {
	out := make(map[string]TrackProgress, len(tracks))
	for name, tp := range tracks {
		days := make(map[int]DayCompletion, len(tp.CompletedDays))
		for n, dc := range tp.CompletedDays {
			dc.Tasks = append([]string(nil), dc.Tasks...)
			days[n] = dc
		}
		out[name] = TrackProgress{CompletedDays: days, CurrentDay: tp.CurrentDay}
	}
	return out
}

func (s StudySession) clone() StudySession {
	if s.Metadata != nil {
		md := make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			md[k] = v
		}
		s.Metadata = md
	}
	return s
}

// CompletedDayCount returns the number of completed days across all tracks.
func (d *ProgressDocument) CompletedDayCount() int {
	n := 0
	for _, tp := range d.Tracks {
		n += len(tp.CompletedDays)
	}
	return n
}

// CompletedDays returns a copy of every track's completed days, keyed by
// track name then day number.
func (d *ProgressDocument) CompletedDays() map[string]map[int]DayCompletion {
	out := make(map[string]map[int]DayCompletion, len(d.Tracks))
	for name, tp := range CloneTracks(d.Tracks) {
		out[name] = tp.CompletedDays
	}
	return out
}

// SetCompletedDays replaces the completed days of every track. Tracks missing
// from days are left with no completed days.
func (d *ProgressDocument) SetCompletedDays(days map[string]map[int]DayCompletion) {
	d.Normalize()
	for name, tp := range d.Tracks {
		tp.CompletedDays = make(map[int]DayCompletion)
		d.Tracks[name] = tp
	}
	for name, completed := range days {
		tp := d.Tracks[name]
		tp.CompletedDays = make(map[int]DayCompletion, len(completed))
		for n, dc := range completed {
			dc.Tasks = append([]string(nil), dc.Tasks...)
			tp.CompletedDays[n] = dc
			if n > tp.CurrentDay {
				tp.CurrentDay = n
			}
		}
		d.Tracks[name] = tp
	}
}

// HasStudiedQuestion reports whether id is already in the studied set.
func (d *ProgressDocument) HasStudiedQuestion(id string) bool {
	for _, q := range d.Statistics.QuestionsStudied {
		if q == id {
			return true
		}
	}
	return false
}

// AddStudyDate inserts day into the sorted study-date set.
func (s *Streaks) AddStudyDate(day string) {
	i := sort.SearchStrings(s.StudyDates, day)
	if i < len(s.StudyDates) && s.StudyDates[i] == day {
		return
	}
	s.StudyDates = append(s.StudyDates, "")
	copy(s.StudyDates[i+1:], s.StudyDates[i:])
	s.StudyDates[i] = day
}

// UnionStrings returns the ordered set union of a and b.
func UnionStrings(a, b []string) []string {
	return uniqueStrings(append(append([]string(nil), a...), b...))
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func uniqueSorted(in []string) []string {
	out := uniqueStrings(in)
	sort.Strings(out)
	return out
}
