package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/prepsync/internal/models"
)

func TestMergeProgressCompletedDaysUnion(t *testing.T) {
	local := models.NewProgressDocument("u1", t0)
	server := models.NewProgressDocument("u1", t0)

	local.Tracks["go"] = models.TrackProgress{CompletedDays: map[int]models.DayCompletion{
		1: {CompletedAt: t0, StudyTime: 900},
		2: {CompletedAt: t0, StudyTime: 100},
	}, CurrentDay: 2}
	server.Tracks["go"] = models.TrackProgress{CompletedDays: map[int]models.DayCompletion{
		2: {CompletedAt: t0.Add(-time.Hour), StudyTime: 50},
		3: {CompletedAt: t0, StudyTime: 300},
	}, CurrentDay: 3}
	server.Tracks["sql"] = models.TrackProgress{CompletedDays: map[int]models.DayCompletion{
		1: {CompletedAt: t0},
	}, CurrentDay: 1}

	merged, err := MergeProgress(local, server, t0.Add(time.Minute))
	require.NoError(t, err)

	for _, src := range []*models.ProgressDocument{local, server} {
		for track, tp := range src.Tracks {
			for day := range tp.CompletedDays {
				assert.Contains(t, merged.Tracks[track].CompletedDays, day, "%s day %d", track, day)
			}
		}
	}
	assert.Equal(t, int64(100), merged.Tracks["go"].CompletedDays[2].StudyTime, "local wins on collision")
	assert.Equal(t, 3, merged.Tracks["go"].CurrentDay)
	assert.Equal(t, t0.Add(time.Minute), merged.LastModified)
	assert.False(t, merged.Synced)
}

func TestMergeProgressSetsAndCounters(t *testing.T) {
	local := models.NewProgressDocument("u1", t0)
	server := models.NewProgressDocument("u1", t0)

	local.Statistics.QuestionsStudied = []string{"q1", "q2"}
	server.Statistics.QuestionsStudied = []string{"q2", "q3"}
	local.Statistics.TotalStudyTime = 10
	server.Statistics.TotalStudyTime = 40
	local.Statistics.CategoriesExplored = map[string]int{"arrays": 3}
	server.Statistics.CategoriesExplored = map[string]int{"arrays": 1, "graphs": 2}
	local.Streaks.StudyDates = []string{"2026-03-08", "2026-03-10"}
	local.Streaks.LastStudyDate = "2026-03-10"
	server.Streaks.StudyDates = []string{"2026-03-09"}
	server.Streaks.LastStudyDate = "2026-03-09"

	merged, err := MergeProgress(local, server, t0)
	require.NoError(t, err)

	assert.Equal(t, []string{"q2", "q3", "q1"}, merged.Statistics.QuestionsStudied)
	assert.Equal(t, int64(40), merged.Statistics.TotalStudyTime)
	assert.Equal(t, map[string]int{"arrays": 3, "graphs": 2}, merged.Statistics.CategoriesExplored)
	assert.Equal(t, []string{"2026-03-08", "2026-03-09", "2026-03-10"}, merged.Streaks.StudyDates)
	assert.Equal(t, "2026-03-10", merged.Streaks.LastStudyDate)
}

func TestMergeProgressSessionsDeduplicated(t *testing.T) {
	local := models.NewProgressDocument("u1", t0)
	server := models.NewProgressDocument("u1", t0)

	shared := models.StudySession{ID: "local-id", Type: "practice", Timestamp: t0, Duration: 600}
	local.Sessions = []models.StudySession{
		shared,
		{ID: "l2", Type: "review", Timestamp: t0.Add(time.Hour), Duration: 300},
	}
	dup := shared
	dup.ID = "server-id"
	server.Sessions = []models.StudySession{
		dup,
		{ID: "s2", Type: "practice", Timestamp: t0, Duration: 601},
	}

	merged, err := MergeProgress(local, server, t0)
	require.NoError(t, err)

	ids := make([]string, 0, len(merged.Sessions))
	for _, s := range merged.Sessions {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"server-id", "s2", "l2"}, ids)
}

func TestMergeProgressAchievementsStayUnlocked(t *testing.T) {
	early := t0.Add(-48 * time.Hour)
	late := t0

	local := models.NewProgressDocument("u1", t0)
	server := models.NewProgressDocument("u1", t0)
	local.Achievements["first_question"] = models.Achievement{Unlocked: true, UnlockedAt: &late, Title: "First Question"}
	server.Achievements["first_question"] = models.Achievement{Unlocked: true, UnlockedAt: &early, Title: "First Question"}
	local.Achievements["week_streak"] = models.Achievement{Unlocked: true, UnlockedAt: &late}
	server.Achievements["week_streak"] = models.Achievement{Unlocked: false}

	merged, err := MergeProgress(local, server, t0)
	require.NoError(t, err)

	assert.True(t, merged.Achievements["week_streak"].Unlocked)
	require.NotNil(t, merged.Achievements["first_question"].UnlockedAt)
	assert.Equal(t, early, *merged.Achievements["first_question"].UnlockedAt)
}

func TestMergeProgressNil(t *testing.T) {
	_, err := MergeProgress(nil, models.NewProgressDocument("u1", t0), t0)
	assert.ErrorIs(t, err, ErrMergeFailure)
}

func TestMergeSettings(t *testing.T) {
	local := models.NewSettingsDocument("u1", t0)
	server := models.NewSettingsDocument("u1", t0)
	require.NoError(t, local.Set("theme.mode", "dark"))
	require.NoError(t, server.Set("theme.mode", "light"))
	require.NoError(t, server.Set("theme.accent", "blue"))
	require.NoError(t, local.Set("study.goal", 45))

	merged, err := MergeSettings(local, server, t0.Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, "dark", merged.Values["theme"]["mode"])
	assert.Equal(t, "blue", merged.Values["theme"]["accent"])
	assert.Equal(t, 45, merged.Values["study"]["goal"])
	assert.Equal(t, t0.Add(time.Second), merged.LastModified)

	local.Values["bogus"] = map[string]any{"x": 1}
	_, err = MergeSettings(local, server, t0)
	assert.ErrorIs(t, err, ErrMergeFailure)
}

func TestApplySettings(t *testing.T) {
	doc := models.NewSettingsDocument("u1", t0)
	require.NoError(t, doc.Set("display.font", "mono"))

	require.NoError(t, ApplySettings(doc, models.Resolution{
		Conflict:      models.Conflict{Field: "theme.mode"},
		ResolvedValue: "dark",
	}))
	v, ok := doc.Get("theme.mode")
	assert.True(t, ok)
	assert.Equal(t, "dark", v)

	require.NoError(t, ApplySettings(doc, models.Resolution{
		Conflict: models.Conflict{Field: "display.font"},
	}))
	_, ok = doc.Get("display.font")
	assert.False(t, ok)

	require.NoError(t, ApplySettings(doc, models.Resolution{
		Conflict: models.Conflict{Field: "theme.mode"},
		Pending:  true,
	}))
	v, _ = doc.Get("theme.mode")
	assert.Equal(t, "dark", v)

	assert.Error(t, ApplySettings(doc, models.Resolution{Conflict: models.Conflict{Field: "nope"}}))
}

func TestApplyProgressFields(t *testing.T) {
	doc := docWithDay("go", 1, t0)
	doc.Streaks.Longest = 4

	require.NoError(t, ApplyProgress(doc, models.Resolution{
		Conflict:      models.Conflict{Field: models.FieldCurrentStreak},
		ResolvedValue: 6,
	}))
	assert.Equal(t, 6, doc.Streaks.Current)
	assert.Equal(t, 6, doc.Streaks.Longest)

	require.NoError(t, ApplyProgress(doc, models.Resolution{
		Conflict:      models.Conflict{Field: models.FieldTotalStudyTime},
		ResolvedValue: int64(3600),
	}))
	assert.Equal(t, int64(3600), doc.Statistics.TotalStudyTime)

	days := map[string]map[int]models.DayCompletion{"sql": {2: {CompletedAt: t0}}}
	require.NoError(t, ApplyProgress(doc, models.Resolution{
		Conflict:      models.Conflict{Field: models.FieldCompletedDays},
		ResolvedValue: days,
	}))
	assert.Empty(t, doc.Tracks["go"].CompletedDays)
	assert.Contains(t, doc.Tracks["sql"].CompletedDays, 2)

	assert.Error(t, ApplyProgress(doc, models.Resolution{
		Conflict:      models.Conflict{Field: models.FieldCurrentStreak},
		ResolvedValue: "six",
	}))
}

func TestApplyProgressGeneralKeepsUnlocked(t *testing.T) {
	now := t0
	doc := models.NewProgressDocument("local-user", t0)
	doc.Achievements["first_day"] = models.Achievement{Unlocked: true, UnlockedAt: &now}

	server := models.NewProgressDocument("server-user", t0)
	server.Streaks.Current = 2
	server.Streaks.Longest = 2

	require.NoError(t, ApplyProgress(doc, models.Resolution{
		Conflict:      models.Conflict{Field: models.FieldGeneral},
		ResolvedValue: server,
	}))
	assert.Equal(t, "local-user", doc.UserID)
	assert.Equal(t, 2, doc.Streaks.Current)
	assert.True(t, doc.Achievements["first_day"].Unlocked)
}
