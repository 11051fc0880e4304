package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/prepsync/internal/config"
	"github.com/asteroid-belt/prepsync/internal/conflict"
	"github.com/asteroid-belt/prepsync/internal/db"
	"github.com/asteroid-belt/prepsync/internal/log"
	"github.com/asteroid-belt/prepsync/internal/models"
	"github.com/asteroid-belt/prepsync/internal/notify"
	"github.com/asteroid-belt/prepsync/internal/remote"
	"github.com/asteroid-belt/prepsync/internal/syncqueue"
	"github.com/asteroid-belt/prepsync/internal/testutil"
	"github.com/asteroid-belt/prepsync/internal/tracker"
)

func resetFlags() {
	flagOffline = false
	flagUser = ""
	trackTasks = nil
	trackDuration = 0
	trackMeta = nil
	syncInteractive = false
	watchInterval = 0
	clearYes = false
}

// execute runs the root command with args and returns everything it printed.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// useEnv points config at fresh directories. Without blobs the CLI is
// offline-only.
func useEnv(t *testing.T, user string, withBlobs bool) string {
	t.Helper()
	testutil.SkipShort(t)
	testutil.Isolate(t)
	t.Setenv("PREPSYNC_USER_ID", user)
	blobDir := ""
	if withBlobs {
		blobDir = t.TempDir()
		t.Setenv("PREPSYNC_SYNC_BLOB_DIR", blobDir)
	}
	t.Cleanup(func() { _ = log.Close() })
	return blobDir
}

func TestRootCmd_Structure(t *testing.T) {
	assert.Equal(t, "prepsync", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	var names []string
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	for _, want := range []string{"status", "track", "settings", "sync", "queue", "watch", "clear"} {
		assert.Contains(t, names, want)
	}
}

func TestTrackCmd_HasSubcommands(t *testing.T) {
	var names []string
	for _, cmd := range trackCmd.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"day", "question", "session"}, names)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{fmt.Errorf("fetch: %w", remote.ErrNetworkUnavailable), "network_error"},
		{fmt.Errorf("push: %w", remote.ErrPushFailed), "push_error"},
		{remote.ErrClientTooOld, "client_too_old"},
		{db.ErrStorageUnavailable, "storage_error"},
		{tracker.ErrNotInitialized, "not_initialized"},
		{conflict.ErrMergeFailure, "merge_error"},
		{conflict.ErrConflictNotFound, "conflict_error"},
		{syncqueue.ErrMaxRetriesExceeded, "retries_exhausted"},
		{errors.New("config file not found"), "config_error"},
		{errors.New("connection refused"), "network_error"},
		{errors.New("invalid day"), "validation_error"},
		{errors.New("something else"), "unknown_error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, classifyError(tt.err), "%v", tt.err)
	}
}

func TestParseChoice(t *testing.T) {
	for in, want := range map[string]models.Choice{
		"l\n":     models.ChoiceLocal,
		"LOCAL":   models.ChoiceLocal,
		" s ":     models.ChoiceServer,
		"merge\n": models.ChoiceMerge,
	} {
		got, ok := parseChoice(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := parseChoice("\n")
	assert.False(t, ok)
	_, ok = parseChoice("x")
	assert.False(t, ok)
}

func TestParseSettingValue(t *testing.T) {
	assert.Equal(t, "dark", parseSettingValue("dark"))
	assert.Equal(t, true, parseSettingValue("true"))
	assert.Equal(t, float64(3), parseSettingValue("3"))
	assert.Equal(t, map[string]any{"a": "b"}, parseSettingValue(`{"a":"b"}`))
}

func TestParseMetadata(t *testing.T) {
	meta, err := parseMetadata([]string{"company=acme", "round=2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"company": "acme", "round": "2"}, meta)

	meta, err = parseMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = parseMetadata([]string{"broken"})
	assert.Error(t, err)
}

func TestNewService_Selection(t *testing.T) {
	cfg := config.DefaultConfig()
	svc, err := newService(cfg)
	require.NoError(t, err)
	assert.Nil(t, svc)

	cfg.Sync.BlobDir = t.TempDir()
	svc, err = newService(cfg)
	require.NoError(t, err)
	assert.IsType(t, &remote.FileService{}, svc)

	cfg.API.URL = "https://prep.example.com"
	svc, err = newService(cfg)
	require.NoError(t, err)
	assert.IsType(t, &remote.HTTPService{}, svc)

	cfg.API.URL = "not a url"
	_, err = newService(cfg)
	assert.Error(t, err)
}

func TestStrategiesFromConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig()
	cfg.Sync.ProgressStrategy = "merge_both"
	cfg.Sync.SettingsStrategy = "coin_flip"

	got := strategiesFromConfig(cfg, log.NewWriter(&buf))

	assert.Equal(t, models.StrategyMergeBoth, got[models.DataProgress])
	assert.Equal(t, models.Strategy("coin_flip"), got[models.DataSettings])
	assert.Contains(t, buf.String(), "unknown settings strategy")
}

func TestRenderStatus(t *testing.T) {
	now := time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)
	doc := models.NewProgressDocument("alice", now)
	doc.Streaks.Current = 3
	doc.Streaks.Longest = 5
	doc.Statistics.TotalStudyTime = 5400
	doc.Achievements = map[string]models.Achievement{
		"first_day":   {Unlocked: true, UnlockedAt: &now},
		"week_streak": {},
	}

	var buf bytes.Buffer
	renderStatus(&buf, tracker.Status{
		UserID:           "alice",
		Online:           true,
		Queue:            syncqueue.Status{Count: 2, OldestItemTimestamp: now},
		PendingConflicts: 1,
		LastSyncAt:       now,
		LastSyncStatus:   string(notify.StatusSynced),
	}, doc)

	out := buf.String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "online")
	assert.Contains(t, out, "Queued changes")
	assert.Contains(t, out, "1 awaiting choice")
	assert.Contains(t, out, "3 days")
	assert.Contains(t, out, "1h30m0s")
	assert.Contains(t, out, "first_day")
	assert.NotContains(t, out, "week_streak")
}

func TestRenderSyncResult(t *testing.T) {
	var buf bytes.Buffer
	renderSyncResult(&buf, tracker.SyncResult{
		Progress: tracker.DocumentResult{RemoteFound: true, Conflicts: 2, Applied: 2, Pushed: true},
		Settings: tracker.DocumentResult{Err: fmt.Errorf("fetch settings: %w", remote.ErrNetworkUnavailable)},
		Drain:    syncqueue.DrainResult{Attempted: 3, Succeeded: 2, Failed: 1},
		Status:   notify.StatusFailed,
	})

	out := buf.String()
	assert.Contains(t, out, "progress: 2 conflict(s), 2 applied, pushed")
	assert.Contains(t, out, "[network_error]")
	assert.Contains(t, out, "queue: 2 sent, 1 failed, 0 dropped")
	assert.Contains(t, out, "Status: failed")

	buf.Reset()
	renderSyncResult(&buf, tracker.SyncResult{Offline: true})
	assert.Contains(t, buf.String(), "Offline")
}

func TestRenderQueue(t *testing.T) {
	var buf bytes.Buffer
	renderQueue(&buf, nil)
	assert.Contains(t, buf.String(), "Nothing queued.")

	buf.Reset()
	renderQueue(&buf, []models.SyncQueueItem{{
		ID: 7, Type: "progress", Operation: "day_completion", Priority: 2,
		Attempts: 1, MaxAttempts: 3, LastError: "network unavailable",
	}})
	out := buf.String()
	assert.Contains(t, out, "QUEUED CHANGES")
	assert.Contains(t, out, "day_completion")
	assert.Contains(t, out, "attempts 1/3")
	assert.Contains(t, out, "network unavailable")
}

func TestFormatEvent(t *testing.T) {
	assert.Contains(t, formatEvent(notify.Event{
		Type:        notify.EventAchievementUnlocked,
		Achievement: &models.Achievement{Title: "Day One"},
	}), "Achievement unlocked: Day One")

	assert.Contains(t, formatEvent(notify.Event{
		Type:     notify.EventConflictRequiresChoice,
		Conflict: &models.Conflict{DataType: models.DataSettings, Field: "theme.mode"},
	}), "settings theme.mode")

	assert.Contains(t, formatEvent(notify.Event{
		Type:    notify.EventSyncItemDropped,
		Item:    &models.SyncQueueItem{Operation: "session_time"},
		Message: "max retries exceeded",
	}), "Gave up syncing session_time")
}

func TestSummarize(t *testing.T) {
	assert.Contains(t, summarize(nil), "unset")
	assert.Equal(t, "dark", summarize("dark"))
	assert.Equal(t, "2 completed days", summarize(map[string]map[int]models.DayCompletion{
		"dsa": {1: {}, 2: {}},
	}))
	assert.True(t, strings.HasSuffix(summarize(strings.Repeat("x", 100)), "..."))
}

func TestCLI_OfflineOnly(t *testing.T) {
	useEnv(t, "bob", false)

	out, err := execute(t, "", "track", "question", "two-sum", "arrays", "--time", "10m")
	require.NoError(t, err)
	assert.Contains(t, out, "studied two-sum (arrays)")
	assert.Contains(t, out, "Achievement unlocked: First Question")
	assert.Contains(t, out, "1 change(s) queued for sync")

	out, err = execute(t, "", "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "question_studied")

	out, err = execute(t, "", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "No progress service configured")

	_, err = execute(t, "", "watch")
	assert.Error(t, err)
}

func TestCLI_TrackAndSyncWithBlobStore(t *testing.T) {
	blobDir := useEnv(t, "alice", true)
	ctx := context.Background()

	out, err := execute(t, "", "track", "day", "dsa", "1", "--task", "arrays", "--time", "30m")
	require.NoError(t, err)
	assert.Contains(t, out, "dsa day 1 completed")
	assert.NotContains(t, out, "queued for sync")

	server := remote.NewFileService(blobDir)
	doc, err := server.FetchProgress(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, 1, doc.CompletedDayCount())

	// Offline changes queue up and go out on the next sync.
	_, err = execute(t, "", "--offline", "track", "session", "mock", "--time", "1h", "--meta", "company=acme")
	require.NoError(t, err)
	out, err = execute(t, "", "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "session_time")

	out, err = execute(t, "", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "SYNCING")
	assert.Contains(t, out, "Status: synced")

	out, err = execute(t, "", "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing queued.")

	doc, err = server.FetchProgress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(90*60), doc.Statistics.TotalStudyTime)

	out, err = execute(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "online")
	assert.Contains(t, out, "up to date")
	assert.Contains(t, out, "LOCAL STORE")
	assert.Contains(t, out, "progress")
}

func TestCLI_Settings(t *testing.T) {
	useEnv(t, "carol", false)

	out, err := execute(t, "", "settings", "set", "theme.mode", "dark")
	require.NoError(t, err)
	assert.Contains(t, out, "theme.mode = dark")

	_, err = execute(t, "", "settings", "set", "study.daily_goal", "3")
	require.NoError(t, err)

	out, err = execute(t, "", "settings", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "theme.mode")
	assert.Contains(t, out, "dark")
	assert.Contains(t, out, "study.daily_goal")

	_, err = execute(t, "", "settings", "set", "bogus.key", "1")
	assert.Error(t, err)
}

func TestCLI_Clear(t *testing.T) {
	useEnv(t, "dave", false)

	_, err := execute(t, "", "track", "question", "lru-cache", "design")
	require.NoError(t, err)

	out, err := execute(t, "n\n", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")

	out, err = execute(t, "", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "1 queued change(s) discarded")

	out, err = execute(t, "", "queue")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing queued.")
}

func TestCLI_TrackDayRejectsBadDay(t *testing.T) {
	useEnv(t, "erin", false)

	_, err := execute(t, "", "track", "day", "dsa", "zero")
	assert.Error(t, err)
	_, err = execute(t, "", "track", "day", "dsa", "0")
	assert.Error(t, err)
}
