package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/prepsync/internal/testutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Sync.ConflictThreshold)
	assert.Equal(t, "merge_latest_wins", cfg.Sync.ProgressStrategy)
	assert.Equal(t, "user_choice", cfg.Sync.SettingsStrategy)
	assert.Equal(t, 30, cfg.Tracker.TrackDays)
	assert.Empty(t, cfg.API.URL) // Offline-only by default
	assert.NoError(t, cfg.Validate())
}

func TestLoadHomeOverride(t *testing.T) {
	home := testutil.Isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, home, cfg.BaseDir)
	assert.DirExists(t, GetPaths(cfg).Logs)
	assert.Equal(t, filepath.Join(home, "prepsync.db"), GetPaths(cfg).Database)
}

func TestLoadFromEnv(t *testing.T) {
	testutil.Isolate(t)
	t.Setenv("PREPSYNC_API_URL", "https://prep.example.com/")
	t.Setenv("PREPSYNC_API_TOKEN", "tok")
	t.Setenv("PREPSYNC_SYNC_MAX_ATTEMPTS", "5")
	t.Setenv("PREPSYNC_SYNC_CONFLICT_THRESHOLD", "10s")
	t.Setenv("PREPSYNC_USER_ID", "alice")
	t.Setenv("PREPSYNC_LOG_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://prep.example.com", cfg.API.URL)
	assert.Equal(t, "tok", cfg.API.Token)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Sync.ConflictThreshold)
	assert.Equal(t, "alice", cfg.UserID)
	assert.True(t, cfg.Debug)
}

func TestLoadFromFile(t *testing.T) {
	home := testutil.Isolate(t)
	yaml := `api:
  url: http://localhost:8080
  rate_per_minute: 10
sync:
  progress_strategy: merge_both
  blob_dir: /tmp/blobs
tracker:
  track_days: 45
`
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.URL)
	assert.Equal(t, 10, cfg.API.RatePerMinute)
	assert.Equal(t, "merge_both", cfg.Sync.ProgressStrategy)
	assert.Equal(t, "/tmp/blobs", cfg.Sync.BlobDir)
	assert.Equal(t, 45, cfg.Tracker.TrackDays)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
}

func TestEnvOverridesFile(t *testing.T) {
	home := testutil.Isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("user:\n  id: from-file\n"), 0644))
	t.Setenv("PREPSYNC_USER_ID", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.UserID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	testutil.Isolate(t)
	t.Setenv("PREPSYNC_SYNC_MAX_ATTEMPTS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	home := testutil.Isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("api: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestDefaultBaseDir(t *testing.T) {
	assert.Equal(t, "prepsync", filepath.Base(DefaultBaseDir()))
}
