// Package config handles application configuration management.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (PREPSYNC_API_URL, ...).
const EnvPrefix = "PREPSYNC"

// Config holds all application configuration.
type Config struct {
	// Base directory for all prepsync data ($XDG_DATA_HOME/prepsync)
	BaseDir string

	// Remote progress API settings
	API APIConfig

	// Sync and conflict settings
	Sync SyncConfig

	// Tracker settings
	Tracker TrackerConfig

	// UserID is the authenticated user. Empty means anonymous.
	UserID string

	// Debug enables debug logging.
	Debug bool
}

// APIConfig holds the HTTP progress service settings.
type APIConfig struct {
	URL           string
	Token         string
	Timeout       time.Duration
	RatePerMinute int
	MaxRetries    int
}

// SyncConfig holds queue and conflict resolution settings.
type SyncConfig struct {
	AutoInterval      time.Duration
	MaxAttempts       int
	ConflictThreshold time.Duration
	ProgressStrategy  string
	SettingsStrategy  string

	// BlobDir selects the file-backed blob store when no API URL is set.
	BlobDir string
}

// TrackerConfig holds progress tracker settings.
type TrackerConfig struct {
	// TrackDays is the number of days in one study track.
	TrackDays int
}

// Load reads configuration from an optional .env file, an optional
// config.yaml in the base directory and PREPSYNC_* environment variables,
// in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()
	if home := os.Getenv(EnvPrefix + "_HOME"); home != "" {
		cfg.BaseDir = home
	}

	v := newViper(cfg)
	path := GetPaths(cfg).Config
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	apply(v, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure directories exist
	if err := ensureDirectories(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newViper binds every known key with its default so AutomaticEnv can
// resolve it.
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.url", cfg.API.URL)
	v.SetDefault("api.token", cfg.API.Token)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.rate_per_minute", cfg.API.RatePerMinute)
	v.SetDefault("api.max_retries", cfg.API.MaxRetries)
	v.SetDefault("sync.auto_interval", cfg.Sync.AutoInterval)
	v.SetDefault("sync.max_attempts", cfg.Sync.MaxAttempts)
	v.SetDefault("sync.conflict_threshold", cfg.Sync.ConflictThreshold)
	v.SetDefault("sync.progress_strategy", cfg.Sync.ProgressStrategy)
	v.SetDefault("sync.settings_strategy", cfg.Sync.SettingsStrategy)
	v.SetDefault("sync.blob_dir", cfg.Sync.BlobDir)
	v.SetDefault("user.id", cfg.UserID)
	v.SetDefault("tracker.track_days", cfg.Tracker.TrackDays)
	v.SetDefault("log.debug", cfg.Debug)
	return v
}

func apply(v *viper.Viper, cfg *Config) {
	cfg.API.URL = strings.TrimRight(v.GetString("api.url"), "/")
	cfg.API.Token = v.GetString("api.token")
	cfg.API.Timeout = v.GetDuration("api.timeout")
	cfg.API.RatePerMinute = v.GetInt("api.rate_per_minute")
	cfg.API.MaxRetries = v.GetInt("api.max_retries")
	cfg.Sync.AutoInterval = v.GetDuration("sync.auto_interval")
	cfg.Sync.MaxAttempts = v.GetInt("sync.max_attempts")
	cfg.Sync.ConflictThreshold = v.GetDuration("sync.conflict_threshold")
	cfg.Sync.ProgressStrategy = v.GetString("sync.progress_strategy")
	cfg.Sync.SettingsStrategy = v.GetString("sync.settings_strategy")
	cfg.Sync.BlobDir = v.GetString("sync.blob_dir")
	cfg.UserID = v.GetString("user.id")
	cfg.Tracker.TrackDays = v.GetInt("tracker.track_days")
	cfg.Debug = v.GetBool("log.debug")
}

// Validate rejects values the sync layer cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.BaseDir == "":
		return errors.New("config: base dir is empty")
	case c.Sync.MaxAttempts < 1:
		return fmt.Errorf("config: sync.max_attempts must be positive, got %d", c.Sync.MaxAttempts)
	case c.Sync.ConflictThreshold < 0:
		return fmt.Errorf("config: sync.conflict_threshold must not be negative, got %s", c.Sync.ConflictThreshold)
	case c.Tracker.TrackDays < 1:
		return fmt.Errorf("config: tracker.track_days must be positive, got %d", c.Tracker.TrackDays)
	case c.API.RatePerMinute < 0:
		return fmt.Errorf("config: api.rate_per_minute must not be negative, got %d", c.API.RatePerMinute)
	}
	return nil
}

// ensureDirectories creates required directories if they don't exist.
func ensureDirectories(cfg *Config) error {
	paths := GetPaths(cfg)
	for _, dir := range []string{cfg.BaseDir, paths.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
