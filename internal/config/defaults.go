package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseDir: DefaultBaseDir(),

		API: APIConfig{
			Timeout:       10 * time.Second,
			RatePerMinute: 60,
			MaxRetries:    3,
		},

		Sync: SyncConfig{
			AutoInterval:      5 * time.Minute,
			MaxAttempts:       3,
			ConflictThreshold: 5 * time.Second,
			ProgressStrategy:  "merge_latest_wins",
			SettingsStrategy:  "user_choice",
		},

		Tracker: TrackerConfig{
			TrackDays: 30,
		},
	}
}
