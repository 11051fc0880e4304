// Package cli provides the command-line interface for prepsync.
package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/asteroid-belt/prepsync/internal/conflict"
	"github.com/asteroid-belt/prepsync/internal/db"
	"github.com/asteroid-belt/prepsync/internal/remote"
	"github.com/asteroid-belt/prepsync/internal/syncqueue"
	"github.com/asteroid-belt/prepsync/internal/tracker"
	"github.com/asteroid-belt/prepsync/pkg/version"
)

// Global flags
var (
	flagOffline bool
	flagUser    string
)

var rootCmd = &cobra.Command{
	Use:   "prepsync",
	Short: "Offline-first study progress tracker",
	Long: `Offline-first study progress tracker

Records interview-prep study activity locally, keeps streaks, statistics
and achievements up to date, and reconciles them with the progress
service whenever it is reachable.

Remote backend:
  PREPSYNC_API_URL      sync with the HTTP progress API
  PREPSYNC_SYNC_BLOB_DIR  sync with a directory of JSON blobs
  (neither)             offline-only; changes stay queued locally`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "Do not contact the progress service")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "User id (overrides config; empty means anonymous)")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(clearCmd)
}

// Execute runs the CLI with fang enhancements.
func Execute(ctx context.Context) error {
	return fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(version.Short()),
		fang.WithCommit(version.Commit),
	)
}

// classifyError maps an error to a short label for display.
func classifyError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tracker.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, db.ErrStorageUnavailable):
		return "storage_error"
	case errors.Is(err, remote.ErrClientTooOld):
		return "client_too_old"
	case errors.Is(err, remote.ErrPushFailed):
		return "push_error"
	case errors.Is(err, remote.ErrNetworkUnavailable):
		return "network_error"
	case errors.Is(err, conflict.ErrMergeFailure):
		return "merge_error"
	case errors.Is(err, conflict.ErrConflictNotFound), errors.Is(err, conflict.ErrInvalidChoice):
		return "conflict_error"
	case errors.Is(err, syncqueue.ErrMaxRetriesExceeded):
		return "retries_exhausted"
	}

	errStr := err.Error()
	switch {
	case containsAny(errStr, "config", "configuration"):
		return "config_error"
	case containsAny(errStr, "database", "db"):
		return "database_error"
	case containsAny(errStr, "network", "timeout", "connection"):
		return "network_error"
	case containsAny(errStr, "invalid", "parse", "format"):
		return "validation_error"
	default:
		return "unknown_error"
	}
}

// containsAny checks if s contains any of the substrings (case-insensitive).
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
