// Package testutil provides testing utilities.
package testutil

import (
	"os"
	"strings"
	"testing"
)

// Isolate points PREPSYNC_HOME at a fresh temp directory and blanks every
// other PREPSYNC_* variable inherited from the developer's shell, so config
// loaded during a test sees defaults only. It returns the home directory.
func Isolate(t *testing.T) string {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "PREPSYNC_") {
			t.Setenv(key, "")
		}
	}
	home := t.TempDir()
	t.Setenv("PREPSYNC_HOME", home)
	return home
}

// SkipShort skips slow end-to-end tests under -short.
func SkipShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}
}
