// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// These are set via ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info returns a one-line description of the build.
func Info() string {
	commitShort := Commit
	if len(commitShort) > 7 {
		commitShort = commitShort[:7]
	}
	return fmt.Sprintf(
		"prepsync %s (%s) built on %s with %s",
		Version,
		commitShort,
		BuildDate,
		runtime.Version(),
	)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// UserAgent is sent with every request to the progress API.
func UserAgent() string {
	ua := fmt.Sprintf("prepsync/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
	switch {
	case IsDevBuild():
		ua += " dev"
	case IsPrerelease():
		ua += " prerelease"
	}
	return ua
}
