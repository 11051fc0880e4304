package version

import (
	"github.com/Masterminds/semver/v3"
)

var (
	parsedVersion  *semver.Version
	parsedFrom     string
	parseAttempted bool
)

// resetParsedVersion clears the cached parsed version for testing.
func resetParsedVersion() {
	parsedVersion = nil
	parsedFrom = ""
	parseAttempted = false
}

// Parsed returns the parsed build version, or nil for builds like "dev".
// The result is cached until Version changes.
func Parsed() *semver.Version {
	if parseAttempted && parsedFrom == Version {
		return parsedVersion
	}
	parseAttempted = true
	parsedFrom = Version
	parsedVersion = nil

	v, err := semver.NewVersion(Version)
	if err != nil {
		return nil
	}
	parsedVersion = v
	return parsedVersion
}

// IsDevBuild returns true if this is a development build (no valid semver).
func IsDevBuild() bool {
	return Parsed() == nil
}

// IsPrerelease returns true for versions such as v1.2.0-rc.1.
func IsPrerelease() bool {
	v := Parsed()
	return v != nil && v.Prerelease() != ""
}

// Compare returns -1, 0 or 1 comparing the build version to other.
// Unparseable versions on either side compare equal.
func Compare(other string) int {
	current := Parsed()
	if current == nil {
		return 0
	}
	otherV, err := semver.NewVersion(other)
	if err != nil {
		return 0
	}
	return current.Compare(otherV)
}

// IsOlderThan reports whether the build is strictly older than minimum.
// Dev builds are never considered older.
func IsOlderThan(minimum string) bool {
	return Compare(minimum) < 0
}

// Satisfies reports whether the build version meets a constraint such as
// ">= 1.2, < 2". Dev builds satisfy every constraint.
func Satisfies(constraint string) bool {
	current := Parsed()
	if current == nil {
		return true
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Check(current)
}
