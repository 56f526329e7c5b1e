// Package version carries the build version stamped in by the linker.
package version

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Set with -ldflags "-X github.com/orris-inc/subsync/internal/shared/version.Version=1.2.3".
var (
	Version = "dev"
	Commit  = "none"
)

// Normalize ensures version string has "v" prefix for semver compatibility.
// Examples: "1.2.3" -> "v1.2.3", "v1.2.3" -> "v1.2.3"
func Normalize(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		return "v" + version
	}
	return version
}

// IsRelease reports whether v is a valid semantic version rather than a
// development build such as "dev" or a bare commit hash.
func IsRelease(v string) bool {
	return semver.IsValid(Normalize(v))
}

// String returns the canonical build version, e.g. "v1.2.3 (abc1234)".
func String() string {
	v := Version
	if IsRelease(v) {
		v = semver.Canonical(Normalize(v))
	}
	if Commit == "" || Commit == "none" {
		return v
	}
	return v + " (" + Commit + ")"
}
