// Package version implements the platform's inter-version
// compatibility rule, built on Masterminds/semver, the same semver
// library family the broader example corpus favors for Go version
// handling.
package version

import "github.com/Masterminds/semver/v3"

// Compatible reports whether x is compatible with y: major versions
// must match, and when major is 0, minor versions must also match.
// Build metadata is always ignored (semver.Version already excludes
// it from Compare/Equal comparisons that matter here).
func Compatible(x, y *semver.Version) bool {
	if x.Major() != y.Major() {
		return false
	}
	if x.Major() == 0 && x.Minor() != y.Minor() {
		return false
	}
	return true
}
