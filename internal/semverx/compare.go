// Package semverx wraps Masterminds/semver for package version ordering,
// falling back to lexical comparison for versions that are not valid
// semver (package managers in this family routinely carry non-semver
// version strings, e.g. "1.2.3~beta").
package semverx

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Compare returns -1, 0, or 1 depending on whether a is less than, equal
// to, or greater than b. Both versions are parsed as semver when
// possible; if either fails to parse, the comparison falls back to a
// case-sensitive lexical ordering so that ToChange direction (upgrade vs
// downgrade) is still well defined.
func Compare(a, b string) (int, error) {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb), nil
	}
	return strings.Compare(a, b), nil
}

// IsUpgrade reports whether target is a newer version than previous.
func IsUpgrade(previous, target string) bool {
	cmp, _ := Compare(previous, target)
	return cmp < 0
}

// IsDowngrade reports whether target is an older version than previous.
func IsDowngrade(previous, target string) bool {
	cmp, _ := Compare(previous, target)
	return cmp > 0
}
