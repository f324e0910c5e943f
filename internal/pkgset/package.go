// Package pkgset defines the package identity and atom data model shared
// across the solver, the state store, and the application engine.
package pkgset

import (
	"fmt"
	"strings"
)

// Package identifies a single installable unit by name and version.
// Name comparisons for user input are case-insensitive, but the
// canonical capitalisation supplied by the package universe is what
// gets stored and displayed.
type Package struct {
	Name    string
	Version string
}

// String renders the package as "name.version", matching the audit log
// and report formatting conventions used throughout the engine.
func (p Package) String() string {
	if p.Version == "" {
		return p.Name
	}
	return fmt.Sprintf("%s.%s", p.Name, p.Version)
}

// Equal reports whether two packages have the same name and version.
// Name comparison is case-insensitive; version comparison is exact.
func (p Package) Equal(other Package) bool {
	return strings.EqualFold(p.Name, other.Name) && p.Version == other.Version
}

// CanonicalName looks up the canonical capitalisation of a name within a
// set of known names, matching case-insensitively. If exactly one known
// name matches, that canonical form is returned. If zero or more than one
// match, the input is returned unchanged (ambiguous case-insensitive
// matches must not be silently resolved).
func CanonicalName(input string, known []string) string {
	var match string
	count := 0
	for _, k := range known {
		if strings.EqualFold(k, input) {
			match = k
			count++
		}
	}
	if count == 1 {
		return match
	}
	return input
}
