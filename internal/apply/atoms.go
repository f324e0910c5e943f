package apply

import (
	"fmt"

	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// AvailabilityMode selects which package universe an atom is checked
// against.
type AvailabilityMode int

const (
	// ModeStrict checks against available_packages ∪ installed.
	ModeStrict AvailabilityMode = iota
	// ModePermissive checks against all_packages ∪ installed.
	ModePermissive
)

// Diagnostic reports why an atom could not be sanitised/satisfied.
type Diagnostic struct {
	Atom   pkgset.Atom
	Reason string
}

// UnknownPackage is the diagnostic kind for an atom naming no known
// package at all.
const UnknownPackage = "unknown_package"

// UnavailableReason is the diagnostic kind for an atom naming a known
// package whose constraint matches no available version.
const UnavailableReason = "unavailable_reason"

// Universe supplies the package name/version sets atom sanitisation and
// the availability check need.
type Universe struct {
	// KnownNames is every package name the universe knows of, used for
	// canonical-capitalisation lookup.
	KnownNames []string
	// Versions maps a canonical package name to every version available
	// under the current mode (available or all, already resolved by the
	// caller) plus installed.
	Versions map[string][]string
}

// Sanitise rewrites each atom's name to its canonical capitalisation via
// case-insensitive lookup; ambiguous matches (zero or more than one) keep
// the user-supplied form.
func Sanitise(atoms []pkgset.Atom, universe Universe) []pkgset.Atom {
	out := make([]pkgset.Atom, len(atoms))
	for i, a := range atoms {
		canonical := pkgset.CanonicalName(a.Name, universe.KnownNames)
		out[i] = pkgset.Atom{Name: canonical, Constraint: a.Constraint}
	}
	return out
}

// CheckAvailability validates every atom against the universe and returns
// a diagnostic for each atom that cannot be satisfied. An empty result
// means every atom is satisfiable.
func CheckAvailability(atoms []pkgset.Atom, universe Universe) []Diagnostic {
	var diags []Diagnostic
	for _, a := range atoms {
		versions, known := universe.Versions[a.Name]
		if !known {
			diags = append(diags, Diagnostic{Atom: a, Reason: UnknownPackage})
			continue
		}
		if !anyVersionMatches(a, versions) {
			diags = append(diags, Diagnostic{Atom: a, Reason: UnavailableReason})
		}
	}
	return diags
}

func anyVersionMatches(a pkgset.Atom, versions []string) bool {
	if a.Constraint == nil {
		return len(versions) > 0
	}
	for _, v := range versions {
		if ok, err := a.Matches(v); err == nil && ok {
			return true
		}
	}
	return false
}

// ErrUnsatisfiedAtoms is returned when CheckAvailability produced any
// diagnostics; callers map it to the unsatisfiable-atoms exit code.
func ErrUnsatisfiedAtoms(diags []Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	return fmt.Errorf("unsatisfied atoms: %d package(s) could not be resolved (%s, ...)", len(diags), diags[0].Atom.String())
}
