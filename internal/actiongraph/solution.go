package actiongraph

import "github.com/sourcepm/sourcepm/internal/pkgset"

// Solution is the solver's output: the set of actions to perform and the
// dependency edges between them.
type Solution struct {
	ToProcess *Graph
}

// PackageNames returns the set of package names touched by the solution,
// used to compare against the requested names for confirmation-skip
// logic.
func (s *Solution) PackageNames() map[string]bool {
	names := make(map[string]bool)
	if s.ToProcess == nil {
		return names
	}
	for _, p := range s.ToProcess.Packages() {
		names[p.Name] = true
	}
	return names
}

// NamesEqual reports whether the solution's package names are exactly the
// given requested set; if so the confirmation prompt is skipped, since
// the user is getting precisely what they asked for.
func (s *Solution) NamesEqual(requested map[string]bool) bool {
	have := s.PackageNames()
	if len(have) != len(requested) {
		return false
	}
	for n := range requested {
		if !have[n] {
			return false
		}
	}
	return true
}

// RequestedNameSet builds the requested-names set from a slice of atoms,
// the typical caller-side shape.
func RequestedNameSet(atoms []pkgset.Atom) map[string]bool {
	out := make(map[string]bool, len(atoms))
	for _, a := range atoms {
		out[a.Name] = true
	}
	return out
}
