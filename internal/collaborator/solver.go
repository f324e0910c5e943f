package collaborator

import (
	"context"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// DirectSolver is the shipped Solver: it translates requested atoms
// directly into ToChange actions against the current state, without
// dependency expansion. Real constraint solving belongs to an external
// solver; this is enough to drive the engine end to end and to back the
// CLI's `plan` subcommand for atoms that name an exact, already-resolved
// version.
type DirectSolver struct {
	// Index supplies the known version for an atom's name when the atom
	// itself does not pin one (e.g. a bare "foo" request resolves to the
	// latest known version of foo).
	Index func(name string) (pkgset.Package, bool)
}

// NewDirectSolver creates a DirectSolver backed by the given package
// index lookup.
func NewDirectSolver(index func(name string) (pkgset.Package, bool)) *DirectSolver {
	return &DirectSolver{Index: index}
}

// Resolve builds a Solution from request: an install/upgrade/downgrade
// ToChange action per atom not already satisfied by the current state,
// with no edges between them (a flat, dependency-free graph). Atoms that
// cannot be resolved against the index yield ErrNoSolution.
func (s *DirectSolver) Resolve(ctx context.Context, st *engstate.TransientState, request []pkgset.Atom) (*actiongraph.Solution, error) {
	g := actiongraph.New()

	for _, atom := range request {
		target, ok := s.resolveAtom(atom)
		if !ok {
			return nil, ErrNoSolution
		}

		current, installed := st.Installed[target.Name]
		if installed && current.Equal(target) && !st.Reinstall[target.Name] {
			continue // already satisfied, nothing to do
		}

		var previous *pkgset.Package
		if installed {
			c := current
			previous = &c
		}
		g.AddAction(actiongraph.Action{Kind: actiongraph.ToChange, Previous: previous, Target: target})
	}

	return &actiongraph.Solution{ToProcess: g}, nil
}

func (s *DirectSolver) resolveAtom(atom pkgset.Atom) (pkgset.Package, bool) {
	if atom.Constraint != nil && atom.Constraint.Op == pkgset.OpEqual {
		return pkgset.Package{Name: atom.Name, Version: atom.Constraint.Version}, true
	}
	if s.Index == nil {
		return pkgset.Package{}, false
	}
	candidate, ok := s.Index(atom.Name)
	if !ok {
		return pkgset.Package{}, false
	}
	if atom.Constraint != nil {
		ok, err := atom.Constraint.Satisfies(candidate.Version)
		if err != nil || !ok {
			return pkgset.Package{}, false
		}
	}
	return candidate, true
}
