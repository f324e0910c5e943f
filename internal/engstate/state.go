// Package engstate holds the in-memory TransientState snapshot of the
// three package sets the engine tracks (installed, roots, reinstall) and
// the StatePersister that flushes them to the on-disk state store,
// keeping the sets consistent across crashes.
package engstate

import "github.com/sourcepm/sourcepm/internal/pkgset"

// TransientState is the in-memory projection of the persisted state that
// the engine mutates as actions complete. It must only be mutated by
// post-install updates serialised through a single writer.
type TransientState struct {
	// Installed maps package name to the installed package.
	Installed map[string]pkgset.Package
	// InstalledRoots is the subset of Installed names the user
	// explicitly requested, always a subset of Installed.
	InstalledRoots map[string]bool
	// Reinstall holds names marked dirty for rebuild on next apply.
	Reinstall map[string]bool
}

// New creates an empty TransientState.
func New() *TransientState {
	return &TransientState{
		Installed:      make(map[string]pkgset.Package),
		InstalledRoots: make(map[string]bool),
		Reinstall:      make(map[string]bool),
	}
}

// Clone returns a deep copy, used to snapshot state for inter-layer reads
// without races against the single-writer mutation path.
func (s *TransientState) Clone() *TransientState {
	c := New()
	for k, v := range s.Installed {
		c.Installed[k] = v
	}
	for k, v := range s.InstalledRoots {
		c.InstalledRoots[k] = v
	}
	for k, v := range s.Reinstall {
		c.Reinstall[k] = v
	}
	return c
}

// MarkInstalled records a successful ToChange/ToRecompile of p: p becomes
// installed and is no longer pending reinstall. If p's name is in
// rootInstallNames it also becomes a root.
func (s *TransientState) MarkInstalled(p pkgset.Package, rootInstallNames map[string]bool) {
	s.Installed[p.Name] = p
	delete(s.Reinstall, p.Name)
	if rootInstallNames[p.Name] {
		s.InstalledRoots[p.Name] = true
	}
}

// MarkDeleted records a successful ToDelete of p: it is removed from all
// three sets.
func (s *TransientState) MarkDeleted(name string) {
	delete(s.Installed, name)
	delete(s.InstalledRoots, name)
	delete(s.Reinstall, name)
}

// IsInstalled reports whether a package name is currently installed.
func (s *TransientState) IsInstalled(name string) bool {
	_, ok := s.Installed[name]
	return ok
}

// CheckInvariants validates the structural invariants that must hold at
// every observable point. Returns a descriptive error on the first
// violation found, or nil.
func (s *TransientState) CheckInvariants() error {
	for root := range s.InstalledRoots {
		if !s.IsInstalled(root) {
			return &InvariantError{Detail: "installed_roots not a subset of installed: " + root}
		}
	}
	return nil
}

// InvariantError reports a violated TransientState invariant.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "state invariant violated: " + e.Detail
}
