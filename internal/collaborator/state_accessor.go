package collaborator

import (
	"sync"

	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// Repository describes where a package's manifest/source definitions come
// from. Only a name → label lookup is needed here; repository priority
// and syncing live outside the engine.
type Repository struct {
	Name string
}

// LocalStateAccessor is the shipped StateAccessor: an in-memory manifest
// and pin registry populated by the caller (e.g. from a repository
// checkout or test fixture), backed directly by engstate.TransientState
// for installed-package queries.
type LocalStateAccessor struct {
	mu            sync.RWMutex
	repositories  map[string]Repository
	pinned        map[string]bool
	locallyPinned map[string]bool
	manifests     map[string]PackageManifest
}

// NewLocalStateAccessor creates an empty LocalStateAccessor.
func NewLocalStateAccessor() *LocalStateAccessor {
	return &LocalStateAccessor{
		repositories:  make(map[string]Repository),
		pinned:        make(map[string]bool),
		locallyPinned: make(map[string]bool),
		manifests:     make(map[string]PackageManifest),
	}
}

// RegisterRepository associates a package name with a repository label.
func (a *LocalStateAccessor) RegisterRepository(packageName string, repo Repository) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.repositories[packageName] = repo
}

// SetPinned marks a package name as version-pinned.
func (a *LocalStateAccessor) SetPinned(packageName string, pinned bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pinned[packageName] = pinned
}

// SetLocallyPinned marks a package name as pinned to a local source
// checkout; locally pinned packages are skipped by the Downloader's HTTP
// cache warm-up.
func (a *LocalStateAccessor) SetLocallyPinned(packageName string, pinned bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.locallyPinned[packageName] = pinned
}

// SetManifest registers p's manifest metadata (post-install messages).
func (a *LocalStateAccessor) SetManifest(packageName string, m PackageManifest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.manifests[packageName] = m
}

// FindRepository returns the repository label registered for name, if any.
func (a *LocalStateAccessor) FindRepository(name string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	repo, ok := a.repositories[name]
	return repo.Name, ok
}

// PackageIndex returns every currently installed package in st.
func (a *LocalStateAccessor) PackageIndex(st *engstate.TransientState) []pkgset.Package {
	pkgs := make([]pkgset.Package, 0, len(st.Installed))
	for _, p := range st.Installed {
		pkgs = append(pkgs, p)
	}
	return pkgs
}

// IsPinned reports whether name is version-pinned.
func (a *LocalStateAccessor) IsPinned(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pinned[name]
}

// IsLocallyPinned reports whether name is pinned to a local checkout.
func (a *LocalStateAccessor) IsLocallyPinned(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.locallyPinned[name]
}

// Manifest returns p's registered manifest metadata, if any.
func (a *LocalStateAccessor) Manifest(p pkgset.Package) (PackageManifest, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.manifests[p.Name]
	return m, ok
}
