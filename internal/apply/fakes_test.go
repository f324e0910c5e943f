package apply

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// fakeExecutor is a minimal in-memory ActionExecutor for exercising the
// Downloader/Remover/Scheduler stages without shelling out.
type fakeExecutor struct {
	mu           sync.Mutex
	failBuild    map[string]bool
	failRemove   map[string]bool
	missDownload map[string]bool
	built        []string
	removed      []string
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		failBuild:    map[string]bool{},
		failRemove:   map[string]bool{},
		missDownload: map[string]bool{},
	}
}

func (f *fakeExecutor) BuildAndInstall(ctx context.Context, st *engstate.TransientState, p pkgset.Package, metadata bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBuild[p.Name] {
		return errors.New("build failed: " + p.Name)
	}
	f.built = append(f.built, p.Name)
	return nil
}

func (f *fakeExecutor) RemoveAllPackages(ctx context.Context, st *engstate.TransientState, sol *actiongraph.Solution) ([]pkgset.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted []pkgset.Package
	var firstErr error
	for _, p := range collaborator.RemovalTargets(sol) {
		if f.failRemove[p.Name] {
			if firstErr == nil {
				firstErr = errors.New("remove failed: " + p.Name)
			}
			continue
		}
		f.removed = append(f.removed, p.Name)
		deleted = append(deleted, p)
	}
	return deleted, firstErr
}

func (f *fakeExecutor) CleanupPackageArtefacts(ctx context.Context, st *engstate.TransientState, p pkgset.Package) error {
	return nil
}

func (f *fakeExecutor) InstallMetadata(ctx context.Context, st *engstate.TransientState, p pkgset.Package) error {
	return nil
}

func (f *fakeExecutor) DownloadPackage(ctx context.Context, st *engstate.TransientState, p pkgset.Package) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missDownload[p.Name] {
		return "", nil
	}
	return "/tmp/" + p.Name, nil
}

func (f *fakeExecutor) SourcesNeeded(st *engstate.TransientState, sol *actiongraph.Solution) []pkgset.Package {
	return sol.ToProcess.Packages()
}

func changeAction(name string) actiongraph.Action {
	return actiongraph.Action{Kind: actiongraph.ToChange, Target: pkgset.Package{Name: name, Version: "1"}}
}

func newPersister(t *testing.T) *engstate.StatePersister {
	t.Helper()
	store, err := engstate.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Lock(); err != nil {
		t.Fatalf("lock store: %v", err)
	}
	t.Cleanup(func() { store.Unlock() })
	state, err := store.Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	return engstate.NewStatePersister(store, state)
}
