package apply

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// Downloader is the pre-stage that fetches sources for every package the
// plan will touch, under bounded parallelism, before any on-disk mutation
// happens.
type Downloader struct {
	Executor      collaborator.ActionExecutor
	DownloadJobs  int
	StateAccessor collaborator.StateAccessor
}

// NewDownloader creates a Downloader bounded by downloadJobs concurrent
// fetches (minimum 1).
func NewDownloader(executor collaborator.ActionExecutor, downloadJobs int, accessor collaborator.StateAccessor) *Downloader {
	if downloadJobs < 1 {
		downloadJobs = 1
	}
	return &Downloader{Executor: executor, DownloadJobs: downloadJobs, StateAccessor: accessor}
}

// ErrDownloadMiss is returned by Run when at least one package's source
// fetch returned no artifact; the whole apply then fails before any
// action is attempted.
var ErrDownloadMiss = collaborator.NewInternalError("one or more package sources could not be fetched")

// CacheWarmer is implemented by executors that can prime a package's
// source cache ahead of the real fetch, e.g. by probing the archive URL
// so an unreachable mirror surfaces before the parallel stage spins up.
// The warm-up is an optimisation, not a correctness gate.
type CacheWarmer interface {
	WarmCachedSource(ctx context.Context, st *engstate.TransientState, p pkgset.Package) error
}

// Run fetches every source sol's Remover/Scheduler stages will need.
// dryRun suppresses the all-or-nothing miss check.
func (d *Downloader) Run(ctx context.Context, st *engstate.TransientState, sol *actiongraph.Solution, dryRun bool) error {
	needed := d.Executor.SourcesNeeded(st, sol)
	if len(needed) == 0 {
		return nil
	}

	d.warmHTTPCache(ctx, st, needed)

	sem := semaphore.NewWeighted(int64(d.DownloadJobs))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var miss bool
	var firstErr error

	for _, p := range needed {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			artifact, err := d.Executor.DownloadPackage(ctx, st, p)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if firstErr == nil {
					firstErr = err
				}
			case artifact == "":
				miss = true
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if miss && !dryRun {
		return ErrDownloadMiss
	}
	return nil
}

// warmHTTPCache runs the best-effort cache warm-up for packages that are
// not locally pinned, when the executor supports it. Failures are logged
// at debug level and otherwise ignored; the real fetch in Run is the
// correctness gate.
func (d *Downloader) warmHTTPCache(ctx context.Context, st *engstate.TransientState, packages []pkgset.Package) {
	warmer, ok := d.Executor.(CacheWarmer)
	if !ok || d.StateAccessor == nil {
		return
	}
	for _, p := range packages {
		if d.StateAccessor.IsLocallyPinned(p.Name) {
			continue
		}
		if err := warmer.WarmCachedSource(ctx, st, p); err != nil {
			slog.Debug("cache warm-up failed, proceeding without it", "package", p.String(), "err", err)
		}
	}
}
