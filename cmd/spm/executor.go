package main

import (
	"context"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// compositeExecutor delegates build/install/remove to a LocalExecutor and
// source fetching to a SourceDownloader, since the engine's
// ActionExecutor contract bundles both concerns but this repo ships them
// as two focused collaborators.
type compositeExecutor struct {
	*collaborator.LocalExecutor
	downloader *collaborator.SourceDownloader
	sources    map[string]pkgset.Source
}

func (e *compositeExecutor) DownloadPackage(ctx context.Context, st *engstate.TransientState, p pkgset.Package) (string, error) {
	src, ok := e.sources[p.Name]
	if !ok {
		return "", nil
	}
	return e.downloader.Fetch(ctx, p, src)
}

// WarmCachedSource primes the download cache for p's source ahead of the
// parallel fetch stage.
func (e *compositeExecutor) WarmCachedSource(ctx context.Context, st *engstate.TransientState, p pkgset.Package) error {
	src, ok := e.sources[p.Name]
	if !ok {
		return nil
	}
	return e.downloader.WarmCache(ctx, p, src)
}

// SourcesNeeded restricts the embedded LocalExecutor's marker-file check
// to installs and recompiles; deletions need no sources.
func (e *compositeExecutor) SourcesNeeded(st *engstate.TransientState, sol *actiongraph.Solution) []pkgset.Package {
	g := actiongraph.New()
	for _, p := range sol.ToProcess.Packages() {
		node, ok := sol.ToProcess.Node(actiongraph.NodeID(p.Name))
		if !ok || node.Action.Kind == actiongraph.ToDelete {
			continue
		}
		g.AddAction(node.Action)
	}
	return e.LocalExecutor.SourcesNeeded(st, &actiongraph.Solution{ToProcess: g})
}
