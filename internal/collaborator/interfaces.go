package collaborator

import (
	"context"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// ActionExecutor is the per-package collaborator the engine calls out to
// for every node in the action graph: it owns the actual download, build,
// install, and remove of a single package.
type ActionExecutor interface {
	// BuildAndInstall builds and installs p. If metadata is true only the
	// package's metadata is installed (no build).
	BuildAndInstall(ctx context.Context, st *engstate.TransientState, p pkgset.Package, metadata bool) error

	// RemoveAllPackages removes every package sol displaces in one batch
	// and returns those actually deleted, plus an error if any removal
	// failed.
	RemoveAllPackages(ctx context.Context, st *engstate.TransientState, sol *actiongraph.Solution) (deleted []pkgset.Package, err error)

	// CleanupPackageArtefacts removes build byproducts left behind after a
	// package is replaced or deleted.
	CleanupPackageArtefacts(ctx context.Context, st *engstate.TransientState, p pkgset.Package) error

	// InstallMetadata writes only p's manifest metadata into the prefix,
	// without building it.
	InstallMetadata(ctx context.Context, st *engstate.TransientState, p pkgset.Package) error

	// DownloadPackage fetches p's source artifact and returns its local
	// path, or ("", nil) when no artifact was obtained; the Downloader
	// counts that as a miss.
	DownloadPackage(ctx context.Context, st *engstate.TransientState, p pkgset.Package) (artifact string, err error)

	// SourcesNeeded returns the subset of sol's packages that still need a
	// source fetch, used by the Downloader stage.
	SourcesNeeded(st *engstate.TransientState, sol *actiongraph.Solution) []pkgset.Package
}

// Solver resolves a user request against the current state into a
// Solution, or reports that no solution satisfies the constraints. The
// shipped implementation only covers direct atom requests; full
// dependency resolution belongs to an external solver.
type Solver interface {
	Resolve(ctx context.Context, st *engstate.TransientState, request []pkgset.Atom) (*actiongraph.Solution, error)
}

// ErrNoSolution is returned by a Solver when no action graph satisfies
// the request.
var ErrNoSolution = NewInternalError("no solution satisfies the requested packages")

// FilterEvaluator evaluates the small boolean-expression language used in
// post-install messages. Only the success/failure variables are
// supported; this is not a general template evaluator.
type FilterEvaluator interface {
	// Eval evaluates a boolean filter expression against the given
	// success/failure variable bindings.
	Eval(expr string, vars map[string]bool) (bool, error)

	// Substitute expands %{name}% style variables referencing vars in a
	// message string.
	Substitute(message string, vars map[string]bool) (string, error)
}

// StateAccessor exposes the read-only manifest/repository lookups the
// engine needs during solving and messaging.
type StateAccessor interface {
	FindRepository(name string) (repo string, ok bool)
	PackageIndex(st *engstate.TransientState) []pkgset.Package
	IsPinned(name string) bool
	IsLocallyPinned(name string) bool
	Manifest(p pkgset.Package) (PackageManifest, bool)
}

// PackageManifest is the subset of manifest metadata the engine reads
// directly: post-install messages and their filters.
type PackageManifest struct {
	Messages []PostInstallMessage
}

// PostInstallMessage is one post-install message entry, gated by an
// optional filter expression.
type PostInstallMessage struct {
	Text   string
	Filter string // empty means unconditional
}

// Prompter abstracts the interactive confirmation/TTY surface so the
// engine is testable headless.
type Prompter interface {
	// Confirm asks the user to proceed with the given solution summary,
	// returning false on decline.
	Confirm(summary string) (bool, error)
}
