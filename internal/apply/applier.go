package apply

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/envwarn"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// Applier is the engine's entry point: it orchestrates preview,
// confirmation, environment warnings, and invocation of the
// Downloader → Remover → Scheduler → classification pipeline.
type Applier struct {
	Persister     *engstate.StatePersister
	Executor      collaborator.ActionExecutor
	Accessor      collaborator.StateAccessor
	Prompter      collaborator.Prompter
	EnvChecker    *envwarn.Checker
	Messenger     *Messenger
	Reporter      *Reporter
	Out           io.Writer

	// CurrentCompiler names the installed compiler package whose assigned
	// variables are exempt from the interference warning; Compilers lists
	// every compiler manifest in the universe.
	CurrentCompiler string
	Compilers       []envwarn.CompilerManifest

	DownloadJobs int
	BuildJobs    int

	// AutoYes skips confirmation unconditionally (CLI --yes flag).
	AutoYes bool
	// ShowOnly renders the preview and returns Aborted without applying.
	ShowOnly bool
	// DryRun suppresses install_metadata calls and download-miss failure.
	DryRun bool
	// ExternalTags, when non-nil, switches the run into tag-emission mode:
	// OS-level dependency tags are printed instead of applying anything.
	ExternalTags *ExternalTagsRequest
}

// ExternalTagsRequest carries the configured tag set for external-tags
// mode.
type ExternalTagsRequest struct {
	ConfiguredTags map[string]bool
	// TagGroups maps a package name to its external-dependency tag groups,
	// each group being a set of tags that must all be present in
	// ConfiguredTags for the group to be emitted (union-intersection rule).
	TagGroups map[string][]map[string]bool
}

// Apply runs the full pipeline for a precomputed solution.
func (a *Applier) Apply(ctx context.Context, kind RequestKind, requestedNames map[string]bool, sol *actiongraph.Solution) FinalResult {
	if sol.ToProcess == nil || sol.ToProcess.IsEmpty() {
		return FinalResult{Status: StatusNothingToDo}
	}

	if a.ExternalTags != nil {
		a.emitExternalTags(sol)
		return FinalResult{Status: StatusAborted}
	}

	a.renderPreview(sol)

	if !a.AutoYes && !sol.NamesEqual(requestedNames) {
		proceed, err := a.Prompter.Confirm("Apply the above actions?")
		if err != nil || !proceed {
			return FinalResult{Status: StatusAborted, AbortReason: AbortDeclined}
		}
	}

	if a.ShowOnly {
		return FinalResult{Status: StatusAborted, AbortReason: AbortNone}
	}

	if a.EnvChecker != nil {
		st := a.Persister.State()
		installedNames := make(map[string]bool, len(st.Installed))
		for name := range st.Installed {
			installedNames[name] = true
		}
		proceed, err := a.EnvChecker.WarnOnce(installedNames, a.CurrentCompiler, a.Compilers, func(vars []string) (bool, error) {
			return a.Prompter.Confirm(fmt.Sprintf("The following environment variables may interfere: %v", vars))
		})
		if err != nil || !proceed {
			return FinalResult{Status: StatusAborted, AbortReason: AbortEnvWarningDeclined}
		}
	}

	return a.parallelApply(ctx, kind, requestedNames, sol)
}

// ResolveAndApply calls the solver and, on conflict, prints the conflict
// reason and returns NoSolution; on success it applies the resulting
// solution.
func (a *Applier) ResolveAndApply(ctx context.Context, solver collaborator.Solver, kind RequestKind, requestedNames map[string]bool, request []pkgset.Atom) FinalResult {
	sol, err := solver.Resolve(ctx, a.Persister.State(), request)
	if err != nil {
		if errors.Is(err, collaborator.ErrNoSolution) {
			if a.Out != nil {
				fmt.Fprintf(a.Out, "No solution: %s\n", err.Error())
			}
			return FinalResult{Status: StatusNoSolution}
		}
		return FinalResult{Status: StatusError, Errors: map[string]error{"": err}}
	}
	return a.Apply(ctx, kind, requestedNames, sol)
}

func (a *Applier) renderPreview(sol *actiongraph.Solution) {
	if a.Out == nil || sol.ToProcess == nil {
		return
	}
	counts := map[actiongraph.Kind]int{}
	for _, p := range sol.ToProcess.Packages() {
		if n, ok := sol.ToProcess.Node(actiongraph.NodeID(p.Name)); ok {
			counts[n.Action.Kind]++
		}
	}
	fmt.Fprintf(a.Out, "The following actions will be performed:\n")
	fmt.Fprintf(a.Out, "  %d to change, %d to recompile, %d to delete\n",
		counts[actiongraph.ToChange], counts[actiongraph.ToRecompile], counts[actiongraph.ToDelete])
}

func (a *Applier) emitExternalTags(sol *actiongraph.Solution) {
	if a.Out == nil {
		return
	}
	for _, p := range sol.ToProcess.Packages() {
		for _, group := range a.ExternalTags.TagGroups[p.Name] {
			if isSubset(group, a.ExternalTags.ConfiguredTags) {
				fmt.Fprintln(a.Out, p.Name, tagsList(group))
			}
		}
	}
}

func isSubset(sub, super map[string]bool) bool {
	for t := range sub {
		if !super[t] {
			return false
		}
	}
	return true
}

func tagsList(tags map[string]bool) []string {
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	return out
}

// parallelApply runs the Downloader → Remover → Scheduler → Classifier
// pipeline and renders the report.
func (a *Applier) parallelApply(ctx context.Context, kind RequestKind, requestedNames map[string]bool, sol *actiongraph.Solution) FinalResult {
	st := a.Persister.State()

	if a.Reporter != nil && a.Reporter.Sink != nil {
		_ = a.Reporter.Sink.WriteSolution(sol.ToProcess)
	}

	downloader := NewDownloader(a.Executor, a.DownloadJobs, a.Accessor)
	if err := downloader.Run(ctx, st, sol, a.DryRun); err != nil {
		if isInterrupt(err) {
			return a.abortInterrupted()
		}
		return FinalResult{Status: StatusError, Errors: map[string]error{}}
	}

	remover := NewRemover(a.Executor, a.Persister, a.Accessor)
	removal := remover.Run(ctx, sol)
	defer runFinalizers(removal.Finalizers)
	if removal.Err != nil {
		successful, failed, remaining := ClassifyAfterFailedRemoval(sol, a.Persister.State())
		fr := ClassifyRemovalFailure(successful, failed, remaining, removal.Err)
		a.report(fr, sol)
		return fr
	}

	requested := make([]string, 0, len(requestedNames))
	for n := range requestedNames {
		requested = append(requested, n)
	}
	rootNames := RootInstallNames(kind, st.InstalledRoots, requested)

	scheduler := NewScheduler(a.Executor, a.Persister, rootNames, a.BuildJobs)
	scheduler.Messenger = a.Messenger
	scheduler.DryRun = a.DryRun

	results, err := scheduler.Run(ctx, sol.ToProcess)
	if err != nil {
		if isInterrupt(err) {
			return a.abortInterrupted()
		}
		return FinalResult{Status: StatusError, Errors: map[string]error{}}
	}

	fr := Classify(results)
	a.report(fr, sol)
	return fr
}

func (a *Applier) report(fr FinalResult, sol *actiongraph.Solution) {
	if a.Reporter == nil {
		return
	}
	a.Reporter.Report(fr, ActionsByPackageName(sol.ToProcess))
}

func runFinalizers(finalizers []Finalizer) {
	for _, f := range finalizers {
		f()
	}
}

// abortInterrupted handles a user-initiated interrupt: the pipeline stops
// where it is, queued finalizers still run on the way out (they are
// deferred by parallelApply), and the interruption is surfaced to the
// caller instead of being classified into the success/failed partition.
func (a *Applier) abortInterrupted() FinalResult {
	if a.Out != nil {
		fmt.Fprintln(a.Out, "Aborting")
	}
	return FinalResult{Status: StatusError, Interrupted: true, Errors: map[string]error{}}
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
