package apply

import (
	"context"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// Remover removes, as one batch, every package the plan will replace,
// recompile, or delete. The batch runs before any install so installs see
// a clean filesystem.
type Remover struct {
	Executor  collaborator.ActionExecutor
	Persister *engstate.StatePersister
	Accessor  collaborator.StateAccessor
}

// NewRemover creates a Remover.
func NewRemover(executor collaborator.ActionExecutor, persister *engstate.StatePersister, accessor collaborator.StateAccessor) *Remover {
	return &Remover{Executor: executor, Persister: persister, Accessor: accessor}
}

// Finalizer is a zero-argument cleanup action queued by a stage and run
// once the whole apply has finished, on every exit path.
type Finalizer func()

// RemovalResult is the Remover's result: either an ordinary success
// (state updated, finalizers queued) or a failure, in which case the
// caller must classify without running the Scheduler.
type RemovalResult struct {
	Deleted    []pkgset.Package
	Finalizers []Finalizer
	Err        error
}

// Run removes every package named by a ToChange(Some _,_), ToRecompile,
// or ToDelete node in sol in a single executor call.
func (r *Remover) Run(ctx context.Context, sol *actiongraph.Solution) RemovalResult {
	st := r.Persister.State()

	deleted, removeErr := r.Executor.RemoveAllPackages(ctx, st, sol)

	// Even on failure the executor reports the packages it actually got
	// off disk before stopping; apply those to TransientState before
	// classifying so they aren't misreported as still installed.
	var finalizers []Finalizer
	mutateErr := r.Persister.Mutate(func(s *engstate.TransientState) {
		for _, p := range deleted {
			s.MarkDeleted(p.Name)
			if !r.Accessor.IsPinned(p.Name) {
				pkg := p
				finalizers = append(finalizers, func() {
					_ = r.Executor.CleanupPackageArtefacts(ctx, st, pkg)
				})
			}
		}
	})

	if removeErr != nil {
		return RemovalResult{Deleted: deleted, Finalizers: finalizers, Err: removeErr}
	}
	if mutateErr != nil {
		return RemovalResult{Deleted: deleted, Finalizers: finalizers, Err: mutateErr}
	}

	return RemovalResult{Deleted: deleted, Finalizers: finalizers}
}

// ClassifyAfterFailedRemoval partitions sol's nodes after a failed
// removal batch, without running the Scheduler:
//   - successful: ToDelete(p) nodes where p is no longer installed;
//   - failed: ToChange(Some previous,_)/ToRecompile(p) nodes where the old
//     version is no longer installed (removed but replacement never built);
//   - remaining: everything else.
func ClassifyAfterFailedRemoval(sol *actiongraph.Solution, st *engstate.TransientState) (successful, failed, remaining []actiongraph.Action) {
	if sol.ToProcess == nil {
		return nil, nil, nil
	}
	for _, p := range sol.ToProcess.Packages() {
		node, ok := sol.ToProcess.Node(actiongraph.NodeID(p.Name))
		if !ok {
			continue
		}
		a := node.Action
		switch a.Kind {
		case actiongraph.ToDelete:
			if !st.IsInstalled(p.Name) {
				successful = append(successful, a)
			} else {
				remaining = append(remaining, a)
			}
		case actiongraph.ToChange, actiongraph.ToRecompile:
			oldName := p.Name
			if a.Previous != nil {
				oldName = a.Previous.Name
			}
			if !st.IsInstalled(oldName) {
				failed = append(failed, a)
			} else {
				remaining = append(remaining, a)
			}
		}
	}
	return successful, failed, remaining
}
