package apply

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// Scheduler walks an ActionGraph in topological layers and runs
// build-and-install for each node under a worker pool bounded by
// BuildJobs, propagating cancellation to descendants of failed nodes.
type Scheduler struct {
	Executor         collaborator.ActionExecutor
	Persister        *engstate.StatePersister
	RootInstallNames map[string]bool
	BuildJobs        int
	DryRun           bool
	Messenger        *Messenger
}

// NewScheduler creates a Scheduler bounded by buildJobs concurrent
// installs (minimum 1).
func NewScheduler(executor collaborator.ActionExecutor, persister *engstate.StatePersister, rootInstallNames map[string]bool, buildJobs int) *Scheduler {
	if buildJobs < 1 {
		buildJobs = 1
	}
	return &Scheduler{
		Executor:         executor,
		Persister:        persister,
		RootInstallNames: rootInstallNames,
		BuildJobs:        buildJobs,
	}
}

// Run executes every node of the graph, layer by layer, and returns one
// NodeResult per node. It returns a non-nil error only when the graph has
// a cycle or on context cancellation, which aborts the walk; per-node
// failures are captured in
// the returned results and never unwind out of the Scheduler.
func (s *Scheduler) Run(ctx context.Context, g *actiongraph.Graph) ([]NodeResult, error) {
	layers, err := g.Resolve()
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	outcomes := make(map[actiongraph.NodeID]Outcome, g.NodeCount())
	results := make([]NodeResult, 0, g.NodeCount())

	sem := semaphore.NewWeighted(int64(s.BuildJobs))

	for _, layer := range layers {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		var wg sync.WaitGroup
		for _, node := range layer.Nodes {
			if err := sem.Acquire(ctx, 1); err != nil {
				return results, err
			}
			node := node
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)

				res := s.runNode(ctx, g, node, &mu, outcomes)

				mu.Lock()
				outcomes[node.ID] = res.Outcome
				results = append(results, res)
				mu.Unlock()

				// Post-install messages only apply to actions that actually
				// ran: cancelled nodes never invoked the executor, and
				// deletions were handled by the Remover.
				if s.Messenger != nil && res.Outcome != OutcomeCancelled && node.Action.Kind != actiongraph.ToDelete {
					s.Messenger.Report(node.Action.Package(), res.Outcome == OutcomeFailed)
				}
			}()
		}
		wg.Wait()
	}

	return results, nil
}

func (s *Scheduler) runNode(ctx context.Context, g *actiongraph.Graph, node *actiongraph.Node, mu *sync.Mutex, outcomes map[actiongraph.NodeID]Outcome) NodeResult {
	mu.Lock()
	cancelled := false
	for _, predID := range g.Predecessors(node.ID) {
		if outcomes[predID] != OutcomeSuccess {
			cancelled = true
			break
		}
	}
	mu.Unlock()

	if cancelled {
		return NodeResult{Node: node, Outcome: OutcomeCancelled}
	}

	a := node.Action
	if a.Kind == actiongraph.ToDelete {
		// Already handled by the Remover; nothing left to do here.
		return NodeResult{Node: node, Outcome: OutcomeSuccess}
	}

	p := a.Package()
	if err := s.Executor.BuildAndInstall(ctx, s.Persister.Snapshot(), p, false); err != nil {
		return NodeResult{Node: node, Outcome: OutcomeFailed, Err: err}
	}

	if err := s.applyPostInstall(ctx, p); err != nil {
		return NodeResult{Node: node, Outcome: OutcomeFailed, Err: err}
	}

	return NodeResult{Node: node, Outcome: OutcomeSuccess}
}

// applyPostInstall runs the serialised state update after a successful
// install: p joins the installed set, leaves the reinstall set, joins the
// roots if its name is a root install name, and the result is flushed to
// the state store. Unless dry-run, the executor's metadata install then
// makes p visible to future invocations.
func (s *Scheduler) applyPostInstall(ctx context.Context, p pkgset.Package) error {
	if err := s.Persister.Mutate(func(st *engstate.TransientState) {
		st.MarkInstalled(p, s.RootInstallNames)
	}); err != nil {
		return err
	}

	if s.DryRun {
		return nil
	}
	return s.Executor.InstallMetadata(ctx, s.Persister.Snapshot(), p)
}
