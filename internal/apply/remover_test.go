package apply

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

func deleteAction(name string) actiongraph.Action {
	p := pkgset.Package{Name: name, Version: "1"}
	return actiongraph.Action{Kind: actiongraph.ToDelete, Previous: &p}
}

func TestRemoverRunQueuesFinalizersForUnpinned(t *testing.T) {
	g := actiongraph.New()
	g.AddAction(deleteAction("foo"))
	sol := &actiongraph.Solution{ToProcess: g}

	persister := newPersister(t)
	accessor := collaborator.NewLocalStateAccessor()
	exec := newFakeExecutor()
	r := NewRemover(exec, persister, accessor)

	result := r.Run(context.Background(), sol)
	require.NoError(t, result.Err)
	assert.Len(t, result.Finalizers, 1)
	assert.False(t, persister.State().IsInstalled("foo"))
}

func TestRemoverRunSkipsFinalizerForPinned(t *testing.T) {
	g := actiongraph.New()
	g.AddAction(deleteAction("foo"))
	sol := &actiongraph.Solution{ToProcess: g}

	persister := newPersister(t)
	accessor := collaborator.NewLocalStateAccessor()
	accessor.SetPinned("foo", true)
	exec := newFakeExecutor()
	r := NewRemover(exec, persister, accessor)

	result := r.Run(context.Background(), sol)
	require.NoError(t, result.Err)
	assert.Empty(t, result.Finalizers)
}

func TestRemoverRunAppliesPartialDeletionsOnFailure(t *testing.T) {
	g := actiongraph.New()
	g.AddAction(deleteAction("removed-before-failure"))
	g.AddAction(deleteAction("fails-to-remove"))
	sol := &actiongraph.Solution{ToProcess: g}

	persister := newPersister(t)
	persister.Mutate(func(st *engstate.TransientState) {
		st.Installed["removed-before-failure"] = pkgset.Package{Name: "removed-before-failure", Version: "1"}
		st.Installed["fails-to-remove"] = pkgset.Package{Name: "fails-to-remove", Version: "1"}
	})

	accessor := collaborator.NewLocalStateAccessor()
	exec := newFakeExecutor()
	exec.failRemove["fails-to-remove"] = true
	r := NewRemover(exec, persister, accessor)

	result := r.Run(context.Background(), sol)
	require.Error(t, result.Err)

	// The package the executor actually removed before hitting the
	// failure must be reflected in TransientState, not left marked
	// installed just because the batch as a whole reported an error.
	assert.False(t, persister.State().IsInstalled("removed-before-failure"))
	assert.True(t, persister.State().IsInstalled("fails-to-remove"))
}

func TestClassifyAfterFailedRemoval(t *testing.T) {
	g := actiongraph.New()
	g.AddAction(deleteAction("removed-ok"))
	g.AddAction(deleteAction("removed-stuck"))
	sol := &actiongraph.Solution{ToProcess: g}

	persister := newPersister(t)
	persister.Mutate(func(st *engstate.TransientState) {
		st.Installed["removed-stuck"] = pkgset.Package{Name: "removed-stuck", Version: "1"}
	})

	successful, failed, remaining := ClassifyAfterFailedRemoval(sol, persister.State())
	assert.Len(t, successful, 1)
	assert.Empty(t, failed)
	assert.Len(t, remaining, 1)
}
