package apply

import (
	"bytes"
	"context"
	"os"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

func newGinkgoPersister() *engstate.StatePersister {
	dir, err := os.MkdirTemp("", "sourcepm-apply-e2e-*")
	Expect(err).NotTo(HaveOccurred())
	ginkgo.DeferCleanup(func() { os.RemoveAll(dir) })

	store, err := engstate.NewStore(dir)
	Expect(err).NotTo(HaveOccurred())
	Expect(store.Lock()).To(Succeed())
	ginkgo.DeferCleanup(func() { store.Unlock() })

	state, err := store.Load()
	Expect(err).NotTo(HaveOccurred())
	return engstate.NewStatePersister(store, state)
}

var _ = ginkgo.Describe("Applier.Apply end-to-end", func() {
	var (
		exec      *fakeExecutor
		persister *engstate.StatePersister
		ctx       context.Context
	)

	ginkgo.BeforeEach(func() {
		exec = newFakeExecutor()
		persister = newGinkgoPersister()
		ctx = context.Background()
	})

	buildApplier := func() *Applier {
		return &Applier{
			Persister:    persister,
			Executor:     exec,
			Accessor:     collaborator.NewLocalStateAccessor(),
			Prompter:     collaborator.AutoConfirmPrompter{},
			AutoYes:      true,
			Out:          &bytes.Buffer{},
			DownloadJobs: 2,
			BuildJobs:    2,
		}
	}

	ginkgo.Describe("a linear chain where every node succeeds", func() {
		ginkgo.It("reports StatusOK with every package successful", func() {
			g := actiongraph.New()
			a := g.AddAction(changeAction("a"))
			b := g.AddAction(changeAction("b"))
			c := g.AddAction(changeAction("c"))
			g.AddEdge(b, a)
			g.AddEdge(c, b)
			sol := &actiongraph.Solution{ToProcess: g}

			applier := buildApplier()
			fr := applier.Apply(ctx, RequestInstall, sol.PackageNames(), sol)

			Expect(fr.Status).To(Equal(StatusOK))
			Expect(fr.Successful).To(HaveLen(3))
		})
	})

	ginkgo.Describe("a middle failure that cascades to descendants", func() {
		ginkgo.It("fails the middle node and cancels its dependent without attempting it", func() {
			exec.failBuild["b"] = true

			g := actiongraph.New()
			a := g.AddAction(changeAction("a"))
			b := g.AddAction(changeAction("b"))
			c := g.AddAction(changeAction("c"))
			g.AddEdge(b, a)
			g.AddEdge(c, b)
			sol := &actiongraph.Solution{ToProcess: g}

			applier := buildApplier()
			fr := applier.Apply(ctx, RequestInstall, sol.PackageNames(), sol)

			Expect(fr.Status).To(Equal(StatusError))
			Expect(fr.Failed).To(HaveLen(1))
			Expect(fr.Remaining).To(HaveLen(1))
			Expect(exec.built).NotTo(ContainElement("c"))
		})
	})

	ginkgo.Describe("parallel siblings where only one fails", func() {
		ginkgo.It("isolates the failure to that sibling alone", func() {
			exec.failBuild["x"] = true

			g := actiongraph.New()
			root := g.AddAction(changeAction("root"))
			x := g.AddAction(changeAction("x"))
			y := g.AddAction(changeAction("y"))
			g.AddEdge(x, root)
			g.AddEdge(y, root)
			sol := &actiongraph.Solution{ToProcess: g}

			applier := buildApplier()
			fr := applier.Apply(ctx, RequestInstall, sol.PackageNames(), sol)

			Expect(fr.Status).To(Equal(StatusError))
			names := successfulNames(fr)
			Expect(names).To(ContainElements("root", "y"))
			Expect(names).NotTo(ContainElement("x"))
		})
	})

	ginkgo.Describe("an empty solution", func() {
		ginkgo.It("returns NothingToDo and leaves the state store untouched", func() {
			dir, err := os.MkdirTemp("", "sourcepm-apply-empty-*")
			Expect(err).NotTo(HaveOccurred())
			ginkgo.DeferCleanup(func() { os.RemoveAll(dir) })

			store, err := engstate.NewStore(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Lock()).To(Succeed())
			ginkgo.DeferCleanup(func() { store.Unlock() })
			state, err := store.Load()
			Expect(err).NotTo(HaveOccurred())
			p := engstate.NewStatePersister(store, state)
			Expect(p.Mutate(func(*engstate.TransientState) {})).To(Succeed())
			before, err := os.ReadFile(store.StatePath())
			Expect(err).NotTo(HaveOccurred())

			applier := buildApplier()
			applier.Persister = p

			fr := applier.Apply(ctx, RequestInstall, nil, &actiongraph.Solution{ToProcess: actiongraph.New()})
			Expect(fr.Status).To(Equal(StatusNothingToDo))

			after, err := os.ReadFile(store.StatePath())
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))
		})
	})

	ginkgo.Describe("an upgrade whose install fails after removal", func() {
		ginkgo.It("reports the package failed and leaves it uninstalled", func() {
			prev := pkgset.Package{Name: "a", Version: "1"}
			Expect(persister.Mutate(func(st *engstate.TransientState) {
				st.Installed["a"] = prev
			})).To(Succeed())
			exec.failBuild["a"] = true

			g := actiongraph.New()
			g.AddAction(actiongraph.Action{Kind: actiongraph.ToChange, Previous: &prev, Target: pkgset.Package{Name: "a", Version: "2"}})
			sol := &actiongraph.Solution{ToProcess: g}

			applier := buildApplier()
			fr := applier.Apply(ctx, RequestUpgrade, sol.PackageNames(), sol)

			Expect(fr.Status).To(Equal(StatusError))
			Expect(fr.Successful).To(BeEmpty())
			Expect(fr.Failed).To(HaveLen(1))
			Expect(fr.Remaining).To(BeEmpty())
			Expect(persister.State().IsInstalled("a")).To(BeFalse())
		})
	})

	ginkgo.Describe("a download miss", func() {
		ginkgo.It("aborts cleanly before any build is attempted", func() {
			exec.missDownload["a"] = true

			g := actiongraph.New()
			g.AddAction(changeAction("a"))
			sol := &actiongraph.Solution{ToProcess: g}

			applier := buildApplier()
			fr := applier.Apply(ctx, RequestInstall, sol.PackageNames(), sol)

			Expect(fr.Status).To(Equal(StatusError))
			Expect(exec.built).To(BeEmpty())
		})
	})

	ginkgo.Describe("confirmation", func() {
		ginkgo.It("is skipped when the solution exactly matches the requested names", func() {
			g := actiongraph.New()
			g.AddAction(changeAction("a"))
			sol := &actiongraph.Solution{ToProcess: g}

			applier := buildApplier()
			applier.AutoYes = false
			applier.Prompter = refusingPrompter{}

			fr := applier.Apply(ctx, RequestInstall, map[string]bool{"a": true}, sol)
			Expect(fr.Status).To(Equal(StatusOK))
		})

		ginkgo.It("is required and can be declined when extra packages are pulled in", func() {
			g := actiongraph.New()
			g.AddAction(changeAction("a"))
			g.AddAction(changeAction("b"))
			sol := &actiongraph.Solution{ToProcess: g}

			applier := buildApplier()
			applier.AutoYes = false
			applier.Prompter = refusingPrompter{}

			fr := applier.Apply(ctx, RequestInstall, map[string]bool{"a": true}, sol)
			Expect(fr.Status).To(Equal(StatusAborted))
			Expect(fr.AbortReason).To(Equal(AbortDeclined))
		})
	})
})

type refusingPrompter struct{}

func (refusingPrompter) Confirm(string) (bool, error) { return false, nil }

func successfulNames(fr FinalResult) []string {
	out := make([]string, 0, len(fr.Successful))
	for _, p := range fr.Successful {
		out = append(out, p.Name)
	}
	return out
}
