package apply

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/audit"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// Classify partitions Scheduler results into a FinalResult: OK when
// nothing failed or was cancelled, Error otherwise.
func Classify(results []NodeResult) FinalResult {
	var failed, cancelled bool
	fr := FinalResult{Errors: make(map[string]error)}

	for _, r := range results {
		p := r.Node.Action.Package()
		switch r.Outcome {
		case OutcomeSuccess:
			fr.Successful = append(fr.Successful, p)
			fr.Actions = append(fr.Actions, r.Node.Action)
		case OutcomeFailed:
			failed = true
			fr.Failed = append(fr.Failed, p)
			fr.Errors[p.String()] = r.Err
		case OutcomeCancelled:
			cancelled = true
			fr.Remaining = append(fr.Remaining, p)
		}
	}

	switch {
	case failed || cancelled:
		fr.Status = StatusError
	default:
		fr.Status = StatusOK
	}
	return fr
}

// ClassifyRemovalFailure builds a FinalResult from the removal-stage
// classification, without a Scheduler run having happened at all.
func ClassifyRemovalFailure(successful, failed, remaining []actiongraph.Action, removalErr error) FinalResult {
	fr := FinalResult{Status: StatusError, Errors: make(map[string]error)}
	for _, a := range successful {
		fr.Successful = append(fr.Successful, a.Package())
	}
	for _, a := range failed {
		p := a.Package()
		fr.Failed = append(fr.Failed, p)
		fr.Errors[p.String()] = removalErr
	}
	for _, a := range remaining {
		fr.Remaining = append(fr.Remaining, a.Package())
	}
	return fr
}

// Reporter renders a FinalResult as a human-facing report and appends the
// corresponding audit log records.
type Reporter struct {
	Out  io.Writer
	Sink *audit.Sink
}

// NewReporter creates a Reporter.
func NewReporter(out io.Writer, sink *audit.Sink) *Reporter {
	return &Reporter{Out: out, Sink: sink}
}

// Report prints fr's sections and appends one audit error record per
// failed package. A plan touching a single package skips the section
// headers entirely, even on failure; the per-failure error lines still
// print.
func (r *Reporter) Report(fr FinalResult, actionsByPackage map[string]actiongraph.Action) {
	total := len(fr.Successful) + len(fr.Failed) + len(fr.Remaining)

	if total >= 2 {
		if len(fr.Successful) > 0 {
			fmt.Fprintln(r.Out, color.GreenString("These actions have been completed successfully:"), namesOf(fr.Successful))
		}
		if len(fr.Failed) > 0 {
			fmt.Fprintln(r.Out, color.RedString("The following failed:"), namesOf(fr.Failed))
		}
		if len(fr.Remaining) > 0 {
			fmt.Fprintln(r.Out, color.YellowString("Due to the errors, the following have been cancelled:"), namesOf(fr.Remaining))
		}
	}

	for _, p := range fr.Failed {
		err := fr.Errors[p.String()]
		verb := "processing"
		if a, ok := actionsByPackage[p.Name]; ok {
			verb = a.Verb()
		}
		fmt.Fprintf(r.Out, "%s %s: %s\n", color.RedString("[ERROR]"), verb, p.String())
		if err != nil {
			fmt.Fprintf(r.Out, "  %s\n", err.Error())
		}
		if r.Sink != nil && err != nil {
			_ = r.Sink.WriteError(p, err)
		}
	}
}

func namesOf(pkgs []pkgset.Package) string {
	out := ""
	for i, p := range pkgs {
		if i > 0 {
			out += ", "
		}
		out += p.String()
	}
	return out
}

// ActionsByPackageName indexes a graph's actions by package name, for
// Verb() lookup during reporting.
func ActionsByPackageName(g *actiongraph.Graph) map[string]actiongraph.Action {
	out := make(map[string]actiongraph.Action)
	for _, p := range g.Packages() {
		if n, ok := g.Node(actiongraph.NodeID(p.Name)); ok {
			out[p.Name] = n.Action
		}
	}
	return out
}
