package apply

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// Messenger renders a package's post-install messages after a successful
// or failed action, gated by the two injected filter variables
// success/failure.
type Messenger struct {
	Accessor collaborator.StateAccessor
	Filter   collaborator.FilterEvaluator
	Out      io.Writer
}

// NewMessenger creates a Messenger.
func NewMessenger(accessor collaborator.StateAccessor, filter collaborator.FilterEvaluator, out io.Writer) *Messenger {
	return &Messenger{Accessor: accessor, Filter: filter, Out: out}
}

// Report prints every post-install message of p whose filter is satisfied
// by the given failed flag, under a per-package header tinted green on
// success or red on failure. Multi-line messages are indented to align
// with their leading marker.
func (m *Messenger) Report(p pkgset.Package, failed bool) {
	manifest, ok := m.Accessor.Manifest(p)
	if !ok || len(manifest.Messages) == 0 {
		return
	}

	vars := map[string]bool{"success": !failed, "failure": failed}

	for _, msg := range manifest.Messages {
		ok, err := m.Filter.Eval(msg.Filter, vars)
		if err != nil || !ok {
			continue
		}
		text, err := m.Filter.Substitute(msg.Text, vars)
		if err != nil {
			text = msg.Text
		}
		m.print(p, text, failed)
	}
}

func (m *Messenger) print(p pkgset.Package, text string, failed bool) {
	header := color.GreenString("-> %s", p.String())
	if failed {
		header = color.RedString("-> %s", p.String())
	}
	fmt.Fprintln(m.Out, header)

	indent := "   "
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintln(m.Out, indent+line)
	}
}
