package collaborator

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// TTYPrompter is the shipped Prompter: it prints the solution summary and
// reads a y/N confirmation from in.
type TTYPrompter struct {
	out io.Writer
	in  *bufio.Reader
}

// NewTTYPrompter creates a TTYPrompter reading from in and writing to out.
func NewTTYPrompter(out io.Writer, in io.Reader) *TTYPrompter {
	return &TTYPrompter{out: out, in: bufio.NewReader(in)}
}

// Confirm prints summary followed by a y/N prompt and reports whether the
// user answered affirmatively.
func (p *TTYPrompter) Confirm(summary string) (bool, error) {
	fmt.Fprintln(p.out, summary)
	fmt.Fprint(p.out, color.YellowString("Do you want to continue? [y/N] "))

	answer, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes", nil
}

// AutoConfirmPrompter always answers yes, for --yes/non-interactive runs.
type AutoConfirmPrompter struct{}

// Confirm always returns true.
func (AutoConfirmPrompter) Confirm(summary string) (bool, error) { return true, nil }
