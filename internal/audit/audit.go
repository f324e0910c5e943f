// Package audit appends the two newline-delimited JSON record shapes the
// engine writes to its audit log: one solution record per apply, and one
// error record per failed action.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/pkgset"
	"github.com/sourcepm/sourcepm/internal/semverx"
)

// Sink appends solution and error records to an underlying io.Writer, one
// JSON value per line. A Sink is safe for concurrent use by multiple
// scheduler workers.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSink wraps w as an audit Sink.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// solutionEntry is one action in a solution record: exactly one of its
// fields is set, so each entry marshals as a single-key tagged object.
type solutionEntry struct {
	Install   *pkgset.Package  `json:"install,omitempty"`
	Upgrade   *[2]pkgset.Package `json:"upgrade,omitempty"`
	Downgrade *[2]pkgset.Package `json:"downgrade,omitempty"`
	Recompile *pkgset.Package  `json:"recompile,omitempty"`
	Delete    *pkgset.Package  `json:"delete,omitempty"`
}

// WriteSolution appends the solution record for g: one array describing
// every planned action, in topological order.
func (s *Sink) WriteSolution(g *actiongraph.Graph) error {
	layers, err := g.Resolve()
	if err != nil {
		return err
	}

	entries := make([]solutionEntry, 0, g.NodeCount())
	for _, layer := range layers {
		for _, node := range layer.Nodes {
			entries = append(entries, toSolutionEntry(node.Action))
		}
	}

	return s.writeLine(entries)
}

func toSolutionEntry(a actiongraph.Action) solutionEntry {
	target := a.Target
	switch a.Kind {
	case actiongraph.ToDelete:
		p := a.Package()
		return solutionEntry{Delete: &p}
	case actiongraph.ToRecompile:
		return solutionEntry{Recompile: &target}
	default: // ToChange
		if a.Previous == nil {
			return solutionEntry{Install: &target}
		}
		if isUpgrade(*a.Previous, target) {
			pair := [2]pkgset.Package{*a.Previous, target}
			return solutionEntry{Upgrade: &pair}
		}
		pair := [2]pkgset.Package{*a.Previous, target}
		return solutionEntry{Downgrade: &pair}
	}
}

func isUpgrade(prev, target pkgset.Package) bool {
	return semverx.IsUpgrade(prev.Version, target.Version)
}

// errorRecord is one per-failure record.
type errorRecord struct {
	Package string          `json:"package"`
	Error   json.RawMessage `json:"error"`
}

// WriteError appends a classified error record for the named package.
func (s *Sink) WriteError(p pkgset.Package, err error) error {
	payload, marshalErr := errorPayload(err)
	if marshalErr != nil {
		return marshalErr
	}
	return s.writeLine(errorRecord{Package: p.String(), Error: payload})
}

func errorPayload(err error) (json.RawMessage, error) {
	var body any
	switch e := err.(type) {
	case *collaborator.ProcessError:
		body = map[string]any{
			"process-error": map[string]any{
				"code":     fmt.Sprintf("%d", e.Code),
				"duration": e.Duration,
				"info":     e.Info,
				"stdout":   e.Stdout,
				"stderr":   e.Stderr,
			},
		}
	case *collaborator.InternalError:
		body = map[string]any{"internal-error": e.Error()}
	case *collaborator.PackageError:
		body = map[string]any{"package-error": e.Error()}
	default:
		body = map[string]any{"exception": err.Error()}
	}
	return json.Marshal(body)
}

func (s *Sink) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}
