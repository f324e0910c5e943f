package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

func TestWriteSolutionEncodesInstallAndUpgrade(t *testing.T) {
	g := actiongraph.New()
	g.AddAction(actiongraph.Action{Kind: actiongraph.ToChange, Target: pkgset.Package{Name: "foo", Version: "1.0"}})
	prev := pkgset.Package{Name: "bar", Version: "1.0"}
	g.AddAction(actiongraph.Action{Kind: actiongraph.ToChange, Target: pkgset.Package{Name: "bar", Version: "2.0"}, Previous: &prev})

	var buf bytes.Buffer
	s := NewSink(&buf)
	require.NoError(t, s.WriteSolution(g))

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)

	var entries []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(line), &entries))
	assert.Len(t, entries, 2)

	foundInstall, foundUpgrade := false, false
	for _, e := range entries {
		if _, ok := e["install"]; ok {
			foundInstall = true
		}
		if _, ok := e["upgrade"]; ok {
			foundUpgrade = true
		}
	}
	assert.True(t, foundInstall)
	assert.True(t, foundUpgrade)
}

func TestWriteSolutionEncodesDowngradeAndDelete(t *testing.T) {
	g := actiongraph.New()
	prev := pkgset.Package{Name: "foo", Version: "2.0"}
	g.AddAction(actiongraph.Action{Kind: actiongraph.ToChange, Target: pkgset.Package{Name: "foo", Version: "1.0"}, Previous: &prev})
	del := pkgset.Package{Name: "baz", Version: "1.0"}
	g.AddAction(actiongraph.Action{Kind: actiongraph.ToDelete, Previous: &del})

	var buf bytes.Buffer
	s := NewSink(&buf)
	require.NoError(t, s.WriteSolution(g))

	var entries []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entries))
	assert.Len(t, entries, 2)

	foundDowngrade, foundDelete := false, false
	for _, e := range entries {
		if _, ok := e["downgrade"]; ok {
			foundDowngrade = true
		}
		if _, ok := e["delete"]; ok {
			foundDelete = true
		}
	}
	assert.True(t, foundDowngrade)
	assert.True(t, foundDelete)
}

func TestWriteErrorEncodesProcessError(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	err := collaborator.NewProcessError(1, 2.5, []string{"building"}, []string{"oops"}, errors.New("exit status 1"))

	require.NoError(t, s.WriteError(pkgset.Package{Name: "foo", Version: "1.0"}, err))

	var rec map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))

	var pkgName string
	require.NoError(t, json.Unmarshal(rec["package"], &pkgName))
	assert.Contains(t, pkgName, "foo")

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec["error"], &body))
	_, ok := body["process-error"]
	assert.True(t, ok)
}

func TestWriteErrorEncodesGenericException(t *testing.T) {
	var buf bytes.Buffer
	s := NewSink(&buf)
	require.NoError(t, s.WriteError(pkgset.Package{Name: "bar", Version: "1.0"}, errors.New("unexpected")))

	var rec map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec["error"], &body))
	_, ok := body["exception"]
	assert.True(t, ok)
}

func TestIsUpgradeDetectsDirection(t *testing.T) {
	assert.True(t, isUpgrade(pkgset.Package{Version: "1.0.0"}, pkgset.Package{Version: "2.0.0"}))
	assert.False(t, isUpgrade(pkgset.Package{Version: "2.0.0"}, pkgset.Package{Version: "1.0.0"}))
}
