package pkgset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstraintSatisfies(t *testing.T) {
	cases := []struct {
		op      Op
		ref     string
		version string
		want    bool
	}{
		{OpEqual, "1.0.0", "1.0.0", true},
		{OpEqual, "1.0.0", "1.0.1", false},
		{OpGreater, "1.0.0", "1.0.1", true},
		{OpGreaterEqual, "1.0.0", "1.0.0", true},
		{OpLess, "2.0.0", "1.9.9", true},
		{OpLessEqual, "1.0.0", "1.0.0", true},
		{OpNotEqual, "1.0.0", "1.0.1", true},
	}
	for _, c := range cases {
		got, err := Constraint{Op: c.op, Version: c.ref}.Satisfies(c.version)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%s %s against %s", c.op, c.version, c.ref)
	}
}

func TestConstraintSatisfiesUnknownOp(t *testing.T) {
	_, err := Constraint{Op: "~", Version: "1.0.0"}.Satisfies("1.0.0")
	assert.Error(t, err)
}

func TestAtomMatchesUnconstrained(t *testing.T) {
	ok, err := Atom{Name: "foo"}.Matches("anything")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAtomString(t *testing.T) {
	assert.Equal(t, "foo", Atom{Name: "foo"}.String())
	assert.Equal(t, "foo>=1.0", Atom{Name: "foo", Constraint: &Constraint{Op: OpGreaterEqual, Version: "1.0"}}.String())
}
