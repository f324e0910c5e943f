package apply

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sourcepm/sourcepm/internal/pkgset"
)

func TestSanitiseCanonicalisesUnambiguousNames(t *testing.T) {
	universe := Universe{KnownNames: []string{"OCaml", "Dune"}}
	atoms := []pkgset.Atom{{Name: "ocaml"}, {Name: "dune"}, {Name: "unknown"}}
	got := Sanitise(atoms, universe)
	assert.Equal(t, "OCaml", got[0].Name)
	assert.Equal(t, "Dune", got[1].Name)
	assert.Equal(t, "unknown", got[2].Name)
}

func TestCheckAvailabilityFlagsUnknownAndUnsatisfiable(t *testing.T) {
	universe := Universe{
		KnownNames: []string{"OCaml"},
		Versions:   map[string][]string{"OCaml": {"4.14.0"}},
	}
	atoms := []pkgset.Atom{
		{Name: "OCaml", Constraint: &pkgset.Constraint{Op: pkgset.OpGreaterEqual, Version: "5.0.0"}},
		{Name: "Missing"},
	}
	diags := CheckAvailability(atoms, universe)
	if assert.Len(t, diags, 2) {
		assert.Equal(t, UnavailableReason, diags[0].Reason)
		assert.Equal(t, UnknownPackage, diags[1].Reason)
	}
}

func TestCheckAvailabilitySatisfiedAtomYieldsNoDiagnostic(t *testing.T) {
	universe := Universe{
		KnownNames: []string{"OCaml"},
		Versions:   map[string][]string{"OCaml": {"4.14.0"}},
	}
	atoms := []pkgset.Atom{{Name: "OCaml"}}
	assert.Empty(t, CheckAvailability(atoms, universe))
}

func TestErrUnsatisfiedAtoms(t *testing.T) {
	assert.Nil(t, ErrUnsatisfiedAtoms(nil))
	assert.Error(t, ErrUnsatisfiedAtoms([]Diagnostic{{Atom: pkgset.Atom{Name: "x"}, Reason: UnknownPackage}}))
}
