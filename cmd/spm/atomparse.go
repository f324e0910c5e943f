package main

import (
	"fmt"
	"strings"

	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// parseAtom parses a CLI-supplied atom of the form "name", "name=version",
// "name>=version", etc. into a pkgset.Atom.
func parseAtom(s string) (pkgset.Atom, error) {
	for _, op := range []pkgset.Op{pkgset.OpGreaterEqual, pkgset.OpLessEqual, pkgset.OpNotEqual, pkgset.OpEqual, pkgset.OpGreater, pkgset.OpLess} {
		if idx := strings.Index(s, string(op)); idx > 0 {
			name := strings.TrimSpace(s[:idx])
			version := strings.TrimSpace(s[idx+len(op):])
			if version == "" {
				return pkgset.Atom{}, fmt.Errorf("atom %q has operator %q but no version", s, op)
			}
			return pkgset.Atom{Name: name, Constraint: &pkgset.Constraint{Op: op, Version: version}}, nil
		}
	}
	name := strings.TrimSpace(s)
	if name == "" {
		return pkgset.Atom{}, fmt.Errorf("empty atom")
	}
	return pkgset.Atom{Name: name}, nil
}

func parseAtoms(args []string) ([]pkgset.Atom, error) {
	atoms := make([]pkgset.Atom, 0, len(args))
	for _, a := range args {
		atom, err := parseAtom(a)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, atom)
	}
	return atoms, nil
}
