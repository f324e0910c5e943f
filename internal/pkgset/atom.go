package pkgset

import (
	"fmt"

	"github.com/sourcepm/sourcepm/internal/semverx"
)

// Op is a version comparison operator used in an Atom's constraint.
type Op string

const (
	OpEqual        Op = "="
	OpNotEqual     Op = "!="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
)

// Constraint restricts an Atom to versions satisfying a single relational
// operator against a reference version.
type Constraint struct {
	Op      Op
	Version string
}

// Satisfies reports whether the given version satisfies the constraint.
func (c Constraint) Satisfies(version string) (bool, error) {
	cmp, err := semverx.Compare(version, c.Version)
	if err != nil {
		return false, fmt.Errorf("comparing version %q against %q: %w", version, c.Version, err)
	}
	switch c.Op {
	case OpEqual:
		return cmp == 0, nil
	case OpNotEqual:
		return cmp != 0, nil
	case OpLess:
		return cmp < 0, nil
	case OpLessEqual:
		return cmp <= 0, nil
	case OpGreater:
		return cmp > 0, nil
	case OpGreaterEqual:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("unknown constraint operator %q", c.Op)
	}
}

// Atom is a solver input: a package name with an optional version
// constraint. A nil Constraint means "any version".
type Atom struct {
	Name       string
	Constraint *Constraint
}

// Matches reports whether the atom's constraint (if any) is satisfied by
// the given version. An atom with no constraint matches any version.
func (a Atom) Matches(version string) (bool, error) {
	if a.Constraint == nil {
		return true, nil
	}
	return a.Constraint.Satisfies(version)
}

// String renders the atom in "name op version" form, or just "name" if
// unconstrained.
func (a Atom) String() string {
	if a.Constraint == nil {
		return a.Name
	}
	return fmt.Sprintf("%s%s%s", a.Name, a.Constraint.Op, a.Constraint.Version)
}
