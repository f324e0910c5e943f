package actiongraph

import (
	"github.com/sourcepm/sourcepm/internal/pkgset"
	"github.com/sourcepm/sourcepm/internal/semverx"
)

// Kind discriminates the tagged variants of Action.
type Kind int

const (
	// ToChange installs (Previous is nil), upgrades, or downgrades
	// (ordered by version comparison) a package.
	ToChange Kind = iota
	// ToRecompile rebuilds the same version of a package in place.
	ToRecompile
	// ToDelete removes a package.
	ToDelete
)

func (k Kind) String() string {
	switch k {
	case ToChange:
		return "change"
	case ToRecompile:
		return "recompile"
	case ToDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Action is a single planned operation on a package, the unit of
// scheduling in the ActionGraph.
type Action struct {
	Kind Kind

	// Previous is the currently installed package, if any. For ToChange
	// it is the version being replaced (nil for a fresh install); for
	// ToDelete it holds the package being removed. ToRecompile acts on
	// Target.
	Previous *pkgset.Package

	// Target is the desired package after the action completes. For
	// ToDelete, Target is the zero value; Previous holds the package
	// being removed.
	Target pkgset.Package
}

// Package returns the package this action concerns: Target for
// ToChange/ToRecompile, Previous for ToDelete.
func (a Action) Package() pkgset.Package {
	if a.Kind == ToDelete {
		if a.Previous != nil {
			return *a.Previous
		}
		return pkgset.Package{}
	}
	return a.Target
}

// Verb returns the human-facing present-participle verb for this action,
// used both in CLI preview rendering and in per-failure report lines.
func (a Action) Verb() string {
	switch a.Kind {
	case ToChange:
		if a.Previous == nil {
			return "installing"
		}
		if cmp := a.compareVersions(); cmp < 0 {
			return "upgrading to"
		} else if cmp > 0 {
			return "downgrading to"
		}
		return "installing"
	case ToRecompile:
		return "recompiling"
	case ToDelete:
		return "removing"
	default:
		return "processing"
	}
}

func (a Action) compareVersions() int {
	if a.Previous == nil {
		return -1
	}
	cmp, err := semverx.Compare(a.Previous.Version, a.Target.Version)
	if err != nil {
		return -1
	}
	return cmp
}
