// Package envwarn warns, at most once per process, about environment
// variables that may interfere with an apply before it proceeds.
package envwarn

import (
	"log/slog"
	"os"
	"sort"
	"sync"
)

// CompilerManifest is the subset of a compiler package's manifest the
// checker needs: the set of variables it defines by assignment (`=`), as
// opposed to append.
type CompilerManifest struct {
	Name           string
	AssignedVars   map[string]bool
}

// Checker computes and warns about interfering environment variables
// exactly once per its lifetime, scoped to the value instead of a
// package-level flag.
type Checker struct {
	once sync.Once

	// ToolchainVars is the fixed list of toolchain-related variable names.
	ToolchainVars []string
	// ToolchainPackageName names the package whose presence in Installed
	// gates the ToolchainVars warning.
	ToolchainPackageName string
}

// NewChecker creates a Checker for the given fixed toolchain variable list
// and gating package name.
func NewChecker(toolchainVars []string, toolchainPackageName string) *Checker {
	return &Checker{ToolchainVars: toolchainVars, ToolchainPackageName: toolchainPackageName}
}

// Interfering computes the set of currently-set environment variables that
// may interfere with the apply, by two rules:
//  1. the fixed toolchain variable list, only if installed contains the
//     toolchain package;
//  2. the difference of every other compiler's assigned variables minus
//     the current compiler's assigned variables.
func (c *Checker) Interfering(installed map[string]bool, currentCompiler string, otherCompilers []CompilerManifest) []string {
	candidates := make(map[string]bool)

	if installed[c.ToolchainPackageName] {
		for _, v := range c.ToolchainVars {
			candidates[v] = true
		}
	}

	var currentVars map[string]bool
	for _, m := range otherCompilers {
		if m.Name == currentCompiler {
			currentVars = m.AssignedVars
			break
		}
	}
	for _, m := range otherCompilers {
		if m.Name == currentCompiler {
			continue
		}
		for v := range m.AssignedVars {
			if !currentVars[v] {
				candidates[v] = true
			}
		}
	}

	var set []string
	for v := range candidates {
		if _, ok := os.LookupEnv(v); ok {
			set = append(set, v)
		}
	}
	sort.Strings(set)
	return set
}

// WarnOnce runs Interfering and, on the first call only for this Checker's
// lifetime, invokes confirm with the offending variable list if non-empty.
// confirm returning false means the user declined and the caller must
// abort. Subsequent calls are no-ops that return true.
func (c *Checker) WarnOnce(installed map[string]bool, currentCompiler string, otherCompilers []CompilerManifest, confirm func(vars []string) (bool, error)) (bool, error) {
	var proceed = true
	var err error
	c.once.Do(func() {
		vars := c.Interfering(installed, currentCompiler, otherCompilers)
		if len(vars) == 0 {
			return
		}
		slog.Debug("interfering environment variables detected", "vars", vars)
		proceed, err = confirm(vars)
	})
	return proceed, err
}
