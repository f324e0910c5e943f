package collaborator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// CommandSet is the per-package set of shell commands a LocalExecutor
// runs, keyed by the build/install/remove/metadata lifecycle.
type CommandSet struct {
	// Build, Install, Remove, and Metadata are shell command lines run
	// with "sh -c", joined with " && ".
	Build    []string
	Install  []string
	Remove   []string
	Metadata []string
}

// ManifestSource supplies the per-package working directory, source path,
// and command set a LocalExecutor needs.
type ManifestSource interface {
	WorkDir(p pkgset.Package) string
	Commands(p pkgset.Package) CommandSet
	SourcePath(p pkgset.Package, artifact string) string
}

// LocalExecutor is the shipped ActionExecutor: it shells out to a
// package's build/install/remove commands via os/exec, one working
// directory per package.
type LocalExecutor struct {
	manifests ManifestSource
	env       map[string]string
}

// NewLocalExecutor creates a LocalExecutor backed by the given manifest
// source, with optional extra environment variables applied to every
// command it runs.
func NewLocalExecutor(manifests ManifestSource, env map[string]string) *LocalExecutor {
	return &LocalExecutor{manifests: manifests, env: env}
}

func (e *LocalExecutor) run(ctx context.Context, workDir string, cmds []string) error {
	if len(cmds) == 0 {
		return nil
	}
	joined := strings.Join(cmds, " && ")
	cmd := exec.CommandContext(ctx, "sh", "-c", joined)
	if workDir != "" {
		cmd.Dir = workDir
	}
	cmd.Env = os.Environ()
	for k, v := range e.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start).Seconds()

	if err != nil {
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		slog.Error("command failed", "command", joined, "code", code, "stderr", stderr.String())
		return NewProcessError(code, duration, splitLines(stdout.String()), splitLines(stderr.String()), err)
	}
	slog.Debug("command succeeded", "command", joined, "duration", duration)
	return nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// BuildAndInstall runs the package's build then install commands, or just
// the metadata command when metadata is true.
func (e *LocalExecutor) BuildAndInstall(ctx context.Context, st *engstate.TransientState, p pkgset.Package, metadata bool) error {
	workDir := e.manifests.WorkDir(p)
	cs := e.manifests.Commands(p)
	if metadata {
		return e.run(ctx, workDir, cs.Metadata)
	}
	if err := e.run(ctx, workDir, cs.Build); err != nil {
		return err
	}
	return e.run(ctx, workDir, cs.Install)
}

// RemoveAllPackages removes, in one batch, every package sol replaces,
// recompiles, or deletes; fresh installs have nothing on disk to remove.
// It does not stop at the first failure, since the remover must classify
// the whole batch before any scheduling decision is made.
func (e *LocalExecutor) RemoveAllPackages(ctx context.Context, st *engstate.TransientState, sol *actiongraph.Solution) ([]pkgset.Package, error) {
	var deleted []pkgset.Package
	var firstErr error
	for _, target := range RemovalTargets(sol) {
		cs := e.manifests.Commands(target)
		if err := e.run(ctx, e.manifests.WorkDir(target), cs.Remove); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted = append(deleted, target)
	}
	return deleted, firstErr
}

// RemovalTargets returns the currently installed packages sol's actions
// displace: the previous version of every upgrade/downgrade, every
// recompiled package, and every deletion. Fresh installs contribute
// nothing.
func RemovalTargets(sol *actiongraph.Solution) []pkgset.Package {
	var targets []pkgset.Package
	for _, p := range sol.ToProcess.Packages() {
		node, ok := sol.ToProcess.Node(actiongraph.NodeID(p.Name))
		if !ok {
			continue
		}
		a := node.Action
		switch a.Kind {
		case actiongraph.ToDelete, actiongraph.ToRecompile:
			targets = append(targets, a.Package())
		case actiongraph.ToChange:
			if a.Previous != nil {
				targets = append(targets, *a.Previous)
			}
		}
	}
	return targets
}

// CleanupPackageArtefacts removes the package's working directory, the
// coarsest artefact-cleanup a source-based build leaves behind.
func (e *LocalExecutor) CleanupPackageArtefacts(ctx context.Context, st *engstate.TransientState, p pkgset.Package) error {
	dir := e.manifests.WorkDir(p)
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return NewInternalError(fmt.Sprintf("cleanup %s: %v", p.String(), err))
	}
	return nil
}

// InstallMetadata writes only the package's manifest metadata.
func (e *LocalExecutor) InstallMetadata(ctx context.Context, st *engstate.TransientState, p pkgset.Package) error {
	return e.BuildAndInstall(ctx, st, p, true)
}

// DownloadPackage is not implemented by LocalExecutor directly; source
// fetching is delegated to SourceDownloader and composed at the call site
// (cmd/spm's compositeExecutor wires both collaborators together).
func (e *LocalExecutor) DownloadPackage(ctx context.Context, st *engstate.TransientState, p pkgset.Package) (string, error) {
	return "", nil
}

// SourcesNeeded reports every package in sol whose source artefact is not
// already present under its working directory.
func (e *LocalExecutor) SourcesNeeded(st *engstate.TransientState, sol *actiongraph.Solution) []pkgset.Package {
	var need []pkgset.Package
	for _, p := range sol.ToProcess.Packages() {
		marker := filepath.Join(e.manifests.WorkDir(p), ".source-fetched")
		if _, err := os.Stat(marker); err != nil {
			need = append(need, p)
		}
	}
	return need
}
