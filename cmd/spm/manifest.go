package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/envwarn"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

// universeFile is the on-disk package universe the CLI loads for a run: a
// minimal, explicit stand-in for a synced repository index rather than a
// real package registry.
type universeFile struct {
	Packages []universePackage `json:"packages"`
}

type universePackage struct {
	Name     string                `json:"name"`
	Version  string                `json:"version"`
	Source   universeSource        `json:"source"`
	Commands collaborator.CommandSet `json:"commands"`
	Pinned   bool                  `json:"pinned"`
	Repository string              `json:"repository"`
	Messages []universeMessage     `json:"messages"`

	// Compiler marks a package whose manifest-defined environment
	// variables participate in the pre-apply interference warning.
	Compiler bool              `json:"compiler"`
	Env      []universeEnvVar  `json:"env"`
}

// universeEnvVar is one environment variable a package's manifest
// defines. Op "=" assigns (the default); "+=" appends. Only assigned
// variables count toward the compiler-interference warning.
type universeEnvVar struct {
	Name  string `json:"name"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

type universeSource struct {
	Kind   string `json:"kind"` // "http" | "git"
	URL    string `json:"url"`
	GitURL string `json:"gitUrl"`
	GitRef string `json:"gitRef"`
	Algorithm string `json:"algorithm"`
	Checksum  string `json:"checksum"`
}

type universeMessage struct {
	Text   string `json:"text"`
	Filter string `json:"filter"`
}

// loadedUniverse is the fully-wired set of collaborators built from a
// universeFile, ready to back a DirectSolver, LocalExecutor, and
// LocalStateAccessor.
type loadedUniverse struct {
	index     map[string]pkgset.Package
	sources   map[string]pkgset.Source
	commands  map[string]collaborator.CommandSet
	workDirs  map[string]string
	accessor  *collaborator.LocalStateAccessor
	knownNames []string
	compilers  []envwarn.CompilerManifest
}

func loadUniverse(path, workDirRoot string) (*loadedUniverse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe file: %w", err)
	}
	var uf universeFile
	if err := json.Unmarshal(data, &uf); err != nil {
		return nil, fmt.Errorf("parse universe file: %w", err)
	}

	lu := &loadedUniverse{
		index:    make(map[string]pkgset.Package),
		sources:  make(map[string]pkgset.Source),
		commands: make(map[string]collaborator.CommandSet),
		workDirs: make(map[string]string),
		accessor: collaborator.NewLocalStateAccessor(),
	}

	for _, p := range uf.Packages {
		pkg := pkgset.Package{Name: p.Name, Version: p.Version}
		lu.index[p.Name] = pkg
		lu.commands[p.Name] = p.Commands
		lu.workDirs[p.Name] = filepath.Join(workDirRoot, p.Name)
		lu.knownNames = append(lu.knownNames, p.Name)

		var src pkgset.Source
		switch p.Source.Kind {
		case "git":
			src = pkgset.Source{Kind: pkgset.SourceKindGit, GitURL: p.Source.GitURL, GitRef: p.Source.GitRef, Pinned: p.Pinned}
		default:
			var cs *pkgset.Checksum
			if p.Source.Checksum != "" {
				cs = &pkgset.Checksum{Algorithm: p.Source.Algorithm, Value: p.Source.Checksum}
			}
			src = pkgset.Source{Kind: pkgset.SourceKindHTTP, URL: p.Source.URL, Checksum: cs, Pinned: p.Pinned}
		}
		lu.sources[p.Name] = src

		lu.accessor.SetPinned(p.Name, p.Pinned)
		lu.accessor.SetLocallyPinned(p.Name, p.Pinned && src.Kind != pkgset.SourceKindHTTP)
		if p.Repository != "" {
			lu.accessor.RegisterRepository(p.Name, collaborator.Repository{Name: p.Repository})
		}

		msgs := make([]collaborator.PostInstallMessage, 0, len(p.Messages))
		for _, m := range p.Messages {
			msgs = append(msgs, collaborator.PostInstallMessage{Text: m.Text, Filter: m.Filter})
		}
		lu.accessor.SetManifest(p.Name, collaborator.PackageManifest{Messages: msgs})

		if p.Compiler {
			assigned := make(map[string]bool, len(p.Env))
			for _, v := range p.Env {
				if v.Op == "" || v.Op == "=" {
					assigned[v.Name] = true
				}
			}
			lu.compilers = append(lu.compilers, envwarn.CompilerManifest{Name: p.Name, AssignedVars: assigned})
		}
	}

	return lu, nil
}

// manifestSource adapts loadedUniverse to collaborator.ManifestSource.
type manifestSource struct {
	lu *loadedUniverse
}

func (m manifestSource) WorkDir(p pkgset.Package) string { return m.lu.workDirs[p.Name] }
func (m manifestSource) Commands(p pkgset.Package) collaborator.CommandSet {
	return m.lu.commands[p.Name]
}
func (m manifestSource) SourcePath(p pkgset.Package, artifact string) string {
	return filepath.Join(m.lu.workDirs[p.Name], artifact)
}
