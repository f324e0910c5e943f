package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/apply"
	"github.com/sourcepm/sourcepm/internal/audit"
	"github.com/sourcepm/sourcepm/internal/collaborator"
	"github.com/sourcepm/sourcepm/internal/engstate"
	"github.com/sourcepm/sourcepm/internal/envwarn"
	"github.com/sourcepm/sourcepm/internal/pkgset"
)

var (
	flagUniverse      string
	flagStateDir      string
	flagWorkDir       string
	flagCacheDir      string
	flagAuditLog      string
	flagYes           bool
	flagDryRun        bool
	flagShowOnly      bool
	flagBuildJobs     int
	flagDownloadJobs  int
)

func registerCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagUniverse, "universe", "universe.json", "path to the package universe manifest")
	cmd.Flags().StringVar(&flagStateDir, "state-dir", "./state", "directory holding the persisted installation state")
	cmd.Flags().StringVar(&flagWorkDir, "work-dir", "./work", "directory holding per-package build working directories")
	cmd.Flags().StringVar(&flagCacheDir, "cache-dir", "./cache", "directory holding fetched source archives")
	cmd.Flags().StringVar(&flagAuditLog, "audit-log", "", "path to append audit JSON records to (disabled if empty)")
	cmd.Flags().IntVar(&flagBuildJobs, "build-jobs", 4, "maximum concurrent build-and-install operations")
	cmd.Flags().IntVar(&flagDownloadJobs, "download-jobs", 4, "maximum concurrent source downloads")
}

var applyCmd = &cobra.Command{
	Use:   "apply [atoms...]",
	Short: "Install, upgrade, or remove packages to satisfy the given atoms",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApply(cmd, args, apply.RequestInstall)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [names...]",
	Short: "Remove packages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApply(cmd, args, apply.RequestRemove)
	},
}

func init() {
	registerCommonFlags(applyCmd)
	applyCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "skip the confirmation prompt")
	applyCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "suppress install_metadata calls and download-miss failure")
	applyCmd.Flags().BoolVar(&flagShowOnly, "show-only", false, "print the plan and exit without applying it")

	registerCommonFlags(removeCmd)
	removeCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "skip the confirmation prompt")
	removeCmd.Flags().BoolVar(&flagShowOnly, "show-only", false, "print the plan and exit without applying it")

	rootCmd.AddCommand(removeCmd)
}

// engineContext bundles every collaborator an apply or plan run needs,
// built from the CLI flags common to both subcommands.
type engineContext struct {
	store     *engstate.Store
	persister *engstate.StatePersister
	universe  *loadedUniverse
	executor  collaborator.ActionExecutor
	solver    collaborator.Solver
	sink      *audit.Sink
	auditFile *os.File
}

func buildEngineContext(ctx context.Context) (*engineContext, error) {
	universe, err := loadUniverse(flagUniverse, flagWorkDir)
	if err != nil {
		return nil, err
	}

	store, err := engstate.NewStore(flagStateDir)
	if err != nil {
		return nil, err
	}
	if err := store.Lock(); err != nil {
		return nil, err
	}
	state, err := store.Load()
	if err != nil {
		store.Unlock()
		return nil, err
	}
	persister := engstate.NewStatePersister(store, state)

	if err := os.MkdirAll(flagCacheDir, 0o755); err != nil {
		store.Unlock()
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	var progress collaborator.ProgressSink
	if isTerminalOut() {
		progress = collaborator.NewBarProgressSink(mpb.New())
	}

	localExec := collaborator.NewLocalExecutor(manifestSource{lu: universe}, nil)
	downloader := collaborator.NewSourceDownloader(flagCacheDir, progress)
	exec := &compositeExecutor{LocalExecutor: localExec, downloader: downloader, sources: universe.sources}

	solver := collaborator.NewDirectSolver(func(name string) (pkgset.Package, bool) {
		p, ok := universe.index[name]
		return p, ok
	})

	var sink *audit.Sink
	var auditFile *os.File
	if flagAuditLog != "" {
		f, err := os.OpenFile(flagAuditLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			store.Unlock()
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		auditFile = f
		sink = audit.NewSink(f)
	}

	return &engineContext{
		store:     store,
		persister: persister,
		universe:  universe,
		executor:  exec,
		solver:    solver,
		sink:      sink,
		auditFile: auditFile,
	}, nil
}

func (e *engineContext) close() {
	if e.auditFile != nil {
		e.auditFile.Close()
	}
	e.store.Unlock()
}

func isTerminalOut() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// interruptibleContext derives a context cancelled on SIGINT/SIGTERM, so
// Ctrl-C aborts the pipeline mid-flight instead of being ignored.
func interruptibleContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runApply(cmd *cobra.Command, args []string, kind apply.RequestKind) error {
	ctx, stop := interruptibleContext()
	defer stop()

	atoms, err := parseAtoms(args)
	if err != nil {
		return err
	}

	ec, err := buildEngineContext(ctx)
	if err != nil {
		return err
	}
	defer ec.close()

	universeAtoms := apply.Sanitise(atoms, apply.Universe{KnownNames: ec.universe.knownNames})
	diags := checkAvailability(universeAtoms, ec.universe)
	if len(diags) > 0 {
		return fmt.Errorf("%w: %v", errUnsatisfiedAtoms, diags)
	}

	filter := collaborator.NewBoolFilterEvaluator()
	messenger := apply.NewMessenger(ec.universe.accessor, filter, cmd.OutOrStdout())
	reporter := apply.NewReporter(cmd.OutOrStdout(), ec.sink)

	var prompter collaborator.Prompter = collaborator.NewTTYPrompter(cmd.OutOrStdout(), cmd.InOrStdin())
	if flagYes {
		prompter = collaborator.AutoConfirmPrompter{}
	}

	envChecker := envwarn.NewChecker(toolchainEnvVars, toolchainPackageName)

	currentCompiler := ""
	for _, cm := range ec.universe.compilers {
		if ec.persister.State().IsInstalled(cm.Name) {
			currentCompiler = cm.Name
			break
		}
	}

	a := &apply.Applier{
		Persister:       ec.persister,
		Executor:        ec.executor,
		Accessor:        ec.universe.accessor,
		Prompter:        prompter,
		EnvChecker:      envChecker,
		Messenger:       messenger,
		Reporter:        reporter,
		Out:             cmd.OutOrStdout(),
		CurrentCompiler: currentCompiler,
		Compilers:       ec.universe.compilers,
		DownloadJobs:    flagDownloadJobs,
		BuildJobs:       flagBuildJobs,
		AutoYes:         flagYes,
		ShowOnly:        flagShowOnly,
		DryRun:          flagDryRun,
	}

	requestedNames := actiongraph.RequestedNameSet(universeAtoms)
	var fr apply.FinalResult
	if kind == apply.RequestRemove {
		// Removal deletes the named installed packages directly; the
		// DirectSolver only produces install/upgrade/downgrade actions.
		g := actiongraph.New()
		for _, atom := range universeAtoms {
			if p, ok := ec.persister.State().Installed[atom.Name]; ok {
				prev := p
				g.AddAction(actiongraph.Action{Kind: actiongraph.ToDelete, Previous: &prev})
			}
		}
		fr = a.Apply(ctx, kind, requestedNames, &actiongraph.Solution{ToProcess: g})
	} else {
		fr = a.ResolveAndApply(ctx, ec.solver, kind, requestedNames, universeAtoms)
	}

	switch fr.Status {
	case apply.StatusAborted:
		if fr.AbortReason == apply.AbortEnvWarningDeclined {
			return errEnvWarningDeclined
		}
		return nil
	case apply.StatusNoSolution:
		return errNoSolution
	case apply.StatusError:
		if fr.Interrupted {
			return errInterrupted
		}
		return fmt.Errorf("apply finished with errors")
	default:
		return nil
	}
}

// toolchainEnvVars is the fixed compiler-interference variable list,
// warned about only when the toolchain package is installed.
var toolchainEnvVars = []string{"CC", "CXX", "LD", "PKG_CONFIG_PATH", "CAML_LD_LIBRARY_PATH"}

const toolchainPackageName = "ocaml"

func checkAvailability(atoms []pkgset.Atom, u *loadedUniverse) []apply.Diagnostic {
	versions := make(map[string][]string, len(u.index))
	for name, p := range u.index {
		versions[name] = append(versions[name], p.Version)
	}
	return apply.CheckAvailability(atoms, apply.Universe{KnownNames: u.knownNames, Versions: versions})
}
