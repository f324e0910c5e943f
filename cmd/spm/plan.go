package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourcepm/sourcepm/internal/actiongraph"
	"github.com/sourcepm/sourcepm/internal/apply"
	"github.com/sourcepm/sourcepm/internal/collaborator"
)

var planCmd = &cobra.Command{
	Use:   "plan [atoms...]",
	Short: "Print the actions that apply would perform, without applying them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan(cmd, args)
	},
}

func init() {
	registerCommonFlags(planCmd)
}

// runPlan resolves a solution and renders its preview the same way apply
// would, then stops before confirmation, without touching the state
// store's write path.
func runPlan(cmd *cobra.Command, args []string) error {
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

	sol, err := ec.solver.Resolve(ctx, ec.persister.State(), universeAtoms)
	if err != nil {
		if err == collaborator.ErrNoSolution {
			return errNoSolution
		}
		return err
	}

	a := &apply.Applier{
		Persister: ec.persister,
		Executor:  ec.executor,
		Accessor:  ec.universe.accessor,
		Prompter:  collaborator.AutoConfirmPrompter{},
		Out:       cmd.OutOrStdout(),
		AutoYes:   true,
		ShowOnly:  true,
	}

	requestedNames := actiongraph.RequestedNameSet(universeAtoms)
	a.Apply(ctx, apply.RequestInstall, requestedNames, sol)
	return nil
}
