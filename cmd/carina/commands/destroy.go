package commands

import (
	"errors"
	"fmt"

	"github.com/carina-iac/carina/internal/planner"
	"github.com/carina-iac/carina/internal/state"
	"github.com/spf13/cobra"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [file]",
	Short: "Delete every resource tracked in state for a .crn file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		file, result, err := parseAndResolve(args[0])
		if err != nil {
			return err
		}

		backend, err := buildBackend(ctx, file)
		if err != nil {
			return err
		}

		prior, err := backend.Load(ctx)
		if errors.Is(err, state.ErrNotFound) {
			fmt.Println("No state found; nothing to destroy.")
			return nil
		} else if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		p, err := planner.DestroyPlan(prior, result.Graph)
		if err != nil {
			return fmt.Errorf("planning destroy: %w", err)
		}
		pr := &planResult{Plan: p, Backend: backend, Graph: result.Graph}
		printPlan(pr.Plan)
		if len(pr.Plan.Effects) == 0 {
			return nil
		}
		if !config.AutoApprove && !confirm("destroy") {
			fmt.Println("Destroy cancelled.")
			return nil
		}

		reg, err := buildProviderRegistry(ctx, config.Region)
		if err != nil {
			return err
		}
		return runInterpreter(ctx, pr, reg, true)
	},
}

func init() {
	rootCmd.AddCommand(destroyCmd)
}
