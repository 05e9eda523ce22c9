package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/carina-iac/carina/internal/cerrors"
	"github.com/carina-iac/carina/internal/interpreter"
	"github.com/carina-iac/carina/internal/state"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply [file]",
	Short: "Plan and execute the effects needed to reconcile state with a .crn file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pr, err := buildPlan(ctx, args[0])
		if err != nil {
			return err
		}
		printPlan(pr.Plan)
		if len(pr.Plan.Effects) == 0 {
			return nil
		}
		if !config.AutoApprove && !confirm("apply") {
			fmt.Println("Apply cancelled.")
			return nil
		}

		reg, err := buildProviderRegistry(ctx, config.Region)
		if err != nil {
			return err
		}

		return runInterpreter(ctx, pr, reg, false)
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
}

func confirm(verb string) bool {
	fmt.Printf("\nDo you want to perform these actions? Only 'yes' will %s.\n", verb)
	fmt.Print("Enter a value: ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}

func lockIdentity() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("carina-cli@%s", host)
}

// runInterpreter acquires the state lock, loads the latest document under
// it, executes pr.Plan, and prints the result. Shared by apply.go and
// destroy.go.
func runInterpreter(ctx context.Context, pr *planResult, reg interpreter.Registry, isDestroy bool) error {
	handle, err := pr.Backend.Lock(ctx, lockIdentity(), time.Duration(config.LockTimeoutS)*time.Second)
	if err != nil {
		return fmt.Errorf("acquiring state lock: %w", err)
	}
	defer pr.Backend.Unlock(ctx, handle)

	doc, err := pr.Backend.Load(ctx)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			doc = state.New()
		} else {
			return fmt.Errorf("loading state: %w", err)
		}
	}

	ip := &interpreter.Interpreter{Registry: reg, Backend: pr.Backend}
	var result interpreter.Result
	if isDestroy {
		result = ip.DestroyApply(ctx, pr.Plan, doc, pr.Graph)
	} else {
		result = ip.Apply(ctx, pr.Plan, doc, pr.Graph)
	}
	printResult(result)
	if result.Err != nil {
		os.Exit(exitCode(result.Err))
	}
	return nil
}

// exitCode maps an apply failure onto the CLI's exit contract: 2 for
// provider or state-store (runtime) failures, 1 for everything else.
func exitCode(err error) int {
	var provErr *cerrors.ProviderError
	var stateErr *cerrors.StateError
	if errors.As(err, &provErr) || errors.As(err, &stateErr) {
		return 2
	}
	return 1
}

func printResult(result interpreter.Result) {
	fmt.Printf("\nApply complete. %d action(s) executed.\n", len(result.Executed))
	if result.Failed != nil {
		fmt.Printf("Failed: %s (%v)\n", result.Failed.Key, result.Err)
		for _, s := range result.Skipped {
			blocked := result.SkippedConnected[s.Key]
			fmt.Printf("  skipped %s (blocked by failure: %v)\n", s.Key, blocked)
		}
	}
}
