package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/carina-iac/carina/internal/graph"
	"github.com/carina-iac/carina/internal/planner"
	"github.com/carina-iac/carina/internal/provider"
	"github.com/carina-iac/carina/internal/state"
	"github.com/carina-iac/carina/internal/swarm"
	"github.com/carina-iac/carina/internal/value"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan [file]",
	Short: "Compute the effects needed to reconcile state with a .crn file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pr, err := buildPlan(ctx, args[0])
		if err != nil {
			return err
		}
		printPlan(pr.Plan)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}

// planResult bundles everything apply.go needs beyond the Plan itself: the
// Backend already opened against the resolved backend stanza, and the
// dependency Graph the interpreter needs for SkippedConnected reporting on
// partial failure.
type planResult struct {
	Plan    *planner.Plan
	Backend state.Backend
	Graph   *graph.Graph
}

// buildPlan runs validate+resolve, loads prior state, and computes a Plan,
// returning the backend and dependency graph alongside it so apply.go can
// reuse the same connection rather than reopening it.
func buildPlan(ctx context.Context, path string) (*planResult, error) {
	file, result, err := parseAndResolve(path)
	if err != nil {
		return nil, err
	}
	if err := validateAll(result); err != nil {
		return nil, err
	}

	backend, err := buildBackend(ctx, file)
	if err != nil {
		return nil, err
	}

	prior, err := backend.Load(ctx)
	if errors.Is(err, state.ErrNotFound) {
		prior = state.New()
	} else if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	var reader planner.Reader
	if config.Refresh {
		reg, perr := buildProviderRegistry(ctx, config.Region)
		if perr != nil {
			logger.Warn("drift refresh disabled: could not initialize provider", "error", perr)
		} else {
			reader = driftReader(ctx, reg, prior)
		}
	}

	p, err := planner.ComputePlan(ctx, result.Resources, prior, result.Graph, schemaRegistry, reader)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	return &planResult{Plan: p, Backend: backend, Graph: result.Graph}, nil
}

type driftResult struct {
	values map[string]value.Value
	err    error
}

// driftReader pre-fetches every prior entry's live state concurrently via
// swarm.FanOut (AIMD-governed, so a flaky provider throttles the fan-out
// down rather than hammering it), then returns a planner.Reader that
// serves the differ's per-key lookups from that cache. A
// provider.ErrNotFound result propagates unchanged, letting the planner
// demote that entry to Create (deleted out-of-band).
func driftReader(ctx context.Context, reg *provider.Registry, prior *state.Document) planner.Reader {
	keys := make([]string, 0, len(prior.Resources))
	for k := range prior.Resources {
		keys = append(keys, k)
	}

	// Each task writes only to its own slot in results (indexed by
	// position, not through a shared map) since FanOut's goroutines run
	// concurrently and Go maps are not safe for concurrent writes even
	// to distinct keys. The cache map itself is assembled afterward,
	// once all goroutines have joined.
	results := make([]driftResult, len(keys))
	tasks := make([]swarm.Task, len(keys))
	for i, k := range keys {
		i := i
		entry := prior.Resources[k]
		tasks[i] = func(ctx context.Context) error {
			p, ok := reg.Lookup(entry.Type)
			if !ok {
				err := fmt.Errorf("no provider registered for %q", entry.Type)
				results[i] = driftResult{err: err}
				return err
			}
			observed, err := p.Read(ctx, entry.Type, entry.ProviderID)
			if err != nil {
				results[i] = driftResult{err: err}
				return err
			}
			results[i] = driftResult{values: observed.Values}
			return nil
		}
	}
	swarm.FanOut(ctx, tasks, swarm.Tuning{Max: config.Parallelism})

	cache := make(map[string]driftResult, len(keys))
	for i, k := range keys {
		cache[k] = results[i]
	}

	return func(ctx context.Context, qualifiedType, providerID string) (map[string]value.Value, error) {
		for k, entry := range prior.Resources {
			if entry.Type == qualifiedType && entry.ProviderID == providerID {
				res := cache[k]
				return res.values, res.err
			}
		}
		return nil, fmt.Errorf("no cached drift read for %s/%s", qualifiedType, providerID)
	}
}

var (
	createStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F"))
	updateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D7AF5F"))
	deleteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#D75F5F"))
	replaceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#D75FD7"))
)

func printPlan(p *planner.Plan) {
	if len(p.Effects) == 0 {
		fmt.Println("No changes. Infrastructure matches the declared state.")
		return
	}
	var creates, updates, deletes, replaces int
	for _, e := range p.Effects {
		switch e.Kind {
		case planner.Create:
			creates++
			fmt.Println(createStyle.Render(fmt.Sprintf("  + %s", e.Key)))
		case planner.Update:
			updates++
			fmt.Println(updateStyle.Render(fmt.Sprintf("  ~ %s (%v)", e.Key, e.ChangedFields)))
		case planner.Delete:
			deletes++
			fmt.Println(deleteStyle.Render(fmt.Sprintf("  - %s", e.Key)))
		case planner.Replace:
			replaces++
			fmt.Println(replaceStyle.Render(fmt.Sprintf("  -/+ %s", e.Key)))
		}
	}
	fmt.Printf("\nPlan: %d to create, %d to update, %d to replace, %d to delete.\n", creates, updates, replaces, deletes)
}
