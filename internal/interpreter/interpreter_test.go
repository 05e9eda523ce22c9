package interpreter

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/carina-iac/carina/internal/graph"
	"github.com/carina-iac/carina/internal/planner"
	"github.com/carina-iac/carina/internal/provider"
	"github.com/carina-iac/carina/internal/provider/memory"
	"github.com/carina-iac/carina/internal/state"
	"github.com/carina-iac/carina/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	vpc provider.Provider
}

func (f fakeRegistry) Lookup(t string) (provider.Provider, bool) {
	return f.vpc, true
}

func TestApplyCreatePersistsProviderID(t *testing.T) {
	mp := memory.New()
	ip := &Interpreter{
		Registry: fakeRegistry{vpc: mp},
		Backend:  state.NewLocalBackend(filepath.Join(t.TempDir(), "state.json")),
	}

	plan := &planner.Plan{Effects: []planner.Effect{{
		Kind:          planner.Create,
		Key:           "aws.vpc.main",
		QualifiedType: "aws.vpc",
		Attrs:         map[string]value.Value{"name": value.String("main")},
	}}}

	g := graph.New()
	g.AddNode("aws.vpc.main")

	result := ip.Apply(context.Background(), plan, state.New(), g)
	require.NoError(t, result.Err)
	require.Len(t, result.Executed, 1)

	loaded, err := ip.Backend.Load(context.Background())
	require.NoError(t, err)
	entry := loaded.Resources["aws.vpc.main"]
	assert.Equal(t, "vpc-001", entry.ProviderID)
}

// TestApplyIDPropagation: a subnet's Create must receive the vpc's provider id as a literal once the vpc's Create
// completes.
func TestApplyIDPropagation(t *testing.T) {
	mp := memory.New()
	ip := &Interpreter{
		Registry: fakeRegistry{vpc: mp},
		Backend:  state.NewLocalBackend(filepath.Join(t.TempDir(), "state.json")),
	}

	ref := value.Ref(value.Reference{Binding: "v", Attribute: "id", ResolvedKey: "aws.vpc.main"})

	plan := &planner.Plan{Effects: []planner.Effect{
		{
			Kind:          planner.Create,
			Key:           "aws.vpc.main",
			QualifiedType: "aws.vpc",
			Attrs:         map[string]value.Value{"name": value.String("main")},
		},
		{
			Kind:          planner.Create,
			Key:           "aws.subnet.priv",
			QualifiedType: "aws.subnet",
			Attrs:         map[string]value.Value{"name": value.String("priv"), "vpc_id": ref},
		},
	}}

	g := graph.New()
	g.AddEdge("aws.subnet.priv", "aws.vpc.main")

	result := ip.Apply(context.Background(), plan, state.New(), g)
	require.NoError(t, result.Err)

	loaded, err := ip.Backend.Load(context.Background())
	require.NoError(t, err)
	subnetEntry := loaded.Resources["aws.subnet.priv"]
	assert.Equal(t, "vpc-001", subnetEntry.Attrs["vpc_id"].AsString())
}

// TestApplyPartialFailurePersistsPrefix: if E2 fails, the persisted state reflects E1's outcome only, and E3 is
// never attempted.
func TestApplyPartialFailurePersistsPrefix(t *testing.T) {
	mp := memory.New()
	mp.FailOn = func(op, qualifiedType, providerID string) error {
		if qualifiedType == "aws.subnet" && op == "create" {
			return errors.New("simulated provider failure")
		}
		return nil
	}
	ip := &Interpreter{
		Registry: fakeRegistry{vpc: mp},
		Backend:  state.NewLocalBackend(filepath.Join(t.TempDir(), "state.json")),
	}

	plan := &planner.Plan{Effects: []planner.Effect{
		{Kind: planner.Create, Key: "aws.vpc.main", QualifiedType: "aws.vpc", Attrs: map[string]value.Value{"name": value.String("main")}},
		{Kind: planner.Create, Key: "aws.subnet.priv", QualifiedType: "aws.subnet", Attrs: map[string]value.Value{"name": value.String("priv")}},
		{Kind: planner.Create, Key: "aws.subnet.pub", QualifiedType: "aws.subnet", Attrs: map[string]value.Value{"name": value.String("pub")}},
	}}

	g := graph.New()
	g.AddNode("aws.vpc.main")
	g.AddNode("aws.subnet.priv")
	g.AddNode("aws.subnet.pub")

	result := ip.Apply(context.Background(), plan, state.New(), g)
	require.Error(t, result.Err)
	require.NotNil(t, result.Failed)
	assert.Equal(t, "aws.subnet.priv", result.Failed.Key)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "aws.subnet.pub", result.Skipped[0].Key)

	loaded, err := ip.Backend.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded.Resources, 1)
	_, ok := loaded.Resources["aws.vpc.main"]
	assert.True(t, ok)
}
