package planner

import (
	"context"
	"testing"

	"github.com/carina-iac/carina/internal/graph"
	"github.com/carina-iac/carina/internal/resource"
	"github.com/carina-iac/carina/internal/schema"
	"github.com/carina-iac/carina/internal/state"
	"github.com/carina-iac/carina/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vpcSchema = schema.ResourceSchema{
	TypeName: "aws.vpc",
	Attributes: map[string]schema.AttributeSchema{
		"name":                  {Type: schema.String()},
		"cidr_block":            {Type: schema.CidrBlock(), Immutable: true},
		"enable_dns_hostnames":  {Type: schema.Bool()},
		"id":                    {Type: schema.String(), Computed: true},
	},
}

var subnetSchema = schema.ResourceSchema{
	TypeName: "aws.subnet",
	Attributes: map[string]schema.AttributeSchema{
		"name":       {Type: schema.String()},
		"vpc_id":     {Type: schema.Ref("aws.vpc"), Immutable: true},
		"cidr_block": {Type: schema.CidrBlock(), Immutable: true},
		"id":         {Type: schema.String(), Computed: true},
	},
}

type fakeRegistry map[string]schema.ResourceSchema

func (f fakeRegistry) Lookup(t string) (schema.ResourceSchema, bool) {
	s, ok := f[t]
	return s, ok
}

func vpcKey(name string) resource.Key {
	return resource.Key{QualifiedType: "aws.vpc", LocalName: name}
}

func TestPlanCreateOnly(t *testing.T) {
	desired := []*resource.Resource{{
		Key: vpcKey("main"),
		Attrs: map[string]value.Value{
			"name":       value.String("main"),
			"cidr_block": value.String("10.0.0.0/16"),
		},
	}}
	doc := state.New()
	g := graph.New()
	g.AddNode("aws.vpc.main")

	plan, err := ComputePlan(context.Background(), desired, doc, g, fakeRegistry{"aws.vpc": vpcSchema}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Effects, 1)
	assert.Equal(t, Create, plan.Effects[0].Kind)
	assert.Equal(t, "aws.vpc.main", plan.Effects[0].Key)
}

func TestPlanInPlaceUpdate(t *testing.T) {
	doc := state.New()
	doc.Put("aws.vpc.main", "aws.vpc", "vpc-001", map[string]value.Value{
		"name":                 value.String("main"),
		"cidr_block":           value.String("10.0.0.0/16"),
		"enable_dns_hostnames": value.Boolean(false),
	})

	desired := []*resource.Resource{{
		Key: vpcKey("main"),
		Attrs: map[string]value.Value{
			"name":                 value.String("main"),
			"cidr_block":           value.String("10.0.0.0/16"),
			"enable_dns_hostnames": value.Boolean(true),
		},
	}}
	g := graph.New()
	g.AddNode("aws.vpc.main")

	plan, err := ComputePlan(context.Background(), desired, doc, g, fakeRegistry{"aws.vpc": vpcSchema}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Effects, 1)
	assert.Equal(t, Update, plan.Effects[0].Kind)
	assert.Equal(t, []string{"enable_dns_hostnames"}, plan.Effects[0].ChangedFields)
}

func TestPlanReplaceOnImmutableChange(t *testing.T) {
	doc := state.New()
	doc.Put("aws.vpc.main", "aws.vpc", "vpc-001", map[string]value.Value{
		"name":       value.String("main"),
		"cidr_block": value.String("10.0.0.0/16"),
	})

	desired := []*resource.Resource{{
		Key: vpcKey("main"),
		Attrs: map[string]value.Value{
			"name":       value.String("main"),
			"cidr_block": value.String("10.1.0.0/16"),
		},
	}}
	g := graph.New()
	g.AddNode("aws.vpc.main")

	plan, err := ComputePlan(context.Background(), desired, doc, g, fakeRegistry{"aws.vpc": vpcSchema}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Effects, 1)
	assert.Equal(t, Replace, plan.Effects[0].Kind)
}

// TestPlanDependentCreationOrder: vpc before subnet.
func TestPlanDependentCreationOrder(t *testing.T) {
	desired := []*resource.Resource{
		{Key: vpcKey("main"), Attrs: map[string]value.Value{"name": value.String("main")}},
		{
			Key:       resource.Key{QualifiedType: "aws.subnet", LocalName: "priv"},
			Attrs:     map[string]value.Value{"name": value.String("priv")},
			DependsOn: map[string]bool{"aws.vpc.main": true},
		},
	}
	g := graph.New()
	g.AddEdge("aws.subnet.priv", "aws.vpc.main")

	plan, err := ComputePlan(context.Background(), desired, state.New(), g, fakeRegistry{}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Effects, 2)
	assert.Equal(t, "aws.vpc.main", plan.Effects[0].Key)
	assert.Equal(t, "aws.subnet.priv", plan.Effects[1].Key)
}

// TestPlanDeleteCascadeOrdering: subnet deleted before vpc.
func TestPlanDeleteCascadeOrdering(t *testing.T) {
	doc := state.New()
	doc.Put("aws.vpc.main", "aws.vpc", "vpc-001", nil)
	doc.Put("aws.subnet.priv", "aws.subnet", "subnet-001", nil)

	g := graph.New()
	g.AddEdge("aws.subnet.priv", "aws.vpc.main")

	plan, err := ComputePlan(context.Background(), nil, doc, g, fakeRegistry{}, nil)
	require.NoError(t, err)
	require.Len(t, plan.Effects, 2)
	assert.Equal(t, Delete, plan.Effects[0].Kind)
	assert.Equal(t, "aws.subnet.priv", plan.Effects[0].Key)
	assert.Equal(t, "aws.vpc.main", plan.Effects[1].Key)
}

// TestPlanDriftDemotesToCreate: a NotFound from the reader for a key
// present in prior state demotes it to Create.
func TestPlanDriftDemotesToCreate(t *testing.T) {
	doc := state.New()
	doc.Put("aws.vpc.main", "aws.vpc", "vpc-001", nil)

	desired := []*resource.Resource{{
		Key:   vpcKey("main"),
		Attrs: map[string]value.Value{"name": value.String("main")},
	}}
	g := graph.New()
	g.AddNode("aws.vpc.main")

	reader := func(ctx context.Context, qualifiedType, providerID string) (map[string]value.Value, error) {
		return nil, errNotFoundStub{}
	}

	plan, err := ComputePlan(context.Background(), desired, doc, g, fakeRegistry{}, reader)
	require.NoError(t, err)
	require.Len(t, plan.Effects, 1)
	assert.Equal(t, Create, plan.Effects[0].Kind)
}

type errNotFoundStub struct{}

func (errNotFoundStub) Error() string { return "provider: resource not found" }

func (errNotFoundStub) Is(target error) bool {
	return target.Error() == "provider: resource not found"
}

// TestPlanReferenceToExistingResourceIsStable: re-planning an unchanged
// configuration whose subnet references an already-created vpc's computed
// id must produce an empty plan, not a spurious Replace of the subnet.
func TestPlanReferenceToExistingResourceIsStable(t *testing.T) {
	doc := state.New()
	doc.Put("aws.vpc.main", "aws.vpc", "vpc-001", map[string]value.Value{
		"name":       value.String("main"),
		"cidr_block": value.String("10.0.0.0/16"),
		"id":         value.String("vpc-001"),
	})
	doc.Put("aws.subnet.priv", "aws.subnet", "subnet-001", map[string]value.Value{
		"name":       value.String("priv"),
		"vpc_id":     value.String("vpc-001"),
		"cidr_block": value.String("10.0.1.0/24"),
	})

	desired := []*resource.Resource{
		{
			Key: vpcKey("main"),
			Attrs: map[string]value.Value{
				"name":       value.String("main"),
				"cidr_block": value.String("10.0.0.0/16"),
			},
		},
		{
			Key: resource.Key{QualifiedType: "aws.subnet", LocalName: "priv"},
			Attrs: map[string]value.Value{
				"name":       value.String("priv"),
				"vpc_id":     value.Ref(value.Reference{Binding: "v", Attribute: "id", ResolvedKey: "aws.vpc.main"}),
				"cidr_block": value.String("10.0.1.0/24"),
			},
		},
	}
	g := graph.New()
	g.AddEdge("aws.subnet.priv", "aws.vpc.main")

	reg := fakeRegistry{"aws.vpc": vpcSchema, "aws.subnet": subnetSchema}
	plan, err := ComputePlan(context.Background(), desired, doc, g, reg, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Effects)
}

// TestPlanReferenceToNewResourceStaysDeferred: when the referent has no
// prior entry, the subnet's vpc_id must reach its Create effect still as
// a Reference for the interpreter to fill in.
func TestPlanReferenceToNewResourceStaysDeferred(t *testing.T) {
	desired := []*resource.Resource{
		{
			Key:   vpcKey("main"),
			Attrs: map[string]value.Value{"name": value.String("main"), "cidr_block": value.String("10.0.0.0/16")},
		},
		{
			Key: resource.Key{QualifiedType: "aws.subnet", LocalName: "priv"},
			Attrs: map[string]value.Value{
				"name":   value.String("priv"),
				"vpc_id": value.Ref(value.Reference{Binding: "v", Attribute: "id", ResolvedKey: "aws.vpc.main"}),
			},
			DependsOn: map[string]bool{"aws.vpc.main": true},
		},
	}
	g := graph.New()
	g.AddEdge("aws.subnet.priv", "aws.vpc.main")

	reg := fakeRegistry{"aws.vpc": vpcSchema, "aws.subnet": subnetSchema}
	plan, err := ComputePlan(context.Background(), desired, state.New(), g, reg, nil)
	require.NoError(t, err)
	require.Len(t, plan.Effects, 2)
	assert.Equal(t, "aws.vpc.main", plan.Effects[0].Key)

	subnetAttrs := plan.Effects[1].Attrs
	require.Equal(t, value.KindReference, subnetAttrs["vpc_id"].Kind)
	assert.Equal(t, "aws.vpc.main", subnetAttrs["vpc_id"].AsReference().ResolvedKey)
}

// TestPlanReferenceToVanishedResourceStaysDeferred: a referent that was
// deleted out-of-band must not contribute its stale provider id; both it
// and the referrer are re-created, with the reference left for the
// interpreter.
func TestPlanReferenceToVanishedResourceStaysDeferred(t *testing.T) {
	doc := state.New()
	doc.Put("aws.vpc.main", "aws.vpc", "vpc-stale", map[string]value.Value{
		"name": value.String("main"),
	})

	desired := []*resource.Resource{
		{
			Key:   vpcKey("main"),
			Attrs: map[string]value.Value{"name": value.String("main"), "cidr_block": value.String("10.0.0.0/16")},
		},
		{
			Key: resource.Key{QualifiedType: "aws.subnet", LocalName: "priv"},
			Attrs: map[string]value.Value{
				"name":   value.String("priv"),
				"vpc_id": value.Ref(value.Reference{Binding: "v", Attribute: "id", ResolvedKey: "aws.vpc.main"}),
			},
		},
	}
	g := graph.New()
	g.AddEdge("aws.subnet.priv", "aws.vpc.main")

	reader := func(ctx context.Context, qualifiedType, providerID string) (map[string]value.Value, error) {
		return nil, errNotFoundStub{}
	}

	reg := fakeRegistry{"aws.vpc": vpcSchema, "aws.subnet": subnetSchema}
	plan, err := ComputePlan(context.Background(), desired, doc, g, reg, reader)
	require.NoError(t, err)
	require.Len(t, plan.Effects, 2)
	for _, e := range plan.Effects {
		assert.Equal(t, Create, e.Kind)
	}
	subnetAttrs := plan.Effects[1].Attrs
	assert.Equal(t, value.KindReference, subnetAttrs["vpc_id"].Kind)
}

func TestPlanDeterministic(t *testing.T) {
	desired := []*resource.Resource{
		{Key: resource.Key{QualifiedType: "aws.vpc", LocalName: "b"}, Attrs: map[string]value.Value{}},
		{Key: resource.Key{QualifiedType: "aws.vpc", LocalName: "a"}, Attrs: map[string]value.Value{}},
	}
	g := graph.New()
	g.AddNode("aws.vpc.a")
	g.AddNode("aws.vpc.b")

	plan1, err := ComputePlan(context.Background(), desired, state.New(), g, fakeRegistry{}, nil)
	require.NoError(t, err)
	plan2, err := ComputePlan(context.Background(), desired, state.New(), g, fakeRegistry{}, nil)
	require.NoError(t, err)
	assert.Equal(t, plan1.Effects, plan2.Effects)
	assert.Equal(t, "aws.vpc.a", plan1.Effects[0].Key)
	assert.Equal(t, "aws.vpc.b", plan1.Effects[1].Key)
}
