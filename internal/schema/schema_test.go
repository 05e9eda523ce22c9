package schema

import (
	"testing"

	"github.com/carina-iac/carina/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vpcSchema = ResourceSchema{
	TypeName: "aws.vpc",
	Attributes: map[string]AttributeSchema{
		"id":                   {Type: String(), Computed: true},
		"name":                 {Type: String(), Required: true},
		"cidr_block":           {Type: CidrBlock(), Required: true, Immutable: true},
		"enable_dns_hostnames": {Type: Bool()},
		"region":               {Type: Enum("us_east_1", "ap_northeast_1")},
		"tags":                 {Type: Map(String())},
	},
}

func TestValidateAccepts(t *testing.T) {
	attrs := map[string]value.Value{
		"name":       value.String("main"),
		"cidr_block": value.String("10.0.0.0/16"),
	}
	diags := Validate(attrs, nil, vpcSchema)
	assert.False(t, diags.HasErrors(), "%s", diags)
}

func TestValidateRejectsUnknownKey(t *testing.T) {
	attrs := map[string]value.Value{
		"name":       value.String("main"),
		"cidr_block": value.String("10.0.0.0/16"),
		"colour":     value.String("blue"),
	}
	diags := Validate(attrs, nil, vpcSchema)
	require.True(t, diags.HasErrors())
	assert.Contains(t, diags.Error(), `unknown attribute "colour"`)
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	diags := Validate(map[string]value.Value{"name": value.String("main")}, nil, vpcSchema)
	require.True(t, diags.HasErrors())
	assert.Contains(t, diags.Error(), `missing required attribute "cidr_block"`)
}

func TestValidateComputedNeverRequired(t *testing.T) {
	s := ResourceSchema{
		TypeName: "aws.vpc",
		Attributes: map[string]AttributeSchema{
			"id": {Type: String(), Required: true, Computed: true},
		},
	}
	diags := Validate(map[string]value.Value{}, nil, s)
	assert.False(t, diags.HasErrors(), "%s", diags)
}

func TestValidateTypeMismatch(t *testing.T) {
	attrs := map[string]value.Value{
		"name":                 value.String("main"),
		"cidr_block":           value.String("10.0.0.0/16"),
		"enable_dns_hostnames": value.String("yes"),
	}
	diags := Validate(attrs, nil, vpcSchema)
	require.True(t, diags.HasErrors())
	assert.Contains(t, diags.Error(), "expected boolean")
}

func TestValidateRejectsMalformedCIDR(t *testing.T) {
	attrs := map[string]value.Value{
		"name":       value.String("main"),
		"cidr_block": value.String("10.0.0.0/99"),
	}
	diags := Validate(attrs, nil, vpcSchema)
	require.True(t, diags.HasErrors())
	assert.Contains(t, diags.Error(), "invalid CIDR block")
}

// Enum membership accepts the bare value, TypeName.value, and the fully
// namespaced form, all stripped to the trailing segment case-sensitively.
func TestValidateEnumNamespacedForms(t *testing.T) {
	base := map[string]value.Value{
		"name":       value.String("main"),
		"cidr_block": value.String("10.0.0.0/16"),
	}
	for _, ok := range []string{"us_east_1", "Region.us_east_1", "aws.Region.us_east_1"} {
		attrs := cloneWith(base, "region", value.String(ok))
		diags := Validate(attrs, nil, vpcSchema)
		assert.False(t, diags.HasErrors(), "form %q: %s", ok, diags)
	}

	attrs := cloneWith(base, "region", value.String("aws.Region.US_EAST_1"))
	assert.True(t, Validate(attrs, nil, vpcSchema).HasErrors(), "enum match must be case-sensitive")
}

func cloneWith(m map[string]value.Value, k string, v value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(m)+1)
	for mk, mv := range m {
		out[mk] = mv
	}
	out[k] = v
	return out
}

func TestDiffAttrsBuckets(t *testing.T) {
	before := map[string]value.Value{
		"id":                   value.String("vpc-001"),
		"name":                 value.String("main"),
		"cidr_block":           value.String("10.0.0.0/16"),
		"enable_dns_hostnames": value.Boolean(false),
	}
	after := map[string]value.Value{
		"id":                   value.String("vpc-999"), // computed: must be ignored
		"name":                 value.String("main"),
		"cidr_block":           value.String("10.1.0.0/16"),
		"enable_dns_hostnames": value.Boolean(true),
	}

	result := DiffAttrs(before, after, vpcSchema)
	assert.Equal(t, []string{"cidr_block"}, result.ImmutableChanges)
	assert.Equal(t, []string{"enable_dns_hostnames"}, result.InPlaceChanges)
	assert.Equal(t, []string{"name"}, result.Unchanged)
}

func TestDiffAttrsMapOrderInsensitive(t *testing.T) {
	before := map[string]value.Value{
		"name":       value.String("main"),
		"cidr_block": value.String("10.0.0.0/16"),
		"tags":       value.Map(map[string]value.Value{"a": value.String("1"), "b": value.String("2")}),
	}
	after := map[string]value.Value{
		"name":       value.String("main"),
		"cidr_block": value.String("10.0.0.0/16"),
		"tags":       value.Map(map[string]value.Value{"b": value.String("2"), "a": value.String("1")}),
	}
	result := DiffAttrs(before, after, vpcSchema)
	assert.Empty(t, result.InPlaceChanges)
	assert.Empty(t, result.ImmutableChanges)
}

func TestDiffAttrsDeferredReferences(t *testing.T) {
	s := ResourceSchema{
		TypeName: "aws.subnet",
		Attributes: map[string]AttributeSchema{
			"vpc_id": {Type: Ref("aws.vpc"), Immutable: true},
		},
	}
	ref := value.Ref(value.Reference{Binding: "v", Attribute: "id"})

	result := DiffAttrs(map[string]value.Value{"vpc_id": ref}, map[string]value.Value{"vpc_id": ref}, s)
	assert.Empty(t, result.ImmutableChanges)

	result = DiffAttrs(map[string]value.Value{"vpc_id": value.String("vpc-001")}, map[string]value.Value{"vpc_id": ref}, s)
	assert.Equal(t, []string{"vpc_id"}, result.ImmutableChanges)
}

func TestCoerceRegionEnum(t *testing.T) {
	got, err := Coerce(value.String("aws.Region.ap_northeast_1"), Enum("ap_northeast_1"))
	require.NoError(t, err)
	assert.Equal(t, "ap-northeast-1", got.AsString())
}

func TestCoerceRejectsIntStringCrossover(t *testing.T) {
	_, err := Coerce(value.String("42"), Int())
	require.Error(t, err)

	_, err = Coerce(value.Integer(42), String())
	require.Error(t, err)
}

func TestCoerceValidatesCIDR(t *testing.T) {
	_, err := Coerce(value.String("not-a-cidr"), CidrBlock())
	require.Error(t, err)

	got, err := Coerce(value.String("192.168.0.0/24"), CidrBlock())
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.0/24", got.AsString())
}

func TestCustomCELValidator(t *testing.T) {
	s := ResourceSchema{
		TypeName: "aws.vpc",
		Attributes: map[string]AttributeSchema{
			"port": {Type: Custom("cel:value >= 1 && value <= 65535")},
		},
	}

	diags := Validate(map[string]value.Value{"port": value.Integer(443)}, nil, s)
	assert.False(t, diags.HasErrors(), "%s", diags)

	diags = Validate(map[string]value.Value{"port": value.Integer(70000)}, nil, s)
	require.True(t, diags.HasErrors())
	assert.Contains(t, diags.Error(), "failed custom validator")
}

func TestCustomValidatorUnknownID(t *testing.T) {
	s := ResourceSchema{
		TypeName: "aws.vpc",
		Attributes: map[string]AttributeSchema{
			"port": {Type: Custom("regex:[0-9]+")},
		},
	}
	diags := Validate(map[string]value.Value{"port": value.Integer(1)}, nil, s)
	require.True(t, diags.HasErrors())
	assert.Contains(t, diags.Error(), "unknown custom validator id")
}
