package printer

import (
	"testing"

	"github.com/carina-iac/carina/internal/lang/ast"
	"github.com/carina-iac/carina/internal/lang/parser"
	"github.com/carina-iac/carina/internal/value"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFile() *ast.File {
	return &ast.File{
		Backend: &ast.Backend{
			Kind: "local",
			Attrs: map[string]ast.AttrValue{
				"path": {Value: value.String("carina.tfstate"), AttrOrder: 0},
			},
		},
		Bindings: []*ast.Binding{{
			Name: "vpc",
			Resource: &ast.Resource{
				QualifiedType: "aws.vpc",
				Attrs: map[string]ast.AttrValue{
					"name": {Value: value.String("main"), AttrOrder: 0},
					"cidr": {Value: value.String("10.0.0.0/16"), AttrOrder: 1},
				},
			},
		}},
		Resources: []*ast.Resource{{
			QualifiedType: "aws.subnet",
			Attrs: map[string]ast.AttrValue{
				"name": {Value: value.String("priv"), AttrOrder: 0},
				"vref": {Value: value.Ref(value.Reference{Binding: "vpc", Attribute: "id"}), AttrOrder: 1},
			},
		}},
	}
}

func TestPrintGolden(t *testing.T) {
	got := Print(sampleFile())
	g := goldie.New(t)
	g.Assert(t, "resource_block", []byte(got))
}

// TestPrintRoundTrips: parse(print(x)) reparses cleanly and reprints to
// the same text.
func TestPrintRoundTrips(t *testing.T) {
	printed := Print(sampleFile())

	reparsed, diags := parser.ParseFile("sample.crn", printed)
	require.False(t, diags.HasErrors(), "%s", diags)

	reprinted := Print(reparsed)
	assert.Equal(t, printed, reprinted)
}

// TestPrintIsIdempotent: format(format(x)) == format(x).
func TestPrintIsIdempotent(t *testing.T) {
	printed := Print(sampleFile())
	reparsed, diags := parser.ParseFile("sample.crn", printed)
	require.False(t, diags.HasErrors())

	assert.Equal(t, printed, Print(reparsed))
}

func TestPrintDoesNotReorderAttributes(t *testing.T) {
	f := &ast.File{
		Resources: []*ast.Resource{{
			QualifiedType: "aws.vpc",
			Attrs: map[string]ast.AttrValue{
				"cidr": {Value: value.String("10.0.0.0/16"), AttrOrder: 0},
				"name": {Value: value.String("main"), AttrOrder: 1},
			},
		}},
	}
	got := Print(f)
	cidrIdx := indexOf(got, "cidr")
	nameIdx := indexOf(got, "name")
	assert.True(t, cidrIdx < nameIdx, "expected cidr (AttrOrder 0) before name (AttrOrder 1), got:\n%s", got)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
