package resolver

import (
	"testing"

	"github.com/carina-iac/carina/internal/lang/ast"
	"github.com/carina-iac/carina/internal/lang/parser"
	"github.com/carina-iac/carina/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *ast.File {
	t.Helper()
	f, diags := parser.ParseFile("test.crn", src)
	require.False(t, diags.HasErrors(), "%s", diags)
	return f
}

// TestResolveForwardReference: a subnet referencing a vpc's computed "id" attribute must keep a deferred Reference carrying
// the vpc's resolved key, while a literal attribute reference is inlined.
func TestResolveForwardReference(t *testing.T) {
	src := `
let v = aws.vpc {
  name = "main"
  cidr_block = "10.0.0.0/16"
}

aws.subnet {
  name = "priv"
  vpc_id = v.id
  cidr_block = v.cidr_block
}
`
	f := mustParse(t, src)
	r := New(nil, nil)
	result, diags := r.Resolve(f)
	require.False(t, diags.HasErrors(), "%s", diags)
	require.Len(t, result.Resources, 2)

	byKey := map[string]value.Value{}
	for _, res := range result.Resources {
		if res.Key.QualifiedType == "aws.subnet" {
			byKey["vpc_id"] = res.Attrs["vpc_id"]
			byKey["cidr_block"] = res.Attrs["cidr_block"]
		}
	}

	assert.Equal(t, value.KindReference, byKey["vpc_id"].Kind, "vpc_id references a computed attribute and must stay deferred")
	ref := byKey["vpc_id"].AsReference()
	assert.Equal(t, "aws.vpc.main", ref.ResolvedKey)

	assert.Equal(t, value.KindString, byKey["cidr_block"].Kind, "cidr_block is a literal and must be inlined")
	assert.Equal(t, "10.0.0.0/16", byKey["cidr_block"].AsString())
}

// TestResolveDependencyGraph checks the edge derived from the deferred
// reference orders the subnet after the vpc.
func TestResolveDependencyGraph(t *testing.T) {
	src := `
let v = aws.vpc { name = "main", cidr_block = "10.0.0.0/16" }
aws.subnet { name = "priv", vpc_id = v.id }
`
	f := mustParse(t, src)
	r := New(nil, nil)
	result, diags := r.Resolve(f)
	require.False(t, diags.HasErrors(), "%s", diags)

	order, err := result.Graph.TopoSortReferentsFirst([]string{"aws.subnet.priv", "aws.vpc.main"})
	require.NoError(t, err)
	assert.Equal(t, []string{"aws.vpc.main", "aws.subnet.priv"}, order)
}

// TestResolveUndefinedReference ensures a reference to an unknown binding
// is a ResolveError, not a panic.
func TestResolveUndefinedReference(t *testing.T) {
	src := `aws.subnet { name = "priv", vpc_id = ghost.id }`
	f := mustParse(t, src)
	r := New(nil, nil)
	_, diags := r.Resolve(f)
	require.True(t, diags.HasErrors())
}

// TestResolveModuleInvocation: a module's security group inherits the caller's vpc reference via its input block, and its
// key is namespaced under the invocation name.
func TestResolveModuleInvocation(t *testing.T) {
	root := mustParse(t, `
import "./web_tier" as web_tier

let main_vpc = aws.vpc { name = "main", cidr_block = "10.0.0.0/16" }

web_tier { vpc = main_vpc.id }
`)
	module := mustParse(t, `
input {
  vpc: ref
}

aws.security_group {
  name = "sg"
  vpc_id = input.vpc
}
`)

	r := New(stubLoader{"./web_tier": module}, nil)
	result, diags := r.Resolve(root)
	require.False(t, diags.HasErrors(), "%s", diags)

	var sg *value.Value
	for _, res := range result.Resources {
		if res.Key.QualifiedType == "aws.security_group" {
			v := res.Attrs["vpc_id"]
			sg = &v
			assert.Equal(t, []string{"web_tier"}, res.Key.NamespacePath)
		}
	}
	require.NotNil(t, sg)
	assert.Equal(t, value.KindReference, sg.Kind)
	assert.Equal(t, "aws.vpc.main", sg.AsReference().ResolvedKey)
}

type stubLoader map[string]*ast.File

func (s stubLoader) Load(path string) (*ast.File, error) {
	return s[path], nil
}
