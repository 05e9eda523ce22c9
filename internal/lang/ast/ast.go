// Package ast defines the parse tree produced by internal/lang/parser:
// backends, providers, imports, input/output blocks, let bindings, and
// resource blocks, with source spans on every node for diagnostics and
// round-trip formatting.
package ast

import (
	"github.com/carina-iac/carina/internal/value"
	"github.com/hashicorp/hcl/v2"
)

// File is one parsed .crn source file.
type File struct {
	Backend   *Backend
	Providers []*Provider
	Imports   []*Import
	Input     *InputBlock
	Output    *OutputBlock
	Bindings  []*Binding
	Resources []*Resource

	// LeadingComments holds any top-of-file comment lines, reprinted
	// verbatim by the formatter.
	LeadingComments []string
}

// Backend is `backend <kind> { k = v, ... }`.
type Backend struct {
	Kind  string
	Attrs map[string]AttrValue
	Range hcl.Range
}

// Provider is `provider <name> { k = v, ... }`.
type Provider struct {
	Name  string
	Attrs map[string]AttrValue
	Range hcl.Range
}

// Import is `import <path> as <alias>`.
type Import struct {
	Path  string
	Alias string
	Range hcl.Range
}

// InputBlock is `input { name: Type [= default], ... }`.
type InputBlock struct {
	Entries []InputEntry
	Range   hcl.Range
}

type InputEntry struct {
	Name     string
	Type     string // raw type grammar text as written; not checked against arguments
	Default  *AttrValue
	Required bool
	Range    hcl.Range
}

// OutputBlock is `output { name: Type = expr, ... }`.
type OutputBlock struct {
	Entries []OutputEntry
	Range   hcl.Range
}

type OutputEntry struct {
	Name  string
	Type  string
	Expr  AttrValue
	Range hcl.Range
}

// Binding is `let <name> = <ResourceLiteral|ModuleInvocation>`.
type Binding struct {
	Name     string
	Resource *Resource // set when the RHS is a resource literal or module invocation
	Range    hcl.Range
}

// Resource is a resource block — either a `let`-bound literal, an anonymous
// top-level block, or a module invocation (distinguished by IsModuleCall).
type Resource struct {
	// QualifiedType is the dotted resource type, e.g. "aws.vpc", or the
	// invoked module name when IsModuleCall is true.
	QualifiedType string
	LocalName     string // from a `let` binding, or synthesized from a `name` attribute
	Attrs         map[string]AttrValue
	IsModuleCall  bool
	Range         hcl.Range

	// LeadingComments attaches any comment block directly above this
	// resource.
	LeadingComments []string
}

// AttrValue is one attribute assignment's right-hand side as a Value
// (literals, enum forms already folded in); a reference is held as a
// value.Reference (binding plus attribute path) for the resolver to
// interpret against scope.
type AttrValue struct {
	Value value.Value
	Range hcl.Range

	// AttrOrder preserves textual order within the enclosing attribute map
	// so the formatter never reorders attributes.
	AttrOrder int

	// LeadingComments attaches any comment lines directly above this
	// attribute assignment.
	LeadingComments []string
}
