// Package resolver implements the module and reference resolver: it
// binds `let` names, loads and expands imported modules, substitutes
// module inputs and outputs, resolves symbolic references against scope,
// and assembles the resource dependency graph.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/carina-iac/carina/internal/cerrors"
	"github.com/carina-iac/carina/internal/graph"
	"github.com/carina-iac/carina/internal/lang/ast"
	"github.com/carina-iac/carina/internal/lang/parser"
	"github.com/carina-iac/carina/internal/resource"
	"github.com/carina-iac/carina/internal/schema"
	"github.com/carina-iac/carina/internal/value"
	"github.com/hashicorp/hcl/v2"
)

// SchemaRegistry answers whether a given attribute on a resource type is
// provider-computed, which decides whether a reference to it must stay
// deferred or can be inlined immediately. Carina's CLI
// wires this to the same registry C1 validation uses, so "is this
// computed" is answered identically in both places.
type SchemaRegistry interface {
	Lookup(qualifiedType string) (schema.ResourceSchema, bool)
}

// Loader resolves an import path to a parsed module file: if the path is
// a directory, the module entry point is main.crn inside it.
type Loader interface {
	Load(path string) (*ast.File, error)
}

// FileLoader is the default Loader, reading .crn sources from the local
// filesystem relative to a base directory.
type FileLoader struct {
	BaseDir string
}

func (l FileLoader) Load(path string) (*ast.File, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(l.BaseDir, path)
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("import %q: %w", path, err)
	}
	if info.IsDir() {
		full = filepath.Join(full, "main.crn")
	}
	src, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("import %q: %w", path, err)
	}
	f, diags := parser.ParseFile(full, string(src))
	if diags.HasErrors() {
		return nil, fmt.Errorf("import %q: %s", path, diags.Error())
	}
	return f, nil
}

// Resolver runs the resolution passes (module loading, name binding,
// reference resolution, module expansion, output wiring, dependency
// edges) over a parsed File and produces the flat, namespaced resource
// set plus their dependency graph.
type Resolver struct {
	loader   Loader
	registry SchemaRegistry

	moduleCache map[string]*ast.File
	loading     map[string]bool
	loadStack   []string

	// currentAliases maps the enclosing file's import aliases to their
	// paths, saved and restored around each nested resolveFile call so a
	// module invocation resolves aliases against its own file, not its
	// caller's.
	currentAliases map[string]string
}

func New(loader Loader, registry SchemaRegistry) *Resolver {
	return &Resolver{
		loader:      loader,
		registry:    registry,
		moduleCache: make(map[string]*ast.File),
		loading:     make(map[string]bool),
	}
}

// Result is everything downstream components (C1 validation, C6 planner)
// need from a resolve pass.
type Result struct {
	Resources []*resource.Resource
	Graph     *graph.Graph
}

// Resolve runs all six passes over the root file and returns the fully
// expanded, namespaced resource set with its dependency graph built.
func (r *Resolver) Resolve(file *ast.File) (*Result, cerrors.Diagnostics) {
	var diags cerrors.Diagnostics
	g := graph.New()

	resources, _, fileDiags := r.resolveFile(file, nil, nil)
	diags = append(diags, fileDiags...)

	for _, res := range resources {
		g.AddNode(res.Key.String())
		value.Walk(value.Map(res.Attrs), func(ref value.Reference) {
			if ref.ResolvedKey == "" {
				return
			}
			res.AddDependency(ref.ResolvedKey)
			g.AddEdge(res.Key.String(), ref.ResolvedKey)
		})
	}

	if _, err := g.TopoSortReferentsFirst(keysOf(resources)); err != nil {
		diags = append(diags, &cerrors.ResolveError{Message: err.Error()})
	}

	return &Result{Resources: resources, Graph: g}, diags
}

func keysOf(resources []*resource.Resource) []string {
	out := make([]string, len(resources))
	for i, r := range resources {
		out[i] = r.Key.String()
	}
	return out
}

// scopeKind tags what a name in scope refers to.
type scopeKind int

const (
	scopeResource scopeKind = iota
	scopeModule
	scopeInput
)

type scopeEntry struct {
	kind scopeKind

	// scopeResource
	res *resource.Resource

	// scopeModule
	outputs map[string]value.Value

	// scopeInput
	inputs map[string]value.Value
}

// resolveFile expands one File (the root program, or an imported module
// body) under namespacePath, with inputArgs already validated against the
// file's own Input block (nil for the root file, which has none). It
// returns the flattened resources produced (including those from nested
// module invocations) and this file's resolved Output values, for the
// caller to expose under its own module-scope entry.
func (r *Resolver) resolveFile(file *ast.File, namespacePath []string, inputArgs map[string]value.Value) ([]*resource.Resource, map[string]value.Value, cerrors.Diagnostics) {
	var diags cerrors.Diagnostics
	scope := make(map[string]*scopeEntry)
	var resources []*resource.Resource

	prevAliases := r.currentAliases
	aliases := make(map[string]string, len(file.Imports))
	for _, imp := range file.Imports {
		aliases[imp.Alias] = imp.Path
	}
	r.currentAliases = aliases
	defer func() { r.currentAliases = prevAliases }()

	if file.Input != nil || inputArgs != nil {
		effective, inDiags := bindInputs(file.Input, inputArgs)
		diags = append(diags, inDiags...)
		scope["input"] = &scopeEntry{kind: scopeInput, inputs: effective}
	}

	type entry struct {
		name string
		res  *ast.Resource
	}
	var entries []entry
	for _, b := range file.Bindings {
		entries = append(entries, entry{name: b.Name, res: b.Resource})
	}
	for _, res := range file.Resources {
		entries = append(entries, entry{name: "", res: res})
	}

	for _, e := range entries {
		if e.res.IsModuleCall {
			modResources, modOutputs, modDiags := r.resolveModuleInvocation(e, namespacePath, scope)
			diags = append(diags, modDiags...)
			resources = append(resources, modResources...)
			name := e.name
			if name == "" {
				name = e.res.QualifiedType
			}
			scope[name] = &scopeEntry{kind: scopeModule, outputs: modOutputs}
			continue
		}

		// The key's local name comes from the "name" attribute so state
		// keys stay stable if a `let` binding is renamed; the binding name
		// is only the scope symbol.
		localName := ""
		if nameAttr, ok := e.res.Attrs["name"]; ok && nameAttr.Value.Kind == value.KindString {
			localName = nameAttr.Value.AsString()
		}
		if localName == "" {
			localName = e.name
		}
		if localName == "" {
			diags = append(diags, &cerrors.ResolveError{
				Range:   e.res.Range,
				Message: fmt.Sprintf("anonymous %s block needs a string \"name\" attribute to derive its key", e.res.QualifiedType),
			})
			continue
		}

		key := resource.Key{
			NamespacePath: append([]string(nil), namespacePath...),
			QualifiedType: e.res.QualifiedType,
			LocalName:     localName,
		}

		attrs, spans, attrDiags := r.resolveAttrs(e.res, scope)
		diags = append(diags, attrDiags...)

		built := &resource.Resource{
			Key:       key,
			Attrs:     attrs,
			AttrSpans: spans,
			Span:      e.res.Range,
		}
		resources = append(resources, built)
		symbol := e.name
		if symbol == "" {
			symbol = localName
		}
		scope[symbol] = &scopeEntry{kind: scopeResource, res: built}
	}

	var outputs map[string]value.Value
	if file.Output != nil {
		outputs = make(map[string]value.Value, len(file.Output.Entries))
		for _, out := range file.Output.Entries {
			resolved, err := r.resolveValue(out.Expr.Value, scope)
			if err != nil {
				diags = append(diags, &cerrors.ResolveError{Range: out.Range, Message: err.Error()})
				continue
			}
			outputs[out.Name] = resolved
		}
	}

	return resources, outputs, diags
}

// resolveAttrs resolves every attribute's RHS against scope, returning the
// resolved Values alongside their source spans for downstream diagnostics
// (C1 validation, C6 plan printing).
func (r *Resolver) resolveAttrs(res *ast.Resource, scope map[string]*scopeEntry) (map[string]value.Value, map[string]hcl.Range, cerrors.Diagnostics) {
	var diags cerrors.Diagnostics
	attrs := make(map[string]value.Value, len(res.Attrs))
	spans := make(map[string]hcl.Range, len(res.Attrs))

	names := make([]string, 0, len(res.Attrs))
	for name := range res.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		av := res.Attrs[name]
		resolved, err := r.resolveValue(av.Value, scope)
		if err != nil {
			diags = append(diags, &cerrors.ResolveError{Range: av.Range, Message: err.Error()})
			continue
		}
		attrs[name] = resolved
		spans[name] = av.Range
	}
	return attrs, spans, diags
}

// resolveValue resolves a single Value against scope:
// a Reference to a literal attribute is substituted inline; a Reference to
// a computed attribute stays a Reference, now carrying the referent's
// ResolvedKey for the dependency graph and the interpreter's ID
// propagation pass. Lists and maps are resolved element-wise.
func (r *Resolver) resolveValue(v value.Value, scope map[string]*scopeEntry) (value.Value, error) {
	switch v.Kind {
	case value.KindReference:
		ref := v.AsReference()
		entry, ok := scope[ref.Binding]
		if !ok {
			return v, fmt.Errorf("undefined reference %q", ref.String())
		}
		switch entry.kind {
		case scopeInput:
			val, ok := entry.inputs[ref.Attribute]
			if !ok {
				return v, fmt.Errorf("module has no input %q", ref.Attribute)
			}
			return val, nil
		case scopeModule:
			val, ok := entry.outputs[ref.Attribute]
			if !ok {
				return v, fmt.Errorf("module %q has no output %q", ref.Binding, ref.Attribute)
			}
			return val, nil
		case scopeResource:
			if r.isComputedAttr(entry.res.Key.QualifiedType, ref.Attribute) {
				deferred := ref
				deferred.ResolvedKey = entry.res.Key.String()
				return value.Ref(deferred), nil
			}
			val, ok := entry.res.Attrs[ref.Attribute]
			if !ok {
				return v, fmt.Errorf("%s has no attribute %q", ref.Binding, ref.Attribute)
			}
			return val, nil
		}
		return v, fmt.Errorf("undefined reference %q", ref.String())

	case value.KindList:
		items := v.AsList()
		out := make([]value.Value, len(items))
		for i, item := range items {
			resolved, err := r.resolveValue(item, scope)
			if err != nil {
				return v, err
			}
			out[i] = resolved
		}
		return value.List(out), nil

	case value.KindMap:
		m := v.AsMap()
		out := make(map[string]value.Value, len(m))
		for k, item := range m {
			resolved, err := r.resolveValue(item, scope)
			if err != nil {
				return v, err
			}
			out[k] = resolved
		}
		return value.Map(out), nil

	default:
		return v, nil
	}
}

// isComputedAttr answers whether attribute `name` on resources of type
// qualifiedType is provider-computed. With no registry wired (e.g. a
// standalone resolver unit test), "id" is treated as the universally
// computed attribute every provider returns, and everything else is
// treated as a literal the caller must have already supplied.
func (r *Resolver) isComputedAttr(qualifiedType, name string) bool {
	if r.registry == nil {
		return name == "id"
	}
	s, ok := r.registry.Lookup(qualifiedType)
	if !ok {
		return name == "id"
	}
	attrSchema, ok := s.Attributes[name]
	if !ok {
		return false
	}
	return attrSchema.Computed
}

// resolveModuleInvocation handles one module call site: load (or reuse)
// the module file named by the call's
// import alias, typecheck/bind its inputs, expand its body under a
// namespace extended by the invocation name, and return its flattened
// resources plus resolved outputs.
func (r *Resolver) resolveModuleInvocation(e struct {
	name string
	res  *ast.Resource
}, namespacePath []string, scope map[string]*scopeEntry) ([]*resource.Resource, map[string]value.Value, cerrors.Diagnostics) {
	var diags cerrors.Diagnostics

	modFile, err := r.loadModule(e.res.QualifiedType)
	if err != nil {
		diags = append(diags, &cerrors.ResolveError{Range: e.res.Range, Message: err.Error()})
		return nil, nil, diags
	}

	argAttrs, _, attrDiags := r.resolveAttrs(e.res, scope)
	diags = append(diags, attrDiags...)

	invocationName := e.name
	if invocationName == "" {
		invocationName = e.res.QualifiedType
	}
	nestedNS := append(append([]string(nil), namespacePath...), invocationName)

	resources, outputs, modDiags := r.resolveFile(modFile, nestedNS, argAttrs)
	diags = append(diags, modDiags...)
	return resources, outputs, diags
}

// loadModule resolves an import alias to its parsed module file, caching
// by resolved path and detecting import cycles.
func (r *Resolver) loadModule(alias string) (*ast.File, error) {
	path, ok := r.currentAliases[alias]
	if !ok {
		return nil, fmt.Errorf("no import aliased %q in scope", alias)
	}
	if r.loading[path] {
		return nil, fmt.Errorf("import cycle detected: %s -> %s", joinStack(r.loadStack), path)
	}
	if cached, ok := r.moduleCache[path]; ok {
		return cached, nil
	}

	r.loading[path] = true
	r.loadStack = append(r.loadStack, path)
	defer func() {
		delete(r.loading, path)
		r.loadStack = r.loadStack[:len(r.loadStack)-1]
	}()

	f, err := r.loader.Load(path)
	if err != nil {
		return nil, err
	}
	r.moduleCache[path] = f
	return f, nil
}

func joinStack(stack []string) string {
	out := ""
	for i, s := range stack {
		if i > 0 {
			out += " -> "
		}
		out += s
	}
	return out
}

// bindInputs validates invocation arguments against a module's Input
// block: missing required inputs and unexpected extra
// arguments both fail; declared defaults fill in any optional input the
// caller omitted.
func bindInputs(decl *ast.InputBlock, args map[string]value.Value) (map[string]value.Value, cerrors.Diagnostics) {
	var diags cerrors.Diagnostics
	effective := make(map[string]value.Value)

	declared := make(map[string]ast.InputEntry)
	if decl != nil {
		for _, in := range decl.Entries {
			declared[in.Name] = in
		}
	}

	for name, in := range declared {
		val, provided := args[name]
		switch {
		case provided:
			effective[name] = val
		case in.Default != nil:
			effective[name] = in.Default.Value
		case in.Required:
			diags = append(diags, &cerrors.ResolveError{
				Range:   in.Range,
				Message: fmt.Sprintf("missing required module input %q", name),
			})
		}
	}

	for name, val := range args {
		if _, ok := declared[name]; !ok {
			diags = append(diags, &cerrors.ResolveError{
				Message: fmt.Sprintf("unexpected module input %q", name),
			})
			continue
		}
		effective[name] = val
	}

	return effective, diags
}
