// Package value implements the dynamically-tagged Value used for resource
// attribute contents throughout the parser, resolver, differ, and provider.
package value

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindBoolean
	KindList
	KindMap
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

// Reference is an unresolved symbolic pointer of the form "<binding>.<attribute>".
// It carries the source span so diagnostics can point back at the offending
// expression even after the Value has traveled far from the parser.
type Reference struct {
	Binding   string
	Attribute string
	Range     hcl.Range

	// ResolvedKey is set once the resolver determines which resource the
	// binding refers to. Empty until resolution runs.
	ResolvedKey string
}

func (r Reference) String() string {
	return r.Binding + "." + r.Attribute
}

// Value is a tagged union. Exactly one of the typed fields is meaningful,
// selected by Kind.
type Value struct {
	Kind Kind

	str  string
	i    int64
	b    bool
	list []Value
	m    map[string]Value
	ref  Reference
}

func Null() Value                  { return Value{Kind: KindNull} }
func String(s string) Value        { return Value{Kind: KindString, str: s} }
func Integer(i int64) Value        { return Value{Kind: KindInteger, i: i} }
func Boolean(b bool) Value         { return Value{Kind: KindBoolean, b: b} }
func List(items []Value) Value     { return Value{Kind: KindList, list: items} }
func Map(fields map[string]Value) Value {
	return Value{Kind: KindMap, m: fields}
}
func Ref(r Reference) Value { return Value{Kind: KindReference, ref: r} }

func (v Value) IsNull() bool      { return v.Kind == KindNull }
func (v Value) AsString() string  { return v.str }
func (v Value) AsInt() int64      { return v.i }
func (v Value) AsBool() bool      { return v.b }
func (v Value) AsList() []Value   { return v.list }
func (v Value) AsMap() map[string]Value { return v.m }
func (v Value) AsReference() Reference  { return v.ref }

// Equal performs a structural, order-insensitive comparison (maps compare
// by key/value regardless of insertion order; lists compare positionally).
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindString:
		return a.str == b.str
	case KindInteger:
		return a.i == b.i
	case KindBoolean:
		return a.b == b.b
	case KindReference:
		return a.ref.Binding == b.ref.Binding && a.ref.Attribute == b.ref.Attribute
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders a Value for diagnostics. It is not
// meant to be parsed back; the printer owns canonical re-emission.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindBoolean:
		return fmt.Sprintf("%t", v.b)
	case KindReference:
		return v.ref.String()
	case KindList:
		out := "["
		for i, item := range v.list {
			if i > 0 {
				out += ", "
			}
			out += item.String()
		}
		return out + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ", "
			}
			out += k + " = " + v.m[k].String()
		}
		return out + "}"
	}
	return "<invalid>"
}

// Walk invokes fn for every Reference value reachable inside v, including
// nested list/map elements. Used by the resolver to derive dependency
// edges from attrs.
func Walk(v Value, fn func(Reference)) {
	switch v.Kind {
	case KindReference:
		fn(v.ref)
	case KindList:
		for _, item := range v.list {
			Walk(item, fn)
		}
	case KindMap:
		for _, item := range v.m {
			Walk(item, fn)
		}
	}
}

// Substitute returns a copy of v with every Reference matching pred replaced
// by repl(ref). Used by the planner (literals recorded in prior state) and
// the interpreter (runtime ID back-propagation).
func Substitute(v Value, pred func(Reference) bool, repl func(Reference) Value) Value {
	switch v.Kind {
	case KindReference:
		if pred(v.ref) {
			return repl(v.ref)
		}
		return v
	case KindList:
		out := make([]Value, len(v.list))
		for i, item := range v.list {
			out[i] = Substitute(item, pred, repl)
		}
		return List(out)
	case KindMap:
		out := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			out[k] = Substitute(item, pred, repl)
		}
		return Map(out)
	default:
		return v
	}
}
