// Package resource defines the normalized, in-memory resource model:
// desired Resources, actual State entries, and the Key that ties them to
// the state store and dependency graph.
package resource

import (
	"strings"

	"github.com/carina-iac/carina/internal/value"
	"github.com/hashicorp/hcl/v2"
)

// Key uniquely identifies a resource within one state document: the chain
// of module instance names it lives under, its qualified type, and its
// local name.
type Key struct {
	NamespacePath []string
	QualifiedType string
	LocalName     string
}

// String renders the key as "ns1/ns2/type.name", the slash-joined shape
// the graph package uses for node IDs, so the resolver, planner and
// interpreter share the graph without translation.
func (k Key) String() string {
	var sb strings.Builder
	for _, ns := range k.NamespacePath {
		sb.WriteString(ns)
		sb.WriteString("/")
	}
	sb.WriteString(k.QualifiedType)
	sb.WriteString(".")
	sb.WriteString(k.LocalName)
	return sb.String()
}

// Resource is the desired-state entity produced by the resolver.
type Resource struct {
	Key        Key
	Attrs      map[string]value.Value
	AttrSpans  map[string]hcl.Range
	Span       hcl.Range
	DependsOn  map[string]bool // set of Key.String() this resource refers to
}

// State is the actual, previously-applied shape of a resource, as recorded
// in the state store.
type State struct {
	Key            Key
	ProviderID     string
	LastObserved   map[string]value.Value
}

// AddDependency records that this resource references the resource keyed
// by depKey. DependsOn ends up holding every direct reference found in
// attrs.
func (r *Resource) AddDependency(depKey string) {
	if r.DependsOn == nil {
		r.DependsOn = make(map[string]bool)
	}
	r.DependsOn[depKey] = true
}
