// Package provider defines the async capability contract
// that every concrete cloud adapter implements, plus the shared
// ErrNotFound sentinel and the type-to-provider Registry the interpreter
// and planner use without depending on any one provider's internals.
package provider

import (
	"context"

	"github.com/carina-iac/carina/internal/value"
)

// Created is what a successful Create returns: the provider-assigned
// identifier and the observed attribute set, in the same canonical form
// the differ expects so a re-plan is stable.
type Created struct {
	ProviderID string
	Observed   map[string]value.Value
}

// Observed is what a successful Read or Update returns.
type Observed struct {
	Values map[string]value.Value
}

// Provider is the capability set every resource type's adapter
// implements. All calls are context-bearing and may block.
type Provider interface {
	Create(ctx context.Context, qualifiedType string, attrs map[string]value.Value) (Created, error)

	// Read returns ErrNotFound if provider_id no longer exists, signaling
	// the planner to demote the corresponding prior entry to Create.
	Read(ctx context.Context, qualifiedType string, providerID string) (Observed, error)

	Update(ctx context.Context, qualifiedType string, providerID string, before, after map[string]value.Value, changedFields []string) (Observed, error)

	Delete(ctx context.Context, qualifiedType string, providerID string) error
}

// ErrNotFound is returned by Read when a provider_id no longer exists.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "provider: resource not found" }

// Registry resolves a qualified resource type (e.g. "aws.vpc") to the
// Provider responsible for it, letting the interpreter dispatch without
// knowing in advance which cloud each resource belongs to.
type Registry struct {
	byType map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Provider)}
}

func (r *Registry) Register(qualifiedType string, p Provider) {
	r.byType[qualifiedType] = p
}

func (r *Registry) Lookup(qualifiedType string) (Provider, bool) {
	p, ok := r.byType[qualifiedType]
	return p, ok
}
