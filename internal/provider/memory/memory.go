// Package memory implements an in-memory provider.Provider, used by the
// planner/interpreter test suite without any network dependency. It
// assigns sequential provider ids and echoes attrs back as observed
// values.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/carina-iac/carina/internal/provider"
	"github.com/carina-iac/carina/internal/value"
)

// Provider is a thread-safe, in-memory mock cloud. Ids are assigned
// sequentially per type ("vpc-001", "vpc-002", ...) so tests stay
// deterministic, and FailOn injects a failure on a specific (op, type,
// id) triple for partial-failure scenarios.
type Provider struct {
	mu      sync.Mutex
	seq     map[string]int
	objects map[string]map[string]value.Value // providerID -> attrs

	// FailOn, when non-nil, is called before every operation; returning
	// a non-nil error aborts that call without mutating state.
	FailOn func(op, qualifiedType, providerID string) error
}

func New() *Provider {
	return &Provider{
		seq:     make(map[string]int),
		objects: make(map[string]map[string]value.Value),
	}
}

func (p *Provider) Create(ctx context.Context, qualifiedType string, attrs map[string]value.Value) (provider.Created, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailOn != nil {
		if err := p.FailOn("create", qualifiedType, ""); err != nil {
			return provider.Created{}, err
		}
	}

	p.seq[qualifiedType]++
	id := fmt.Sprintf("%s-%03d", shortName(qualifiedType), p.seq[qualifiedType])

	observed := cloneAttrs(attrs)
	observed["id"] = value.String(id)
	p.objects[id] = observed

	return provider.Created{ProviderID: id, Observed: cloneAttrs(observed)}, nil
}

func (p *Provider) Read(ctx context.Context, qualifiedType string, providerID string) (provider.Observed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailOn != nil {
		if err := p.FailOn("read", qualifiedType, providerID); err != nil {
			return provider.Observed{}, err
		}
	}

	attrs, ok := p.objects[providerID]
	if !ok {
		return provider.Observed{}, provider.ErrNotFound
	}
	return provider.Observed{Values: cloneAttrs(attrs)}, nil
}

func (p *Provider) Update(ctx context.Context, qualifiedType string, providerID string, before, after map[string]value.Value, changedFields []string) (provider.Observed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailOn != nil {
		if err := p.FailOn("update", qualifiedType, providerID); err != nil {
			return provider.Observed{}, err
		}
	}

	attrs, ok := p.objects[providerID]
	if !ok {
		return provider.Observed{}, provider.ErrNotFound
	}
	for _, field := range changedFields {
		attrs[field] = after[field]
	}
	p.objects[providerID] = attrs
	return provider.Observed{Values: cloneAttrs(attrs)}, nil
}

func (p *Provider) Delete(ctx context.Context, qualifiedType string, providerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailOn != nil {
		if err := p.FailOn("delete", qualifiedType, providerID); err != nil {
			return err
		}
	}

	if _, ok := p.objects[providerID]; !ok {
		return provider.ErrNotFound
	}
	delete(p.objects, providerID)
	return nil
}

func cloneAttrs(attrs map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// shortName trims a qualified type ("aws.vpc") down to its trailing
// segment for readable synthetic ids ("vpc-001").
func shortName(qualifiedType string) string {
	last := qualifiedType
	for i := len(qualifiedType) - 1; i >= 0; i-- {
		if qualifiedType[i] == '.' {
			last = qualifiedType[i+1:]
			break
		}
	}
	return last
}
