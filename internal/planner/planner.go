// Package planner implements the differ/planner: pairing desired
// resources against prior state, classifying each pair into an Effect,
// and ordering the resulting plan by the dependency graph.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/carina-iac/carina/internal/graph"
	"github.com/carina-iac/carina/internal/provider"
	"github.com/carina-iac/carina/internal/resource"
	"github.com/carina-iac/carina/internal/schema"
	"github.com/carina-iac/carina/internal/state"
	"github.com/carina-iac/carina/internal/value"
)

// Kind tags the Effect variant.
type Kind int

const (
	Create Kind = iota
	Read
	Update
	Delete
	Replace
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Read:
		return "read"
	case Update:
		return "update"
	case Delete:
		return "delete"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// Effect is one row of a Plan.
type Effect struct {
	Kind Kind
	Key  string

	QualifiedType   string
	OldProviderID   string // Update, Delete, Replace
	Attrs           map[string]value.Value // Create, Replace (desired attrs)
	Before          map[string]value.Value // Update: prior observed
	After           map[string]value.Value // Update: desired
	ChangedFields   []string                // Update
}

// Plan is an ordered sequence of Effects plus the context to execute
// them.
type Plan struct {
	Effects []Effect
}

// SchemaRegistry looks up a resource type's schema for diffing.
type SchemaRegistry interface {
	Lookup(qualifiedType string) (schema.ResourceSchema, bool)
}

// Reader performs a best-effort drift read against the live provider for
// one prior entry. A NotFound return demotes that entry to Create.
type Reader func(ctx context.Context, qualifiedType, providerID string) (map[string]value.Value, error)

// ComputePlan diffs desired against prior, classifies each pair into an effect,
// then orders by dependency graph (Create/Update forward-topological,
// Delete reverse-topological).
func ComputePlan(ctx context.Context, desired []*resource.Resource, prior *state.Document, g *graph.Graph, registry SchemaRegistry, reader Reader) (*Plan, error) {
	desiredByKey := make(map[string]*resource.Resource, len(desired))
	for _, d := range desired {
		desiredByKey[d.Key.String()] = d
	}

	priorKeys := make([]string, 0, len(prior.Resources))
	for k := range prior.Resources {
		priorKeys = append(priorKeys, k)
	}
	sort.Strings(priorKeys)

	// Drift pass: refresh every prior entry before any diffing so a
	// referent's out-of-band deletion is known before the resources that
	// reference it are compared.
	observedByKey := make(map[string]map[string]value.Value, len(priorKeys))
	vanished := make(map[string]bool)
	for _, key := range priorKeys {
		entry := prior.Resources[key]
		observedByKey[key] = entry.Attrs
		if reader == nil {
			continue
		}
		fresh, err := reader(ctx, entry.Type, entry.ProviderID)
		if err == nil {
			observedByKey[key] = fresh
		} else if errors.Is(err, provider.ErrNotFound) {
			// Deleted out-of-band: treat this key as having no prior
			// entry at all, demoting any matching desired resource to
			// Create and excluding it from reference substitution.
			vanished[key] = true
		} else {
			return nil, fmt.Errorf("drift read for %s: %w", key, err)
		}
	}

	// Substitution pass: a Reference to a resource that already exists in
	// prior state is replaced with the literal recorded there, so a
	// re-plan of an unchanged configuration diffs literals against
	// literals instead of flagging every cross-resource reference as a
	// change. Only references to resources being created in this same
	// plan stay deferred for the interpreter's ID propagation.
	desiredAttrs := make(map[string]map[string]value.Value, len(desired))
	for _, d := range desired {
		desiredAttrs[d.Key.String()] = resolvePriorReferences(d.Attrs, prior, vanished)
	}

	var createOrUpdate []Effect
	var deletes []Effect
	handledPrior := make(map[string]bool, len(priorKeys))

	for _, key := range priorKeys {
		if vanished[key] {
			continue
		}
		entry := prior.Resources[key]
		observed := observedByKey[key]

		_, stillDesired := desiredByKey[key]
		handledPrior[key] = true

		if !stillDesired {
			deletes = append(deletes, Effect{
				Kind:          Delete,
				Key:           key,
				QualifiedType: entry.Type,
				OldProviderID: entry.ProviderID,
			})
			continue
		}

		after := desiredAttrs[key]
		s, hasSchema := registry.Lookup(entry.Type)
		var diff schema.DiffResult
		if hasSchema {
			diff = schema.DiffAttrs(observed, after, s)
		}

		switch {
		case len(diff.ImmutableChanges) > 0:
			createOrUpdate = append(createOrUpdate, Effect{
				Kind:          Replace,
				Key:           key,
				QualifiedType: entry.Type,
				OldProviderID: entry.ProviderID,
				Attrs:         after,
			})
		case len(diff.InPlaceChanges) > 0:
			createOrUpdate = append(createOrUpdate, Effect{
				Kind:          Update,
				Key:           key,
				QualifiedType: entry.Type,
				OldProviderID: entry.ProviderID,
				Before:        observed,
				After:         after,
				ChangedFields: diff.InPlaceChanges,
			})
		default:
			// No change: no effect.
		}
	}

	// Creates: desired resources with no (surviving) prior entry.
	desiredKeys := make([]string, 0, len(desired))
	for k := range desiredByKey {
		desiredKeys = append(desiredKeys, k)
	}
	sort.Strings(desiredKeys)

	for _, key := range desiredKeys {
		if handledPrior[key] {
			continue
		}
		d := desiredByKey[key]
		createOrUpdate = append(createOrUpdate, Effect{
			Kind:          Create,
			Key:           key,
			QualifiedType: d.Key.QualifiedType,
			Attrs:         desiredAttrs[key],
		})
	}

	// Order creates/updates/replaces forward-topologically, deletes
	// reverse-topologically.
	orderedCU, err := orderEffects(g, createOrUpdate, true)
	if err != nil {
		return nil, err
	}
	orderedDel, err := orderEffects(g, deletes, false)
	if err != nil {
		return nil, err
	}

	return &Plan{Effects: append(orderedCU, orderedDel...)}, nil
}

// resolvePriorReferences substitutes every Reference whose referent is
// already tracked in prior state (and not deleted out-of-band) with the
// literal recorded there: "id" draws from the entry's ProviderID, any
// other attribute from its persisted attrs. References whose referent is
// absent stay deferred; the interpreter fills them in after that
// referent's Create.
func resolvePriorReferences(attrs map[string]value.Value, prior *state.Document, vanished map[string]bool) map[string]value.Value {
	out := make(map[string]value.Value, len(attrs))
	for k, v := range attrs {
		out[k] = value.Substitute(v,
			func(ref value.Reference) bool {
				if vanished[ref.ResolvedKey] {
					return false
				}
				entry, ok := prior.Resources[ref.ResolvedKey]
				if !ok {
					return false
				}
				if ref.Attribute == "id" {
					return entry.ProviderID != ""
				}
				_, ok = entry.Attrs[ref.Attribute]
				return ok
			},
			func(ref value.Reference) value.Value {
				entry := prior.Resources[ref.ResolvedKey]
				if ref.Attribute == "id" {
					return value.String(entry.ProviderID)
				}
				return entry.Attrs[ref.Attribute]
			},
		)
	}
	return out
}

func orderEffects(g *graph.Graph, effects []Effect, referentsFirst bool) ([]Effect, error) {
	if len(effects) == 0 {
		return nil, nil
	}
	byKey := make(map[string]Effect, len(effects))
	keys := make([]string, 0, len(effects))
	for _, e := range effects {
		byKey[e.Key] = e
		keys = append(keys, e.Key)
	}

	var ordered []string
	var err error
	if referentsFirst {
		ordered, err = g.TopoSortReferentsFirst(keys)
	} else {
		ordered, err = g.TopoSortReferentsLast(keys)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Effect, len(ordered))
	for i, k := range ordered {
		out[i] = byKey[k]
	}
	return out, nil
}

// DestroyPlan produces a plan of only Deletes for all prior state,
// ordered reverse-topologically.
func DestroyPlan(prior *state.Document, g *graph.Graph) (*Plan, error) {
	var deletes []Effect
	for key, entry := range prior.Resources {
		deletes = append(deletes, Effect{
			Kind:          Delete,
			Key:           key,
			QualifiedType: entry.Type,
			OldProviderID: entry.ProviderID,
		})
	}
	sort.Slice(deletes, func(i, j int) bool { return deletes[i].Key < deletes[j].Key })

	ordered, err := orderEffects(g, deletes, false)
	if err != nil {
		return nil, err
	}
	return &Plan{Effects: ordered}, nil
}
