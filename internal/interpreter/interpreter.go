// Package interpreter implements the plan executor: it walks an ordered
// Plan, dispatches each Effect to the matching provider.Provider,
// propagates provider-generated ids into references still held by later
// effects, and updates state in memory after each successful effect,
// saving it once when the plan ends or halts on a failure, so a mid-plan
// failure loses nothing but the unexecuted tail. Each effect runs under
// its own otel span.
package interpreter

import (
	"context"
	"fmt"

	"github.com/carina-iac/carina/internal/cerrors"
	"github.com/carina-iac/carina/internal/graph"
	"github.com/carina-iac/carina/internal/planner"
	"github.com/carina-iac/carina/internal/provider"
	"github.com/carina-iac/carina/internal/state"
	"github.com/carina-iac/carina/internal/value"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("carina/interpreter")
	meter  = otel.Meter("carina/interpreter")

	effectsExecuted metric.Int64Counter
	effectsFailed   metric.Int64Counter
)

func init() {
	effectsExecuted, _ = meter.Int64Counter("carina.effects.executed",
		metric.WithDescription("Effects executed successfully, by kind"))
	effectsFailed, _ = meter.Int64Counter("carina.effects.failed",
		metric.WithDescription("Effects that returned an error, by kind"))
}

// Registry resolves a resource type to the provider responsible for it.
type Registry interface {
	Lookup(qualifiedType string) (provider.Provider, bool)
}

// Interpreter executes Plans against a Registry and persists the
// resulting Document through a state.Backend.
type Interpreter struct {
	Registry Registry
	Backend  state.Backend
}

// Result summarizes one Apply call: everything that ran, what (if
// anything) failed, and what was never attempted because of it.
type Result struct {
	Executed []planner.Effect
	Failed   *planner.Effect
	Err      error
	Skipped  []planner.Effect

	// SkippedConnected reports, per skipped effect key, whether that
	// resource sits in the same dependency island as the failure (vs.
	// being skipped only because execution is sequential). Built from
	// the graph's union-find so the CLI can tell a caller "these were
	// blocked by the failure" from "these just never got a turn".
	SkippedConnected map[string]bool
}

// Apply executes plan sequentially against doc, one effect at a time. On
// any effect failure, execution halts; the successful prefix is persisted
// and the failure is reported with the effects that were never attempted.
func (ip *Interpreter) Apply(ctx context.Context, plan *planner.Plan, doc *state.Document, g *graph.Graph) Result {
	working := doc.Clone()
	produced := make(map[string]provider.Created)

	for i, effect := range plan.Effects {
		select {
		case <-ctx.Done():
			return ip.finish(ctx, working, g, plan.Effects[:i], nil, ctx.Err(), plan.Effects[i:])
		default:
		}

		err := ip.execute(ctx, effect, working, produced)
		if err != nil {
			failed := effect
			return ip.finish(ctx, working, g, plan.Effects[:i], &failed, err, plan.Effects[i+1:])
		}
	}

	return ip.finish(ctx, working, g, plan.Effects, nil, nil, nil)
}

func (ip *Interpreter) finish(ctx context.Context, working *state.Document, g *graph.Graph, executed []planner.Effect, failed *planner.Effect, err error, skipped []planner.Effect) Result {
	if saveErr := ip.Backend.Save(ctx, working); saveErr != nil && err == nil {
		err = saveErr
	}

	var connected map[string]bool
	if failed != nil && g != nil && len(skipped) > 0 {
		connected = make(map[string]bool, len(skipped))
		for _, s := range skipped {
			connected[s.Key] = g.Connected(s.Key, failed.Key)
		}
	}

	return Result{Executed: executed, Failed: failed, Err: err, Skipped: skipped, SkippedConnected: connected}
}

func (ip *Interpreter) execute(ctx context.Context, effect planner.Effect, doc *state.Document, produced map[string]provider.Created) error {
	ctx, span := tracer.Start(ctx, "effect."+effect.Kind.String(), trace.WithAttributes(
		attribute.String("carina.resource_key", effect.Key),
		attribute.String("carina.resource_type", effect.QualifiedType),
	))
	defer span.End()

	p, ok := ip.Registry.Lookup(effect.QualifiedType)
	if !ok {
		err := &cerrors.ProviderError{Kind: cerrors.ProviderErrorPermanent, Message: fmt.Sprintf("no provider registered for %q", effect.QualifiedType)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var err error
	switch effect.Kind {
	case planner.Create:
		err = ip.doCreate(ctx, p, effect, doc, produced)
	case planner.Update:
		err = ip.doUpdate(ctx, p, effect, doc, produced)
	case planner.Delete:
		err = ip.doDelete(ctx, p, effect, doc)
	case planner.Replace:
		err = ip.doReplace(ctx, p, effect, doc, produced)
	case planner.Read:
		err = ip.doRead(ctx, p, effect, doc)
	default:
		err = &cerrors.PlanError{Message: fmt.Sprintf("unknown effect kind %v", effect.Kind)}
	}

	kindAttr := metric.WithAttributes(attribute.String("carina.effect_kind", effect.Kind.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		effectsFailed.Add(ctx, 1, kindAttr)
	} else {
		effectsExecuted.Add(ctx, 1, kindAttr)
	}
	return err
}

func (ip *Interpreter) doCreate(ctx context.Context, p provider.Provider, effect planner.Effect, doc *state.Document, produced map[string]provider.Created) error {
	attrs := substitute(effect.Attrs, produced)
	created, err := p.Create(ctx, effect.QualifiedType, attrs)
	if err != nil {
		return err
	}
	if created.ProviderID == "" {
		return &cerrors.PlanError{Message: fmt.Sprintf("create of %s succeeded but returned no provider id", effect.Key)}
	}
	produced[effect.Key] = created
	doc.Put(effect.Key, effect.QualifiedType, created.ProviderID, created.Observed)
	return nil
}

func (ip *Interpreter) doUpdate(ctx context.Context, p provider.Provider, effect planner.Effect, doc *state.Document, produced map[string]provider.Created) error {
	// A changed field may reference a resource created earlier in this
	// same plan; substitute before the provider sees it.
	after := substitute(effect.After, produced)
	observed, err := p.Update(ctx, effect.QualifiedType, effect.OldProviderID, effect.Before, after, effect.ChangedFields)
	if err != nil {
		return err
	}
	doc.Put(effect.Key, effect.QualifiedType, effect.OldProviderID, observed.Values)
	return nil
}

func (ip *Interpreter) doDelete(ctx context.Context, p provider.Provider, effect planner.Effect, doc *state.Document) error {
	if err := p.Delete(ctx, effect.QualifiedType, effect.OldProviderID); err != nil {
		return err
	}
	doc.Delete(effect.Key)
	return nil
}

func (ip *Interpreter) doReplace(ctx context.Context, p provider.Provider, effect planner.Effect, doc *state.Document, produced map[string]provider.Created) error {
	if err := p.Delete(ctx, effect.QualifiedType, effect.OldProviderID); err != nil {
		return err
	}
	doc.Delete(effect.Key)

	attrs := substitute(effect.Attrs, produced)
	created, err := p.Create(ctx, effect.QualifiedType, attrs)
	if err != nil {
		return err
	}
	produced[effect.Key] = created
	doc.Put(effect.Key, effect.QualifiedType, created.ProviderID, created.Observed)
	return nil
}

func (ip *Interpreter) doRead(ctx context.Context, p provider.Provider, effect planner.Effect, doc *state.Document) error {
	observed, err := p.Read(ctx, effect.QualifiedType, effect.OldProviderID)
	if err != nil {
		return err
	}
	doc.Put(effect.Key, effect.QualifiedType, effect.OldProviderID, observed.Values)
	return nil
}

// substitute is the ID-propagation pass: a pure substitution over the
// effect's attributes, not a promise network. Every Reference whose
// ResolvedKey names an already-produced resource is replaced with the
// literal drawn from that resource's observed output ("id" resolves to
// ProviderID; any other attribute resolves to Observed[name]).
func substitute(attrs map[string]value.Value, produced map[string]provider.Created) map[string]value.Value {
	out := make(map[string]value.Value, len(attrs))
	for k, v := range attrs {
		out[k] = value.Substitute(v,
			func(ref value.Reference) bool {
				_, ok := produced[ref.ResolvedKey]
				return ok
			},
			func(ref value.Reference) value.Value {
				c := produced[ref.ResolvedKey]
				if ref.Attribute == "id" {
					return value.String(c.ProviderID)
				}
				if val, ok := c.Observed[ref.Attribute]; ok {
					return val
				}
				return value.Null()
			},
		)
	}
	return out
}

// DestroyApply runs a destroy plan the same way Apply does, a thin
// wrapper kept separate so callers can tell destroy runs apart from
// ordinary applies in logs/metrics without inspecting plan contents.
func (ip *Interpreter) DestroyApply(ctx context.Context, plan *planner.Plan, doc *state.Document, g *graph.Graph) Result {
	return ip.Apply(ctx, plan, doc, g)
}
