// Package cerrors implements carina's typed error taxonomy: each variant
// is fatal for the affected operation and, where meaningful, carries a
// source span so the CLI can print it with context.
package cerrors

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
)

// ParseError is syntactic; it is recoverable up to one-per-construct during
// parsing, but the first one is promoted to fatal for CLI use.
type ParseError struct {
	Range   hcl.Range
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Range.String(), e.Message)
}

// ResolveError covers unresolved references, cyclic imports, and module
// input mismatches.
type ResolveError struct {
	Range   hcl.Range
	Message string
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Range.String(), e.Message)
}

// ValidationError wraps one schema violation. Callers typically collect a
// batch of these via Diagnostics before surfacing.
type ValidationError struct {
	Range   hcl.Range
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Range.String(), e.Message)
}

// StateErrorKind distinguishes the state-store failure modes.
type StateErrorKind int

const (
	StateErrorLockContention StateErrorKind = iota
	StateErrorVersionMismatch
	StateErrorLineageMismatch
	StateErrorCorrupt
)

// StateError covers lock contention, version/lineage mismatch, and corrupt
// documents. Lock contention is retryable on the caller's next invocation,
// but never auto-retried within a single call.
type StateError struct {
	Kind    StateErrorKind
	Message string
}

func (e *StateError) Error() string {
	return e.Message
}

// LockedError is returned by Backend.Lock when the state is already held.
type LockedError struct {
	CurrentHolder string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("state is locked by %s", e.CurrentHolder)
}

// ProviderErrorKind distinguishes transient (retryable by the provider
// internally) from permanent provider failures.
type ProviderErrorKind int

const (
	ProviderErrorTransient ProviderErrorKind = iota
	ProviderErrorPermanent
)

// ProviderError wraps a provider-reported failure. The core never retries
// these automatically; a provider implementation may retry transient faults
// internally before returning.
type ProviderError struct {
	Kind      ProviderErrorKind
	Message   string
	Retryable bool
	Timeout   bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: %s", e.Message)
}

// PlanError signals an inconsistency discovered mid-plan, e.g. a Create that
// reported success but produced no id for a dependent to consume.
type PlanError struct {
	Message string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan error: %s", e.Message)
}

// Diagnostics accumulates non-fatal ParseErrors/ValidationErrors for batch
// reporting, mirroring hcl.Diagnostics but scoped to our own error types.
type Diagnostics []error

func (d Diagnostics) HasErrors() bool { return len(d) > 0 }

func (d Diagnostics) Error() string {
	if len(d) == 0 {
		return ""
	}
	if len(d) == 1 {
		return d[0].Error()
	}
	out := fmt.Sprintf("%d errors:", len(d))
	for _, e := range d {
		out += "\n  - " + e.Error()
	}
	return out
}
