// Package state implements the state store: the Document persisted
// between applies, and the Backend capability set (Load/Save/Lock/Unlock)
// that enforces serial-based optimistic concurrency and lineage
// protection around it.
package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/carina-iac/carina/internal/resource"
	"github.com/carina-iac/carina/internal/value"
	"github.com/google/uuid"
)

// CurrentVersion is the document schema version this build writes and
// the highest version it will read; unknown higher versions are refused.
const CurrentVersion = 1

// StateEntry is one resource's persisted actual state: its provider id and
// the attribute values last observed from the provider.
type StateEntry struct {
	Type         string                 `json:"type"`
	ProviderID   string                 `json:"provider_id"`
	Attrs        map[string]value.Value `json:"attrs"`
}

// Document is the persisted representation:
// `{version, lineage, serial, resources}`.
type Document struct {
	Version   int                   `json:"version"`
	Lineage   string                `json:"lineage"`
	Serial    int                   `json:"serial"`
	Resources map[string]StateEntry `json:"resources"`
}

// New returns an empty document with a freshly minted lineage, used the
// first time a backend saves with no prior document to extend.
func New() *Document {
	return &Document{
		Version:   CurrentVersion,
		Lineage:   uuid.NewString(),
		Serial:    0,
		Resources: make(map[string]StateEntry),
	}
}

// ToResourceStates converts the document's raw entries back into
// resource.State values, keyed by the same Key.String() used throughout.
func (d *Document) ToResourceStates() map[string]*resource.State {
	out := make(map[string]*resource.State, len(d.Resources))
	for key, entry := range d.Resources {
		out[key] = &resource.State{
			ProviderID:   entry.ProviderID,
			LastObserved: entry.Attrs,
		}
	}
	return out
}

// Put records or overwrites one resource's state entry.
func (d *Document) Put(key string, typ string, providerID string, attrs map[string]value.Value) {
	if d.Resources == nil {
		d.Resources = make(map[string]StateEntry)
	}
	d.Resources[key] = StateEntry{Type: typ, ProviderID: providerID, Attrs: attrs}
}

// Delete removes one resource's state entry.
func (d *Document) Delete(key string) {
	delete(d.Resources, key)
}

// Clone returns a deep-enough copy safe to mutate independently of d — the
// interpreter works against a clone so a mid-plan failure can still
// persist exactly the successful prefix.
func (d *Document) Clone() *Document {
	out := &Document{
		Version: d.Version,
		Lineage: d.Lineage,
		Serial:  d.Serial,
	}
	out.Resources = make(map[string]StateEntry, len(d.Resources))
	for k, v := range d.Resources {
		attrs := make(map[string]value.Value, len(v.Attrs))
		for ak, av := range v.Attrs {
			attrs[ak] = av
		}
		out.Resources[k] = StateEntry{Type: v.Type, ProviderID: v.ProviderID, Attrs: attrs}
	}
	return out
}

// Marshal/Unmarshal isolate the JSON wire format so backends never need
// to know the encoding.
func Marshal(d *Document) ([]byte, error) { return json.MarshalIndent(d, "", "  ") }

func Unmarshal(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// LockHandle identifies a held advisory lock.
type LockHandle struct {
	LockID     string
	Who        string
	AcquiredAt time.Time
}

// Backend is the pluggable persistence contract: Load/Save/Lock/Unlock,
// with optimistic concurrency enforced by Save and mutual exclusion
// enforced by Lock.
type Backend interface {
	// Load returns ErrNotFound if no document has ever been saved.
	Load(ctx context.Context) (*Document, error)

	// Save persists doc only if doc.Serial matches the backend's current
	// serial (optimistic concurrency) and doc.Lineage matches the
	// on-disk lineage, if any (lineage guard). On success the stored
	// document's serial is doc.Serial+1; Save mutates doc.Serial in
	// place to reflect that.
	Save(ctx context.Context, doc *Document) error

	// Lock acquires the whole-state advisory exclusive lock, polling up
	// to timeout if it is already held.
	Lock(ctx context.Context, who string, timeout time.Duration) (*LockHandle, error)

	Unlock(ctx context.Context, handle *LockHandle) error
}

// ErrNotFound is returned by Load when no state document has ever been
// saved to this backend.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "state: no document found" }
