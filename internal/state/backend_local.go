package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/carina-iac/carina/internal/cerrors"
	"github.com/google/uuid"
)

// LocalBackend is the filesystem Backend: Save stages to a temp file in
// the same directory and renames it into place (atomic from a reader's
// perspective on POSIX filesystems), and Lock is a sibling "<path>.lock"
// sentinel file created with O_EXCL.
type LocalBackend struct {
	Path string
}

func NewLocalBackend(path string) *LocalBackend {
	return &LocalBackend{Path: path}
}

func (b *LocalBackend) Load(ctx context.Context) (*Document, error) {
	data, err := os.ReadFile(b.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc, err := Unmarshal(data)
	if err != nil {
		return nil, &cerrors.StateError{Kind: cerrors.StateErrorCorrupt, Message: fmt.Sprintf("corrupt state at %s: %s", b.Path, err)}
	}
	if doc.Version > CurrentVersion {
		return nil, &cerrors.StateError{
			Kind:    cerrors.StateErrorCorrupt,
			Message: fmt.Sprintf("state file %s has version %d, newer than this build supports (%d)", b.Path, doc.Version, CurrentVersion),
		}
	}
	return doc, nil
}

func (b *LocalBackend) Save(ctx context.Context, doc *Document) error {
	existing, err := b.Load(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err == nil {
		if existing.Lineage != "" && doc.Lineage != "" && existing.Lineage != doc.Lineage {
			return &cerrors.StateError{
				Kind:    cerrors.StateErrorLineageMismatch,
				Message: fmt.Sprintf("refusing to save: state at %s has lineage %s, document has %s", b.Path, existing.Lineage, doc.Lineage),
			}
		}
		if existing.Serial != doc.Serial {
			return &cerrors.StateError{
				Kind:    cerrors.StateErrorVersionMismatch,
				Message: fmt.Sprintf("refusing to save: state at %s is at serial %d, document is based on serial %d", b.Path, existing.Serial, doc.Serial),
			}
		}
	}

	doc.Serial++
	data, err := Marshal(doc)
	if err != nil {
		doc.Serial--
		return err
	}

	dir := filepath.Dir(b.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		doc.Serial--
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		doc.Serial--
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		doc.Serial--
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		doc.Serial--
		return err
	}
	if err := os.Rename(tmpPath, b.Path); err != nil {
		os.Remove(tmpPath)
		doc.Serial--
		return err
	}
	return nil
}

func (b *LocalBackend) lockPath() string { return b.Path + ".lock" }

func (b *LocalBackend) Lock(ctx context.Context, who string, timeout time.Duration) (*LockHandle, error) {
	deadline := time.Now().Add(timeout)
	handle := &LockHandle{LockID: uuid.NewString(), Who: who, AcquiredAt: time.Now()}

	for {
		if err := os.MkdirAll(filepath.Dir(b.lockPath()), 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(b.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%s\n%s\n%s\n", handle.LockID, handle.Who, handle.AcquiredAt.Format(time.RFC3339))
			f.Close()
			return handle, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		if time.Now().After(deadline) {
			holder, _ := os.ReadFile(b.lockPath())
			return nil, &cerrors.LockedError{CurrentHolder: string(holder)}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (b *LocalBackend) Unlock(ctx context.Context, handle *LockHandle) error {
	return os.Remove(b.lockPath())
}
