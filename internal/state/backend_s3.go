package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/carina-iac/carina/internal/cerrors"
)

// s3Client is the subset of *s3.Client the backend exercises, narrowed
// to an interface for testability.
type s3Client interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Backend persists the state document as one object and a sibling lock
// object in the same bucket. Optimistic concurrency uses conditional
// PutObject (If-Match on ETag), so a stale writer is rejected rather
// than allowed to clobber a newer document.
type S3Backend struct {
	Client     s3Client
	Bucket     string
	Key        string
	Encrypt    bool
	AutoCreate bool
}

func (b *S3Backend) lockKey() string { return b.Key + ".lock" }

func (b *S3Backend) Load(ctx context.Context) (*Document, error) {
	data, _, err := b.getObject(ctx, b.Key)
	if err != nil {
		return nil, err
	}
	doc, err := Unmarshal(data)
	if err != nil {
		return nil, &cerrors.StateError{Kind: cerrors.StateErrorCorrupt, Message: fmt.Sprintf("corrupt state at s3://%s/%s: %s", b.Bucket, b.Key, err)}
	}
	if doc.Version > CurrentVersion {
		return nil, &cerrors.StateError{
			Kind:    cerrors.StateErrorCorrupt,
			Message: fmt.Sprintf("state object s3://%s/%s has version %d, newer than this build supports (%d)", b.Bucket, b.Key, doc.Version, CurrentVersion),
		}
	}
	return doc, nil
}

func (b *S3Backend) getObject(ctx context.Context, key string) ([]byte, string, error) {
	out, err := b.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.Bucket), Key: aws.String(key)})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", ErrNotFound
		}
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}
	etag := ""
	if out.ETag != nil {
		etag = *out.ETag
	}
	return data, etag, nil
}

func (b *S3Backend) Save(ctx context.Context, doc *Document) error {
	existingData, etag, err := b.getObject(ctx, b.Key)
	exists := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if exists {
		existing, uerr := Unmarshal(existingData)
		if uerr != nil {
			return &cerrors.StateError{Kind: cerrors.StateErrorCorrupt, Message: uerr.Error()}
		}
		if existing.Lineage != "" && doc.Lineage != "" && existing.Lineage != doc.Lineage {
			return &cerrors.StateError{
				Kind:    cerrors.StateErrorLineageMismatch,
				Message: fmt.Sprintf("refusing to save: s3://%s/%s has lineage %s, document has %s", b.Bucket, b.Key, existing.Lineage, doc.Lineage),
			}
		}
		if existing.Serial != doc.Serial {
			return &cerrors.StateError{
				Kind:    cerrors.StateErrorVersionMismatch,
				Message: fmt.Sprintf("refusing to save: s3://%s/%s is at serial %d, document is based on serial %d", b.Bucket, b.Key, existing.Serial, doc.Serial),
			}
		}
	} else if !b.AutoCreate {
		return &cerrors.StateError{Kind: cerrors.StateErrorCorrupt, Message: fmt.Sprintf("s3://%s/%s does not exist and auto_create is false", b.Bucket, b.Key)}
	}

	doc.Serial++
	data, err := Marshal(doc)
	if err != nil {
		doc.Serial--
		return err
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.Key),
		Body:   bytes.NewReader(data),
	}
	if b.Encrypt {
		in.ServerSideEncryption = types.ServerSideEncryptionAes256
	}
	if exists {
		in.IfMatch = aws.String(etag)
	} else {
		in.IfNoneMatch = aws.String("*")
	}

	if _, err := b.Client.PutObject(ctx, in); err != nil {
		doc.Serial--
		return &cerrors.StateError{
			Kind:    cerrors.StateErrorVersionMismatch,
			Message: fmt.Sprintf("conditional save to s3://%s/%s rejected (concurrent writer): %s", b.Bucket, b.Key, err),
		}
	}
	return nil
}

func (b *S3Backend) Lock(ctx context.Context, who string, timeout time.Duration) (*LockHandle, error) {
	deadline := time.Now().Add(timeout)
	handle := &LockHandle{LockID: fmt.Sprintf("lock-%d", time.Now().UnixNano()), Who: who, AcquiredAt: time.Now()}

	for {
		body := fmt.Sprintf("%s\n%s\n%s\n", handle.LockID, handle.Who, handle.AcquiredAt.Format(time.RFC3339))
		_, err := b.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.Bucket),
			Key:         aws.String(b.lockKey()),
			Body:        bytes.NewReader([]byte(body)),
			IfNoneMatch: aws.String("*"),
		})
		if err == nil {
			return handle, nil
		}
		if time.Now().After(deadline) {
			holder, _, _ := b.getObject(ctx, b.lockKey())
			return nil, &cerrors.LockedError{CurrentHolder: string(holder)}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (b *S3Backend) Unlock(ctx context.Context, handle *LockHandle) error {
	_, err := b.Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.lockKey()),
	})
	return err
}
