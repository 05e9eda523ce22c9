package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errPreconditionFailed = errors.New("precondition failed")

// fakeS3 is an in-memory stand-in for *s3.Client exercising only the
// conditional-write behavior the backend depends on: IfNoneMatch="*"
// fails if the key already exists, IfMatch fails if the given etag is
// stale.
type fakeS3 struct {
	objects map[string][]byte
	etags   map[string]string
	seq     int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, etags: map[string]string{}}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	etag := f.etags[aws.ToString(in.Key)]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data)), ETag: aws.String(etag)}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(in.Key)
	_, exists := f.objects[key]

	if in.IfNoneMatch != nil && aws.ToString(in.IfNoneMatch) == "*" && exists {
		return nil, errPreconditionFailed
	}
	if in.IfMatch != nil {
		if !exists || f.etags[key] != aws.ToString(in.IfMatch) {
			return nil, errPreconditionFailed
		}
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.seq++
	etag := aws.String(fmt.Sprintf("etag-%d", f.seq))
	f.objects[key] = data
	f.etags[key] = *etag
	return &s3.PutObjectOutput{ETag: etag}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(in.Key)
	delete(f.objects, key)
	delete(f.etags, key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3BackendSaveAndLoadRoundTrip(t *testing.T) {
	client := newFakeS3()
	b := &S3Backend{Client: client, Bucket: "bucket", Key: "state.json", AutoCreate: true}

	doc := New()
	doc.Put("aws.vpc.main", "aws.vpc", "vpc-001", nil)
	require.NoError(t, b.Save(context.Background(), doc))

	loaded, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Serial)
}

func TestS3BackendConditionalSaveRejectsConcurrentWriter(t *testing.T) {
	client := newFakeS3()
	b := &S3Backend{Client: client, Bucket: "bucket", Key: "state.json", AutoCreate: true}

	base := New()
	require.NoError(t, b.Save(context.Background(), base))

	writerA := base.Clone()
	writerB := base.Clone()
	writerA.Serial = 1
	writerB.Serial = 1

	require.NoError(t, b.Save(context.Background(), writerA))
	err := b.Save(context.Background(), writerB)
	require.Error(t, err)
}

func TestS3BackendRefusesCreateWithoutAutoCreate(t *testing.T) {
	client := newFakeS3()
	b := &S3Backend{Client: client, Bucket: "bucket", Key: "state.json", AutoCreate: false}
	err := b.Save(context.Background(), New())
	require.Error(t, err)
}
