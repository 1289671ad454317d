package contents

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// SchemeGCS selects Cloud Storage objects.
const SchemeGCS = "gs"

// ObjectReaderAPI opens Cloud Storage objects. Tests substitute it.
type ObjectReaderAPI interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

type storageObjectReader struct {
	client *storage.Client
}

func (s storageObjectReader) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GCSBackend reads gs://bucket/object references.
type GCSBackend struct {
	reader ObjectReaderAPI
	client *storage.Client
}

// NewGCSBackend creates a backend with application default credentials.
func NewGCSBackend(ctx context.Context, opts ...option.ClientOption) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSBackend{reader: storageObjectReader{client: client}, client: client}, nil
}

// NewGCSBackendWithReader creates a backend over an existing reader.
func NewGCSBackendWithReader(reader ObjectReaderAPI) *GCSBackend {
	return &GCSBackend{reader: reader}
}

// Fetch implements Backend.
func (b *GCSBackend) Fetch(ctx context.Context, location string) ([]byte, error) {
	bucket, object, err := splitLocation(location, "bucket/object")
	if err != nil {
		return nil, err
	}

	rc, err := b.reader.NewReader(ctx, bucket, object)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("object gs://%s/%s does not exist: %w", bucket, object, err)
		}
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, object, err)
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// Close releases the storage client.
func (b *GCSBackend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
