// Package filestore defines the object storage contract used to publish
// generated artifacts.
//
// Generated model sources are always written to the local output directory;
// when publishing is configured, every file is also uploaded under a key
// prefix so other services can fetch the current generation.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	cfg.Bucket = "autorest"
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	pub := filestore.NewPublisher(store, cfg.Bucket, cfg.Prefix)
package filestore

import (
	"context"
	"io"
)

// Store is implemented by every storage provider.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// EnsureBucket creates bucket if it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads size bytes from r to key inside bucket,
	// replacing any existing object.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// ListObjects returns the objects in bucket that match opts.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// RemoveObject deletes key from bucket. Removing a missing key is not an error.
	RemoveObject(ctx context.Context, bucket, key string) error
}
