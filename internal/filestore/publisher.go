package filestore

import (
	"bytes"
	"context"
	"path"
	"strings"
)

// Publisher uploads generated files under a key prefix of one bucket.
type Publisher struct {
	store  Store
	bucket string
	prefix string
}

// NewPublisher creates a Publisher. prefix may be empty.
func NewPublisher(store Store, bucket, prefix string) *Publisher {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Publisher{store: store, bucket: bucket, prefix: prefix}
}

// Key returns the object key of a relative file name.
func (p *Publisher) Key(name string) string {
	return p.prefix + path.Clean(strings.TrimPrefix(name, "/"))
}

// Prepare creates the bucket when missing and removes every object left
// under the prefix by an earlier generation.
func (p *Publisher) Prepare(ctx context.Context) error {
	if err := p.store.EnsureBucket(ctx, p.bucket); err != nil {
		return err
	}
	old, err := p.store.ListObjects(ctx, p.bucket, ListOptions{Prefix: p.prefix, Recursive: true})
	if err != nil {
		return err
	}
	for _, o := range old {
		if err := p.store.RemoveObject(ctx, p.bucket, o.Key); err != nil {
			return err
		}
	}
	return nil
}

// Publish uploads one generated file.
func (p *Publisher) Publish(ctx context.Context, name string, data []byte) error {
	_, err := p.store.PutObject(ctx, p.bucket, p.Key(name), bytes.NewReader(data), int64(len(data)), "text/x-go")
	return err
}

// Retract removes one published file.
func (p *Publisher) Retract(ctx context.Context, name string) error {
	return p.store.RemoveObject(ctx, p.bucket, p.Key(name))
}
