package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher writes whole documents of type T under one key.
type Publisher[T any] struct {
	store Store
	key   string
}

// NewPublisher returns a Publisher writing to key.
func NewPublisher[T any](store Store, key string) *Publisher[T] {
	return &Publisher[T]{store: store, key: key}
}

// Key returns the key documents are written to.
func (p *Publisher[T]) Key() string {
	return p.key
}

// Publish encodes doc completely and replaces the stored document with a
// single write. Nothing is written when encoding fails.
func (p *Publisher[T]) Publish(ctx context.Context, doc T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", p.key, err)
	}
	if err := p.store.Set(ctx, p.key, data, 0); err != nil {
		return fmt.Errorf("snapshot: publish %s: %w", p.key, err)
	}
	return nil
}

// Reader decodes the document stored under one key.
type Reader[T any] struct {
	store Store
	key   string
}

// NewReader returns a Reader for key.
func NewReader[T any](store Store, key string) *Reader[T] {
	return &Reader[T]{store: store, key: key}
}

// Read returns the last published document. found is false, with a nil
// error, when nothing has been published yet.
func (r *Reader[T]) Read(ctx context.Context) (doc T, found bool, err error) {
	data, found, err := r.store.Get(ctx, r.key)
	if err != nil || !found {
		return doc, false, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		var zero T
		return zero, false, fmt.Errorf("snapshot: decode %s: %w", r.key, err)
	}
	return doc, true, nil
}
