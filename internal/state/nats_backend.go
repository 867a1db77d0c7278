package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
)

// NATSBackend maps each namespace onto a JetStream key-value bucket named
// <prefix>_<namespace>. Buckets are created on first use with History 1,
// matching the single-latest-value contract.
type NATSBackend struct {
	js      jetstream.JetStream
	prefix  string
	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

// NewNATSBackend wraps an existing JetStream context. The caller owns the
// underlying connection.
func NewNATSBackend(js jetstream.JetStream, bucketPrefix string) *NATSBackend {
	if bucketPrefix == "" {
		bucketPrefix = "dayroll"
	}
	return &NATSBackend{js: js, prefix: bucketPrefix, buckets: make(map[string]jetstream.KeyValue)}
}

// BucketName returns the bucket used for a namespace.
func (b *NATSBackend) BucketName(namespace string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "/", "_")
	return r.Replace(b.prefix + "_" + namespace)
}

func (b *NATSBackend) bucket(ctx context.Context, namespace string) (jetstream.KeyValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if kv, ok := b.buckets[namespace]; ok {
		return kv, nil
	}
	name := b.BucketName(namespace)
	kv, err := b.js.KeyValue(ctx, name)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = b.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      name,
			Description: "dayroll namespace " + namespace,
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open kv bucket %s: %w", name, err)
	}
	b.buckets[namespace] = kv
	return kv, nil
}

func (b *NATSBackend) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	kv, err := b.bucket(ctx, namespace)
	if err != nil {
		return nil, false, err
	}
	entry, err := kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return entry.Value(), true, nil
}

func (b *NATSBackend) Put(ctx context.Context, namespace, key string, value []byte) error {
	kv, err := b.bucket(ctx, namespace)
	if err != nil {
		return err
	}
	if _, err := kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put %s: %w", key, err)
	}
	return nil
}

func (b *NATSBackend) Delete(ctx context.Context, namespace, key string) error {
	kv, err := b.bucket(ctx, namespace)
	if err != nil {
		return err
	}
	if err := kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Close forgets cached bucket handles.
func (b *NATSBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets = make(map[string]jetstream.KeyValue)
	return nil
}
