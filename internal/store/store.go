// Package store defines the key-value contracts used for sale and replay
// records. Business logic depends on these interfaces only.
package store

import (
	"context"
	"time"
)

// Store is a key-value store with per-key expiry. Get returns
// status.ErrNotFound for missing or expired keys. A zero ttl means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
}

// ConditionalStore adds an atomic insert-if-absent. Implementations must
// guarantee that of any number of concurrent PutIfAbsent calls for the same
// key, exactly one returns true. It must not be emulated with Get then Put.
type ConditionalStore interface {
	Store
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
