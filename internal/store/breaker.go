package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gate-system/internal/status"
	"gate-system/utils"
)

// breakingStore short-circuits calls to a failing backend. An open breaker
// surfaces as status.ErrCircuitOpen, which callers handle as a storage error.
type breakingStore struct {
	inner   ConditionalStore
	breaker *utils.CircuitBreaker
}

// WithBreaker wraps inner with cb. Not-found answers do not count as failures.
func WithBreaker(inner ConditionalStore, cb *utils.CircuitBreaker) ConditionalStore {
	return &breakingStore{inner: inner, breaker: cb}
}

// NotFoundIsSuccess is the success filter to build breakers for stores with.
func NotFoundIsSuccess(err error) bool {
	return err == nil || errors.Is(err, status.ErrNotFound)
}

func (b *breakingStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := b.run(ctx, func(ctx context.Context) error {
		var err error
		data, err = b.inner.Get(ctx, key)
		return err
	})
	return data, err
}

func (b *breakingStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.run(ctx, func(ctx context.Context) error {
		return b.inner.Put(ctx, key, value, ttl)
	})
}

func (b *breakingStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var ok bool
	err := b.run(ctx, func(ctx context.Context) error {
		var err error
		ok, err = b.inner.PutIfAbsent(ctx, key, value, ttl)
		return err
	})
	return ok, err
}

func (b *breakingStore) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	return b.run(ctx, func(ctx context.Context) error {
		return b.inner.Scan(ctx, prefix, fn)
	})
}

func (b *breakingStore) run(ctx context.Context, fn func(ctx context.Context) error) error {
	err := b.breaker.Execute(ctx, fn)
	if errors.Is(err, utils.ErrBreakerOpen) || errors.Is(err, utils.ErrBreakerTooManyRequests) {
		return fmt.Errorf("%s: %w", b.breaker.Name(), status.ErrCircuitOpen)
	}
	return err
}
