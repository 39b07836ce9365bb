package persona

import (
	"context"
	"sync"
)

// LazyBinding resolves a capability on first use and caches the first
// success. Every call before that retries resolution, so a dependency that is
// down at process start binds as soon as it comes up, without ad hoc flags at
// call sites.
type LazyBinding[T any] struct {
	mu      sync.Mutex
	resolve func(ctx context.Context) (T, error)
	value   T
	bound   bool
}

func NewLazyBinding[T any](resolve func(ctx context.Context) (T, error)) *LazyBinding[T] {
	return &LazyBinding[T]{resolve: resolve}
}

// Resolve returns the bound value, attempting resolution if none is cached.
// Resolution is idempotent: once it succeeds the resolver is never invoked
// again.
func (b *LazyBinding[T]) Resolve(ctx context.Context) (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bound {
		return b.value, nil
	}
	v, err := b.resolve(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	b.value = v
	b.bound = true
	return v, nil
}

// Bound reports whether a value has been cached.
func (b *LazyBinding[T]) Bound() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bound
}
