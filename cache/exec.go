package cache

import (
	"context"
	"time"
)

// Invoker is a function that produces a value of type T.
// The bool return indicates whether a value was found. Return false to signal
// "not found" without caching a zero value.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is a cache-aside helper. On a hit it returns the cached value with
// found=true. On a miss it calls invoke; a found value is stored for ttl (the
// default TTL when ttl is zero) and returned. A not-found result is not
// cached. Only errors from invoke are returned; cache failures degrade to a
// miss.
func Exec[T any](ctx context.Context, m *Manager, key string, ttl time.Duration, invoke Invoker[T]) (T, bool, error) {
	if val, ok := Get[T](ctx, m, key); ok {
		return val, true, nil
	}
	result, ok, err := invoke(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if !ok {
		var zero T
		return zero, false, nil
	}
	m.Set(ctx, key, result, m.ttlOrDefault(ttl))
	return result, true, nil
}
