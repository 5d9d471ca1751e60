package kv

import (
	"context"
	"strings"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/resilience"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type guarded struct {
	next Store
	cb   *resilience.CircuitBreaker
}

var _ Store = (*guarded)(nil)

// WithBreaker wraps s so that, after repeated failures, calls fail
// immediately with ErrUnavailable instead of each waiting out the timeout.
// A miss is a successful call and never trips the breaker.
func WithBreaker(s Store, cb *resilience.CircuitBreaker) Store {
	return &guarded{next: s, cb: cb}
}

// unavailableReplies are Redis error replies that mean the server cannot
// serve commands at all, as opposed to rejecting one command.
var unavailableReplies = []string{"LOADING", "BUSY", "MASTERDOWN", "CLUSTERDOWN", "TRYAGAIN", "READONLY", "OOM", "NOAUTH"}

// tripsBreaker reports whether err counts as a store failure. Caller
// cancellation and per-command rejections (WRONGTYPE, a non-integer INCR)
// say nothing about the store's health.
func tripsBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrNotInteger) {
		return false
	}
	var reply redis.Error
	if errors.As(err, &reply) {
		msg := reply.Error()
		for _, prefix := range unavailableReplies {
			if strings.HasPrefix(msg, prefix) {
				return true
			}
		}
		return false
	}
	return true
}

// scanTripsBreaker is tripsBreaker for keyspace walks, whose duration grows
// with the size of the keyspace: running out of time is not a failure.
func scanTripsBreaker(err error) bool {
	return !errors.Is(err, context.DeadlineExceeded) && tripsBreaker(err)
}

func guard[T any](ctx context.Context, cb *resilience.CircuitBreaker, trips func(error) bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var callErr error
	err := cb.Execute(ctx, func(ctx context.Context) error {
		result, callErr = fn(ctx)
		if trips(callErr) {
			return callErr
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitBreakerOpen) {
		var zero T
		return zero, errors.Mark(err, ErrUnavailable)
	}
	return result, callErr
}

type hit struct {
	val   []byte
	found bool
}

func (g *guarded) Get(ctx context.Context, key string) ([]byte, bool, error) {
	h, err := guard(ctx, g.cb, tripsBreaker, func(ctx context.Context) (hit, error) {
		val, found, err := g.next.Get(ctx, key)
		return hit{val, found}, err
	})
	return h.val, h.found, err
}

func (g *guarded) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	_, err := guard(ctx, g.cb, tripsBreaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.Set(ctx, key, val, ttl)
	})
	return err
}

func (g *guarded) Del(ctx context.Context, keys ...string) (int64, error) {
	return guard(ctx, g.cb, tripsBreaker, func(ctx context.Context) (int64, error) {
		return g.next.Del(ctx, keys...)
	})
}

func (g *guarded) Keys(ctx context.Context, pattern string) ([]string, error) {
	return guard(ctx, g.cb, scanTripsBreaker, func(ctx context.Context) ([]string, error) {
		return g.next.Keys(ctx, pattern)
	})
}

func (g *guarded) Incr(ctx context.Context, key string) (int64, error) {
	return guard(ctx, g.cb, tripsBreaker, func(ctx context.Context) (int64, error) {
		return g.next.Incr(ctx, key)
	})
}

func (g *guarded) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return guard(ctx, g.cb, tripsBreaker, func(ctx context.Context) (bool, error) {
		return g.next.Expire(ctx, key, ttl)
	})
}

func (g *guarded) TTL(ctx context.Context, key string) (time.Duration, error) {
	return guard(ctx, g.cb, tripsBreaker, func(ctx context.Context) (time.Duration, error) {
		return g.next.TTL(ctx, key)
	})
}

func (g *guarded) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	return guard(ctx, g.cb, tripsBreaker, func(ctx context.Context) ([][]byte, error) {
		return g.next.MGet(ctx, keys...)
	})
}

func (g *guarded) Pipeline(ctx context.Context, ops ...Op) error {
	_, err := guard(ctx, g.cb, tripsBreaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.Pipeline(ctx, ops...)
	})
	return err
}

func (g *guarded) Ping(ctx context.Context) error {
	_, err := guard(ctx, g.cb, tripsBreaker, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.Ping(ctx)
	})
	return err
}

func (g *guarded) Close() error {
	return g.next.Close()
}
