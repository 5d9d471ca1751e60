// Package ratelimit implements fixed-window request counting on a kv.Store.
//
// Each window is a counter key: the first INCR in a window creates it and
// sets its expiry to the window length, and the store deletes it when the
// window ends. Windows are fixed, not sliding, so a client can get up to
// twice the limit through across a window boundary.
//
// INCR and the conditional EXPIRE are two separate commands. If the process
// dies between them the counter is left without an expiry; the next denied
// request notices and re-applies it, so a stuck counter only lasts until
// someone is refused.
package ratelimit

import (
	"context"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/cockroachdb/errors"
)

var (
	// ErrLimitExceeded is returned by callers that turn a denied Decision
	// into an error. It maps to HTTP 429.
	ErrLimitExceeded = errors.New("rate limit exceeded")
	ErrInvalidWindow = errors.New("ratelimit: window must be positive")
)

const defaultPrefix = "ratelimit"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Count     int64
	Limit     int64
	Remaining int64
	// ResetAfter is only populated for denied requests.
	ResetAfter time.Duration
}

// Limiter counts requests per key and window.
type Limiter struct {
	store  kv.Store
	log    logger.Logger
	prefix string
}

type Option func(*Limiter)

// WithPrefix sets the key prefix for counters. Defaults to "ratelimit".
func WithPrefix(p string) Option {
	return func(l *Limiter) { l.prefix = p }
}

func New(store kv.Store, log logger.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		log:    log.WithPrefix("[ratelimit]"),
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) key(k string) string {
	if l.prefix == "" {
		return k
	}
	return l.prefix + ":" + k
}

// Allow counts one request against key and reports whether it is within
// limit for the current window. Store failures are returned as errors; the
// caller picks fail-open or fail-closed.
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (Decision, error) {
	if window <= 0 {
		return Decision{}, ErrInvalidWindow
	}
	k := l.key(key)
	count, err := l.store.Incr(ctx, k)
	if err != nil {
		return Decision{}, errors.Wrap(err, "ratelimit: increment")
	}
	if count == 1 {
		if _, err := l.store.Expire(ctx, k, window); err != nil {
			l.log.Warn("failed to start window for %s: %s", key, err)
		}
	}
	d := Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: max(limit-count, 0),
	}
	if !d.Allowed {
		d.ResetAfter = l.resetAfter(ctx, k, window)
	}
	return d, nil
}

func (l *Limiter) resetAfter(ctx context.Context, k string, window time.Duration) time.Duration {
	ttl, err := l.store.TTL(ctx, k)
	if err != nil {
		return window
	}
	switch ttl {
	case kv.Missing:
		return 0
	case kv.NoExpiry:
		if _, err := l.store.Expire(ctx, k, window); err != nil {
			l.log.Warn("failed to repair window expiry: %s", err)
		} else {
			l.log.Debug("repaired counter without expiry")
		}
		return window
	}
	return ttl
}

// Reset drops the counter for key, opening a fresh window.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	_, err := l.store.Del(ctx, l.key(key))
	return errors.Wrap(err, "ratelimit: reset")
}
