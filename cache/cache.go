package cache

import (
	"context"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/codec"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/ratelimit"
)

// DefaultTTL is used by Memoize and Exec when no TTL is given.
const DefaultTTL = time.Hour

const defaultNamespace = "cache"

// config holds the resolved configuration for a Manager.
type config struct {
	namespace  string
	defaultTTL time.Duration
}

// Option configures a Manager.
type Option func(*config)

// WithNamespace sets the key prefix every cache key is placed under.
// Defaults to "cache".
func WithNamespace(ns string) Option {
	return func(c *config) { c.namespace = ns }
}

// WithDefaultTTL sets the TTL used by Memoize and Exec when called with a
// zero TTL. Defaults to DefaultTTL (1 hour).
func WithDefaultTTL(d time.Duration) Option {
	return func(c *config) { c.defaultTTL = d }
}

func applyOptions(opts []Option) config {
	cfg := config{
		namespace:  defaultNamespace,
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Manager is the application cache. Every operation is best-effort: store
// failures are logged and reported as misses, never returned.
type Manager struct {
	store   kv.Store
	log     logger.Logger
	limiter *ratelimit.Limiter
	cfg     config
}

// New returns a Manager writing through store.
func New(store kv.Store, log logger.Logger, opts ...Option) *Manager {
	cfg := applyOptions(opts)
	log = log.WithPrefix("[cache]")
	return &Manager{
		store:   store,
		log:     log,
		limiter: ratelimit.New(store, log, ratelimit.WithPrefix(cfg.namespace+":ratelimit")),
		cfg:     cfg,
	}
}

func (m *Manager) key(k string) string {
	if m.cfg.namespace == "" {
		return k
	}
	return m.cfg.namespace + ":" + k
}

func (m *Manager) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return m.cfg.defaultTTL
}

// Get returns the value stored under key decoded as T. Any store or decode
// error is logged and reported as a miss.
func Get[T any](ctx context.Context, m *Manager, key string) (T, bool) {
	var zero T
	data, found, err := m.store.Get(ctx, m.key(key))
	if err != nil {
		m.log.Error("get %s failed: %s", key, err)
		return zero, false
	}
	if !found {
		return zero, false
	}
	val, err := codec.Msgpack[T]().Unmarshal(data)
	if err != nil {
		m.log.Error("get %s: %s", key, err)
		return zero, false
	}
	return val, true
}

// Set stores val under key. A positive ttl bounds the entry's lifetime; zero
// stores it without expiry. Failures are logged and dropped.
func (m *Manager) Set(ctx context.Context, key string, val any, ttl time.Duration) {
	data, err := codec.Msgpack[any]().Marshal(val)
	if err != nil {
		m.log.Error("set %s: %s", key, err)
		return
	}
	if err := m.store.Set(ctx, m.key(key), data, ttl); err != nil {
		m.log.Error("set %s failed: %s", key, err)
	}
}

// Delete removes key.
func (m *Manager) Delete(ctx context.Context, key string) {
	if _, err := m.store.Del(ctx, m.key(key)); err != nil {
		m.log.Error("delete %s failed: %s", key, err)
	}
}

// Clear removes every key matching pattern (a glob relative to the cache
// namespace) and returns how many were removed.
func (m *Manager) Clear(ctx context.Context, pattern string) int {
	keys, err := m.store.Keys(ctx, m.key(pattern))
	if err != nil {
		m.log.Error("clear %s: listing keys failed: %s", pattern, err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	n, err := m.store.Del(ctx, keys...)
	if err != nil {
		m.log.Error("clear %s: delete failed: %s", pattern, err)
		return 0
	}
	m.log.Debug("cleared %d key(s) matching %s", n, pattern)
	return int(n)
}

// RateLimit counts one hit against key in a fixed window and reports whether
// the hit is within limit. When the store is unreachable the hit is allowed.
func (m *Manager) RateLimit(ctx context.Context, key string, limit int64, window time.Duration) bool {
	d, err := m.limiter.Allow(ctx, key, limit, window)
	if err != nil {
		m.log.Error("rate limit %s failed, allowing: %s", key, err)
		return true
	}
	return d.Allowed
}

// WarmCache computes a value eagerly and stores it. Errors from fn are
// logged and nothing is stored.
func (m *Manager) WarmCache(ctx context.Context, key string, fn func(ctx context.Context) (any, error), ttl time.Duration) {
	val, err := fn(ctx)
	if err != nil {
		m.log.Error("warm %s failed: %s", key, err)
		return
	}
	m.Set(ctx, key, val, ttl)
}
