package kv

import (
	"context"
	"strings"
	"time"
)

type namespaced struct {
	next   Store
	prefix string
}

var _ Store = (*namespaced)(nil)

// WithNamespace returns a Store that transparently prefixes every key with
// "ns:" and strips the prefix from Keys results, so several applications can
// share one Redis database without colliding. An empty ns returns s as is.
func WithNamespace(s Store, ns string) Store {
	if ns == "" {
		return s
	}
	return &namespaced{next: s, prefix: strings.TrimSuffix(ns, ":") + ":"}
}

func (n *namespaced) key(k string) string {
	return n.prefix + k
}

func (n *namespaced) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = n.prefix + k
	}
	return out
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.next.Get(ctx, n.key(key))
}

func (n *namespaced) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return n.next.Set(ctx, n.key(key), val, ttl)
}

func (n *namespaced) Del(ctx context.Context, keys ...string) (int64, error) {
	return n.next.Del(ctx, n.keys(keys)...)
}

func (n *namespaced) Keys(ctx context.Context, pattern string) ([]string, error) {
	found, err := n.next.Keys(ctx, EscapeGlob(n.prefix)+pattern)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(found))
	for _, k := range found {
		out = append(out, strings.TrimPrefix(k, n.prefix))
	}
	return out, nil
}

func (n *namespaced) Incr(ctx context.Context, key string) (int64, error) {
	return n.next.Incr(ctx, n.key(key))
}

func (n *namespaced) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return n.next.Expire(ctx, n.key(key), ttl)
}

func (n *namespaced) TTL(ctx context.Context, key string) (time.Duration, error) {
	return n.next.TTL(ctx, n.key(key))
}

func (n *namespaced) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	return n.next.MGet(ctx, n.keys(keys)...)
}

func (n *namespaced) Pipeline(ctx context.Context, ops ...Op) error {
	prefixed := make([]Op, len(ops))
	for i, op := range ops {
		op.Key = n.key(op.Key)
		prefixed[i] = op
	}
	return n.next.Pipeline(ctx, prefixed...)
}

func (n *namespaced) Ping(ctx context.Context) error {
	return n.next.Ping(ctx)
}

func (n *namespaced) Close() error {
	return n.next.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// EscapeGlob quotes glob metacharacters so s matches only itself in a Keys
// pattern. Callers use it for user-supplied key fragments such as user ids.
func EscapeGlob(s string) string {
	return globEscaper.Replace(s)
}
