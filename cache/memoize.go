package cache

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ArgsKey hashes args into a stable cache key fragment. Map keys are sorted
// before encoding so equal maps always hash the same.
func ArgsKey(args any) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(args); err != nil {
		return "", errors.Wrap(err, "cache: encoding memoize arguments")
	}
	return strconv.FormatUint(xxhash.Sum64(buf.Bytes()), 16), nil
}

// Memoize wraps fn so that results are cached under
// "memo:<keyPrefix>:<hash of args>" for ttl, or the default TTL when ttl is
// zero. Errors returned by fn are passed through and never cached.
// Concurrent misses for the same arguments may each call fn.
func Memoize[A, R any](m *Manager, fn func(ctx context.Context, args A) (R, error), keyPrefix string, ttl time.Duration) func(ctx context.Context, args A) (R, error) {
	ttl = m.ttlOrDefault(ttl)
	return func(ctx context.Context, args A) (R, error) {
		hash, err := ArgsKey(args)
		if err != nil {
			m.log.Warn("memoize %s: %s, calling through", keyPrefix, err)
			return fn(ctx, args)
		}
		key := "memo:" + keyPrefix + ":" + hash
		if val, ok := Get[R](ctx, m, key); ok {
			return val, nil
		}
		val, err := fn(ctx, args)
		if err != nil {
			return val, err
		}
		m.Set(ctx, key, val, ttl)
		return val, nil
	}
}
