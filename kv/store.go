// Package kv is the key-value store client shared by the cache, rate limiter,
// session store and API key manager.
//
// A [Store] exposes the small command set those components need: GET, SET
// (with or without TTL), DEL, KEYS, INCR, EXPIRE, TTL, MGET and pipelined
// writes. Single-key commands are atomic at the store. Sequences of commands
// are not: a caller doing INCR and then EXPIRE may interleave with other
// processes between the two calls.
//
// Two implementations are provided:
//
//   - [NewRedis] / [Connect] is backed by Redis using go-redis. Every call is
//     bounded by a per-call timeout derived from the caller's context.
//   - [NewMemory] is in-process, for tests and single-node development.
//
// Wrappers compose on top of any Store: [WithNamespace] prefixes keys,
// [WithBreaker] fails fast while the store is unreachable and [WithTracing]
// records a span per command.
package kv

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrUnavailable is returned when the store cannot be reached, including
// while a circuit breaker is open.
var ErrUnavailable = errors.New("kv: store unavailable")

const (
	// NoExpiry is returned by TTL for a key that exists without an expiry.
	NoExpiry time.Duration = -1
	// Missing is returned by TTL for a key that does not exist.
	Missing time.Duration = -2
)

// Store is the contract every component is written against. A miss is never
// an error: Get reports found=false and MGet returns a nil slot.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes val. ttl <= 0 writes without expiry.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	// Keys returns every key matching a Redis glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets a TTL on an existing key; false if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	// Pipeline sends ops in one round trip. It is not a transaction.
	Pipeline(ctx context.Context, ops ...Op) error
	Ping(ctx context.Context) error
	Close() error
}

type OpKind int

const (
	OpSet OpKind = iota
	OpDel
	OpExpire
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "SET"
	case OpDel:
		return "DEL"
	case OpExpire:
		return "EXPIRE"
	default:
		return "UNKNOWN"
	}
}

// Op is a single write queued in a Pipeline.
type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
	TTL   time.Duration
}

func SetOp(key string, val []byte, ttl time.Duration) Op {
	return Op{Kind: OpSet, Key: key, Value: val, TTL: ttl}
}

func DelOp(key string) Op {
	return Op{Kind: OpDel, Key: key}
}

func ExpireOp(key string, ttl time.Duration) Op {
	return Op{Kind: OpExpire, Key: key, TTL: ttl}
}
