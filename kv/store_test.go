package kv

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store   Store
	ttl     time.Duration
	advance func(time.Duration)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func harnesses() map[string]func(t *testing.T) harness {
	return map[string]func(t *testing.T) harness{
		"redis": func(t *testing.T) harness {
			mr, client := newTestRedis(t)
			return harness{
				store:   NewRedis(client),
				ttl:     2 * time.Second,
				advance: mr.FastForward,
			}
		},
		"memory": func(t *testing.T) harness {
			s := NewMemory(context.Background())
			t.Cleanup(func() { s.Close() })
			return harness{
				store:   s,
				ttl:     50 * time.Millisecond,
				advance: time.Sleep,
			}
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, h harness)) {
	for name, mk := range harnesses() {
		t.Run(name, func(t *testing.T) {
			fn(t, mk(t))
		})
	}
}

func TestStoreGetSet(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		val, found, err := h.store.Get(ctx, "missing")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, val)

		require.NoError(t, h.store.Set(ctx, "k", []byte("v"), 0))
		val, found, err = h.store.Get(ctx, "k")
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("v"), val)

		ttl, err := h.store.TTL(ctx, "k")
		assert.NoError(t, err)
		assert.Equal(t, NoExpiry, ttl)

		ttl, err = h.store.TTL(ctx, "missing")
		assert.NoError(t, err)
		assert.Equal(t, Missing, ttl)
	})
}

func TestStoreSetWithTTL(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "k", []byte("v"), h.ttl))

		ttl, err := h.store.TTL(ctx, "k")
		assert.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, h.ttl)

		h.advance(2 * h.ttl)
		_, found, err := h.store.Get(ctx, "k")
		assert.NoError(t, err)
		assert.False(t, found)
	})
}

func TestStoreDelAndKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		for _, k := range []string{"session:u1:1", "session:u1:2", "session:u2:1", "other"} {
			require.NoError(t, h.store.Set(ctx, k, []byte("x"), 0))
		}

		keys, err := h.store.Keys(ctx, "session:u1:*")
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"session:u1:1", "session:u1:2"}, keys)

		keys, err = h.store.Keys(ctx, "session:u?:1")
		require.NoError(t, err)
		assert.Len(t, keys, 2)

		n, err := h.store.Del(ctx, "session:u1:1", "session:u1:2", "nope")
		assert.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = h.store.Del(ctx)
		assert.NoError(t, err)
		assert.Zero(t, n)

		keys, err = h.store.Keys(ctx, "session:u1:*")
		assert.NoError(t, err)
		assert.Empty(t, keys)
	})
}

func TestStoreIncrExpire(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		for i := int64(1); i <= 3; i++ {
			n, err := h.store.Incr(ctx, "counter")
			require.NoError(t, err)
			assert.Equal(t, i, n)
		}

		ok, err := h.store.Expire(ctx, "counter", h.ttl)
		assert.NoError(t, err)
		assert.True(t, ok)

		// INCR keeps the existing expiry.
		n, err := h.store.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		ttl, err := h.store.TTL(ctx, "counter")
		assert.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))

		h.advance(2 * h.ttl)
		n, err = h.store.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		ok, err = h.store.Expire(ctx, "missing", h.ttl)
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestStoreIncrNonInteger(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		require.NoError(t, h.store.Set(ctx, "k", []byte("abc"), 0))
		_, err := h.store.Incr(ctx, "k")
		assert.Error(t, err)
	})
}

func TestStoreMGetPipeline(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		err := h.store.Pipeline(ctx,
			SetOp("a", []byte("1"), 0),
			SetOp("b", []byte("2"), h.ttl),
			SetOp("c", []byte("3"), 0),
			DelOp("c"),
		)
		require.NoError(t, err)

		vals, err := h.store.MGet(ctx, "a", "missing", "b", "c")
		require.NoError(t, err)
		assert.Equal(t, [][]byte{[]byte("1"), nil, []byte("2"), nil}, vals)

		require.NoError(t, h.store.Pipeline(ctx, ExpireOp("a", h.ttl)))
		h.advance(2 * h.ttl)
		vals, err = h.store.MGet(ctx, "a", "b")
		require.NoError(t, err)
		assert.Equal(t, [][]byte{nil, nil}, vals)

		assert.NoError(t, h.store.Pipeline(ctx))
		assert.NoError(t, h.store.Ping(ctx))
	})
}

func TestRedisStoreSurfacesErrors(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedis(client, WithTimeout(50*time.Millisecond))
	mr.SetError("LOADING")
	_, _, err := s.Get(context.Background(), "k")
	assert.Error(t, err)
	mr.SetError("")
	_, _, err = s.Get(context.Background(), "k")
	assert.NoError(t, err)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := Connect(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", []byte("v"), 0))
	assert.NoError(t, s.Close())

	_, err = Connect(context.Background(), "://not-a-url")
	assert.Error(t, err)
}

func TestGlobToRegexp(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		match   bool
	}{
		{"session:*", "session:u1:1", true},
		{"session:*", "sessions", false},
		{"a?c", "abc", true},
		{"a?c", "ac", false},
		{"h[ae]llo", "hello", true},
		{"h[^e]llo", "hello", false},
		{`user\*:*`, "user*:1", true},
		{`user\*:*`, "userx:1", false},
		{"a.b", "axb", false},
	}
	for _, tt := range tests {
		re, err := globToRegexp(tt.pattern)
		require.NoError(t, err)
		assert.Equal(t, tt.match, re.MatchString(tt.key), "%s ~ %s", tt.pattern, tt.key)
	}
}

func TestMemoryIncrAfterDeadline(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(ctx).(*memoryStore)
	defer mem.Close()

	_, err := mem.Incr(ctx, "counter")
	require.NoError(t, err)
	_, err = mem.Expire(ctx, "counter", time.Minute)
	require.NoError(t, err)

	// the deadline has passed but the janitor has not evicted the item yet
	later := time.Now().Add(2 * time.Minute)
	mem.now = func() time.Time { return later }

	ttl, err := mem.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, Missing, ttl)

	n, err := mem.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	ttl, err = mem.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, NoExpiry, ttl)
}

type slowScan struct {
	delay time.Duration
	calls atomic.Int32
}

func (h *slowScan) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *slowScan) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "scan" {
			h.calls.Add(1)
			select {
			case <-time.After(h.delay):
			case <-ctx.Done():
				cmd.SetErr(ctx.Err())
				return ctx.Err()
			}
		}
		return next(ctx, cmd)
	}
}

func (h *slowScan) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisKeysTimeoutPerRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	for i := range 50 {
		require.NoError(t, mr.Set(fmt.Sprintf("session:u1:%d", i), "x"))
	}
	hook := &slowScan{delay: 15 * time.Millisecond}
	client.AddHook(hook)

	// each SCAN fits the per-call timeout even when the walk as a whole
	// takes several times longer
	s := NewRedis(client, WithTimeout(40*time.Millisecond), WithScanCount(5))
	keys, err := s.Keys(context.Background(), "session:u1:*")
	require.NoError(t, err)
	assert.Len(t, keys, 50)
	assert.GreaterOrEqual(t, hook.calls.Load(), int32(1))
}

func TestRedisKeysScanBudget(t *testing.T) {
	mr, client := newTestRedis(t)
	require.NoError(t, mr.Set("session:u1:1", "x"))
	client.AddHook(&slowScan{delay: 50 * time.Millisecond})

	s := NewRedis(client, WithTimeout(time.Second), WithScanBudget(10*time.Millisecond))
	_, err := s.Keys(context.Background(), "session:*")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
