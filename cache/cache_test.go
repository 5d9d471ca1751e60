package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type task struct {
	ID     string `msgpack:"id"`
	SiteID int    `msgpack:"site_id"`
	Done   bool   `msgpack:"done"`
}

func newTestManager(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Manager, *logger.TestLogger) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	log := logger.NewTestLogger()
	return mr, New(kv.NewRedis(client), log, opts...), log
}

func TestSetGet(t *testing.T) {
	mr, m, _ := newTestManager(t)
	ctx := context.Background()

	m.Set(ctx, "task:1", task{ID: "t1", SiteID: 42}, time.Minute)

	got, ok := Get[task](ctx, m, "task:1")
	require.True(t, ok)
	assert.Equal(t, task{ID: "t1", SiteID: 42}, got)
	assert.True(t, mr.Exists("cache:task:1"))
	assert.Equal(t, time.Minute, mr.TTL("cache:task:1"))
}

func TestGetMiss(t *testing.T) {
	_, m, _ := newTestManager(t)
	got, ok := Get[task](context.Background(), m, "nope")
	assert.False(t, ok)
	assert.Equal(t, task{}, got)
}

func TestSetExpires(t *testing.T) {
	mr, m, _ := newTestManager(t)
	ctx := context.Background()

	m.Set(ctx, "k", "v", 10*time.Second)
	_, ok := Get[string](ctx, m, "k")
	assert.True(t, ok)

	mr.FastForward(11 * time.Second)
	_, ok = Get[string](ctx, m, "k")
	assert.False(t, ok)
}

func TestSetWithoutTTL(t *testing.T) {
	mr, m, _ := newTestManager(t)
	ctx := context.Background()

	m.Set(ctx, "k", 7, 0)
	assert.Equal(t, time.Duration(0), mr.TTL("cache:k"))
	got, ok := Get[int](ctx, m, "k")
	require.True(t, ok)
	assert.Equal(t, 7, got)
}

func TestDelete(t *testing.T) {
	_, m, _ := newTestManager(t)
	ctx := context.Background()

	m.Set(ctx, "k", "v", time.Minute)
	m.Delete(ctx, "k")
	_, ok := Get[string](ctx, m, "k")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	mr, m, _ := newTestManager(t)
	ctx := context.Background()

	m.Set(ctx, "tasks:site:1", 1, time.Minute)
	m.Set(ctx, "tasks:site:2", 2, time.Minute)
	m.Set(ctx, "reports:1", 3, time.Minute)
	require.NoError(t, mr.Set("other:tasks:site:3", "x"))

	assert.Equal(t, 2, m.Clear(ctx, "tasks:*"))
	assert.False(t, mr.Exists("cache:tasks:site:1"))
	assert.True(t, mr.Exists("cache:reports:1"))
	assert.True(t, mr.Exists("other:tasks:site:3"))
	assert.Equal(t, 0, m.Clear(ctx, "tasks:*"))
}

func TestWithNamespace(t *testing.T) {
	mr, m, _ := newTestManager(t, WithNamespace("midway:cache"))
	m.Set(context.Background(), "k", "v", time.Minute)
	assert.True(t, mr.Exists("midway:cache:k"))
}

func TestMemoize(t *testing.T) {
	mr, m, _ := newTestManager(t)
	ctx := context.Background()

	calls := 0
	double := Memoize(m, func(ctx context.Context, n int) (int, error) {
		calls++
		return n * 2, nil
	}, "double", 30*time.Second)

	for range 3 {
		v, err := double(ctx, 21)
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, 1, calls)

	v, err := double(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, calls)

	mr.FastForward(31 * time.Second)
	_, err = double(ctx, 21)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestMemoizeDefaultTTL(t *testing.T) {
	mr, m, _ := newTestManager(t, WithDefaultTTL(5*time.Minute))
	ctx := context.Background()

	f := Memoize(m, func(ctx context.Context, s string) (string, error) { return s, nil }, "echo", 0)
	_, err := f(ctx, "x")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "cache:memo:echo:")
	assert.Equal(t, 5*time.Minute, mr.TTL(keys[0]))
}

func TestMemoizeDoesNotCacheErrors(t *testing.T) {
	_, m, _ := newTestManager(t)
	ctx := context.Background()

	calls := 0
	f := Memoize(m, func(ctx context.Context, id string) (string, error) {
		calls++
		if calls == 1 {
			return "", fmt.Errorf("db down")
		}
		return "ok", nil
	}, "lookup", time.Minute)

	_, err := f(ctx, "a")
	assert.EqualError(t, err, "db down")
	v, err := f(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestArgsKeyIsOrderIndependent(t *testing.T) {
	a, err := ArgsKey(map[string]any{"site": 1, "day": "mon", "shift": "am"})
	require.NoError(t, err)
	b, err := ArgsKey(map[string]any{"shift": "am", "day": "mon", "site": 1})
	require.NoError(t, err)
	c, err := ArgsKey(map[string]any{"shift": "pm", "day": "mon", "site": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestRateLimit(t *testing.T) {
	mr, m, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.True(t, m.RateLimit(ctx, "export:u1", 5, time.Minute), "call %d", i+1)
	}
	assert.False(t, m.RateLimit(ctx, "export:u1", 5, time.Minute))
	assert.True(t, mr.Exists("cache:ratelimit:export:u1"))

	mr.FastForward(61 * time.Second)
	assert.True(t, m.RateLimit(ctx, "export:u1", 5, time.Minute))
}

func TestWarmCache(t *testing.T) {
	_, m, log := newTestManager(t)
	ctx := context.Background()

	m.WarmCache(ctx, "report:weekly", func(ctx context.Context) (any, error) {
		return []string{"a", "b"}, nil
	}, time.Minute)
	got, ok := Get[[]string](ctx, m, "report:weekly")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	m.WarmCache(ctx, "report:monthly", func(ctx context.Context) (any, error) {
		return nil, fmt.Errorf("query timeout")
	}, time.Minute)
	_, ok = Get[[]string](ctx, m, "report:monthly")
	assert.False(t, ok)
	assert.True(t, log.Contains("query timeout"))
}

func TestMSetMGet(t *testing.T) {
	mr, m, _ := newTestManager(t)
	ctx := context.Background()

	m.MSet(ctx,
		Entry{Key: "t:1", Value: task{ID: "1"}, TTL: time.Minute},
		Entry{Key: "t:2", Value: task{ID: "2", Done: true}},
	)
	assert.Equal(t, time.Minute, mr.TTL("cache:t:1"))
	assert.Equal(t, time.Duration(0), mr.TTL("cache:t:2"))

	got := MGet[task](ctx, m, "t:1", "missing", "t:2")
	require.Len(t, got, 3)
	require.NotNil(t, got[0])
	assert.Equal(t, "1", got[0].ID)
	assert.Nil(t, got[1])
	require.NotNil(t, got[2])
	assert.True(t, got[2].Done)

	assert.Empty(t, MGet[task](ctx, m))
}

func TestExec(t *testing.T) {
	_, m, _ := newTestManager(t)
	ctx := context.Background()

	invoked := 0
	load := func(ctx context.Context) (string, bool, error) {
		invoked++
		return "fresh", true, nil
	}

	val, found, err := Exec(ctx, m, "k", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fresh", val)

	val, found, err = Exec(ctx, m, "k", time.Minute, load)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fresh", val)
	assert.Equal(t, 1, invoked)
}

func TestExecNotFoundIsNotCached(t *testing.T) {
	_, m, _ := newTestManager(t)
	ctx := context.Background()

	invoked := 0
	load := func(ctx context.Context) (int, bool, error) {
		invoked++
		return 0, false, nil
	}
	_, found, err := Exec(ctx, m, "k", 0, load)
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = Exec(ctx, m, "k", 0, load)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 2, invoked)
}

func TestExecInvokerError(t *testing.T) {
	_, m, _ := newTestManager(t)
	expected := fmt.Errorf("invoke failed")
	_, found, err := Exec(context.Background(), m, "k", 0, func(ctx context.Context) (string, bool, error) {
		return "", false, expected
	})
	assert.ErrorIs(t, err, expected)
	assert.False(t, found)
}

func TestFailOpenWhenStoreErrors(t *testing.T) {
	mr, m, log := newTestManager(t)
	ctx := context.Background()
	mr.SetError("ERR injected failure")

	m.Set(ctx, "k", "v", time.Minute)
	_, ok := Get[string](ctx, m, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Clear(ctx, "*"))
	assert.True(t, m.RateLimit(ctx, "u1", 1, time.Minute))
	assert.Equal(t, []*string{nil, nil}, MGet[string](ctx, m, "a", "b"))
	m.MSet(ctx, Entry{Key: "a", Value: "x"})
	m.Delete(ctx, "k")

	calls := 0
	f := Memoize(m, func(ctx context.Context, n int) (int, error) {
		calls++
		return n, nil
	}, "id", time.Minute)
	v, err := f(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, calls)

	assert.Greater(t, log.Count("ERROR"), 5)

	mr.SetError("")
	m.Set(ctx, "k", "v", time.Minute)
	got, ok := Get[string](ctx, m, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}
