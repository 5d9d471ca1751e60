package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*miniredis.Miniredis, *Limiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, New(kv.NewRedis(client), logger.NewTestLogger())
}

func TestAllowFixedWindow(t *testing.T) {
	mr, l := newTestLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := l.Allow(ctx, "login:u1", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d", i)
		assert.Equal(t, int64(5-i), d.Remaining)
	}

	d, err := l.Allow(ctx, "login:u1", 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(6), d.Count)
	assert.Equal(t, int64(0), d.Remaining)
	assert.Equal(t, time.Minute, d.ResetAfter)

	mr.FastForward(61 * time.Second)

	d, err = l.Allow(ctx, "login:u1", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestAllowSetsExpiryOnFirstHitOnly(t *testing.T) {
	mr, l := newTestLimiter(t)
	ctx := context.Background()

	_, err := l.Allow(ctx, "k", 10, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:k"))

	mr.FastForward(20 * time.Second)
	_, err = l.Allow(ctx, "k", 10, time.Minute)
	require.NoError(t, err)
	// The window is not extended by later hits.
	assert.Equal(t, 40*time.Second, mr.TTL("ratelimit:k"))
}

func TestAllowKeysAreIndependent(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()

	d, err := l.Allow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Allow(ctx, "b", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, err = l.Allow(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestAllowRepairsCounterWithoutExpiry(t *testing.T) {
	mr, l := newTestLimiter(t)
	ctx := context.Background()

	// A counter whose EXPIRE never landed.
	require.NoError(t, mr.Set("ratelimit:stuck", "3"))

	d, err := l.Allow(ctx, "stuck", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.ResetAfter)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:stuck"))

	mr.FastForward(time.Minute + time.Second)
	d, err = l.Allow(ctx, "stuck", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestAllowInvalidWindow(t *testing.T) {
	_, l := newTestLimiter(t)
	_, err := l.Allow(context.Background(), "k", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestAllowStoreError(t *testing.T) {
	mr, l := newTestLimiter(t)
	mr.SetError("LOADING")
	_, err := l.Allow(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	_, l := newTestLimiter(t)
	ctx := context.Background()
	_, err := l.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "k"))
	d, err := l.Allow(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestWithPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := New(kv.NewRedis(client), logger.NewTestLogger(), WithPrefix("apikey:usage"))
	_, err := l.Allow(context.Background(), "mk_abc", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, mr.Exists("apikey:usage:mk_abc"))
}

func TestMiddleware(t *testing.T) {
	_, l := newTestLimiter(t)
	handler := l.Middleware(ByRemoteIP, 2, time.Minute, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	statuses := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
		req.RemoteAddr = "10.0.0.7:5555"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		statuses = append(statuses, last.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, statuses)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
}

func TestMiddlewareFailsOpen(t *testing.T) {
	mr, l := newTestLimiter(t)
	mr.SetError("LOADING")
	called := false
	handler := l.Middleware(ByRemoteIP, 1, time.Minute, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestByRemoteIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.9:1234"
	assert.Equal(t, "ip:192.168.1.9", ByRemoteIP(req))
	req.RemoteAddr = "socket"
	assert.Equal(t, "ip:socket", ByRemoteIP(req))
}
