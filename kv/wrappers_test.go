package kv

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/resilience"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespace(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	raw := NewRedis(client)
	s := WithNamespace(raw, "midway")

	require.NoError(t, s.Set(ctx, "session:u1:1", []byte("a"), 0))
	require.NoError(t, s.Set(ctx, "session:u1:2", []byte("b"), time.Minute))
	require.NoError(t, raw.Set(ctx, "session:u1:3", []byte("foreign"), 0))

	assert.True(t, mr.Exists("midway:session:u1:1"))

	keys, err := s.Keys(ctx, "session:u1:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"session:u1:1", "session:u1:2"}, keys)

	vals, err := s.MGet(ctx, "session:u1:1", "session:u1:3")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), nil}, vals)

	require.NoError(t, s.Pipeline(ctx, DelOp("session:u1:1")))
	assert.False(t, mr.Exists("midway:session:u1:1"))

	n, err := s.Incr(ctx, "hits")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.True(t, mr.Exists("midway:hits"))

	assert.Same(t, raw, WithNamespace(raw, ""))
}

func TestNamespaceEscapesPrefix(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(ctx)
	defer mem.Close()
	s := WithNamespace(mem, "app[1]")
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	keys, err := s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `user\*\?\[x\]`, EscapeGlob("user*?[x]"))
}

type failingStore struct {
	Store
	calls int
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.calls++
	return nil, false, errors.New("connection refused")
}

func TestBreakerFailsFast(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{Store: NewMemory(ctx)}
	defer inner.Close()
	s := WithBreaker(inner, resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               time.Minute,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      1,
	}))

	for range 2 {
		_, _, err := s.Get(ctx, "k")
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrUnavailable))
	}
	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerPassesThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(ctx)
	defer mem.Close()
	s := WithBreaker(mem, resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig()))

	_, found, err := s.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	val, found, err := s.Get(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), val)
}

func TestTracingPassesThrough(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(ctx)
	defer mem.Close()
	s := WithTracing(mem)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	val, found, err := s.Get(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), val)
	n, err := s.Incr(ctx, "n")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.Del(ctx, "k", "n")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBreakerIgnoresCommandRejections(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               time.Minute,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      1,
	})
	s := WithBreaker(NewRedis(client), cb)

	require.NoError(t, mr.Set("k", "abc"))
	for range 5 {
		_, err := s.Incr(ctx, "k")
		assert.Error(t, err)
	}
	mr.SetError("ERR injected failure")
	for range 5 {
		_, _, err := s.Get(ctx, "k")
		assert.Error(t, err)
	}
	assert.Equal(t, resilience.StateClosed, cb.State())

	mr.SetError("BUSY injected failure")
	for range 2 {
		_, _, err := s.Get(ctx, "k")
		assert.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, cb.State())
}

type slowKeysStore struct {
	Store
}

func (s *slowKeysStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return nil, errors.Wrap(context.DeadlineExceeded, "kv: SCAN")
}

func TestBreakerIgnoresSlowScans(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory(ctx)
	defer mem.Close()
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		MaxFailures:           2,
		Timeout:               time.Minute,
		MaxConcurrentRequests: 1,
		SuccessThreshold:      1,
	})
	s := WithBreaker(&slowKeysStore{Store: mem}, cb)

	for range 5 {
		_, err := s.Keys(ctx, "session:*")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, errors.Is(err, ErrUnavailable))
	}
	assert.Equal(t, resilience.StateClosed, cb.State())

	_, _, err := s.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestTripsBreaker(t *testing.T) {
	assert.False(t, tripsBreaker(nil))
	assert.False(t, tripsBreaker(errors.Wrap(context.Canceled, "kv: GET")))
	assert.False(t, tripsBreaker(ErrNotInteger))
	assert.True(t, tripsBreaker(errors.Wrap(context.DeadlineExceeded, "kv: GET")))
	assert.False(t, scanTripsBreaker(errors.Wrap(context.DeadlineExceeded, "kv: SCAN")))
	assert.True(t, tripsBreaker(errors.New("dial tcp: connection refused")))
}
