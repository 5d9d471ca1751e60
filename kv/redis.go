package kv

import (
	"context"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/resilience"
	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

// DefaultTimeout bounds every store call that does not carry a tighter
// deadline of its own.
const DefaultTimeout = 250 * time.Millisecond

// DefaultScanBudget bounds a whole Keys walk. Each SCAN round trip is still
// bounded by the per-call timeout.
const DefaultScanBudget = 5 * time.Second

const defaultScanCount = 100

type config struct {
	timeout    time.Duration
	scanCount  int64
	scanBudget time.Duration
	retry      resilience.RetryConfig
}

// Option configures the Redis store.
type Option func(*config)

// WithTimeout sets the per-call timeout. Defaults to DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithScanCount sets the COUNT hint used when Keys walks the keyspace.
func WithScanCount(n int64) Option {
	return func(c *config) { c.scanCount = n }
}

// WithScanBudget sets the total time Keys may spend walking the keyspace.
// Defaults to DefaultScanBudget.
func WithScanBudget(d time.Duration) Option {
	return func(c *config) { c.scanBudget = d }
}

// WithRetry sets the policy Connect uses for the initial PING.
func WithRetry(r resilience.RetryConfig) Option {
	return func(c *config) { c.retry = r }
}

func applyOptions(opts []Option) config {
	cfg := config{
		timeout:    DefaultTimeout,
		scanCount:  defaultScanCount,
		scanBudget: DefaultScanBudget,
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type redisStore struct {
	client redis.UniversalClient
	cfg    config
	owned  bool
}

var _ Store = (*redisStore)(nil)

// NewRedis returns a Store backed by an existing client.
// The caller owns the client lifecycle; Close does not close the client.
func NewRedis(client redis.UniversalClient, opts ...Option) Store {
	return &redisStore{client: client, cfg: applyOptions(opts)}
}

// Connect parses a redis:// URL, dials it and waits for a successful PING
// using the configured retry policy. The returned Store owns the client.
func Connect(ctx context.Context, url string, opts ...Option) (Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "kv: invalid redis url")
	}
	cfg := applyOptions(opts)
	client := redis.NewClient(redisOpts)
	s := &redisStore{client: client, cfg: cfg, owned: true}
	if err := resilience.Retry(ctx, cfg.retry, func() error {
		return s.Ping(ctx)
	}); err != nil {
		client.Close()
		return nil, errors.Mark(errors.Wrap(err, "kv: connecting to redis"), ErrUnavailable)
	}
	return s, nil
}

func (s *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.timeout)
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	data, err := s.client.Get(qctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "kv: GET")
	}
	return data, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return errors.Wrap(s.client.Set(qctx, key, val, ttl).Err(), "kv: SET")
}

func (s *redisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	n, err := s.client.Del(qctx, keys...).Result()
	return n, errors.Wrap(err, "kv: DEL")
}

// Keys walks the keyspace with SCAN rather than KEYS so a large keyspace
// never blocks the server. COUNT bounds the slots examined per call, not the
// matches, so a sparse pattern can take many round trips: each one gets the
// per-call timeout and the walk as a whole gets the scan budget. SCAN may
// repeat keys; the result is de-duplicated.
func (s *redisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	walkCtx, cancelWalk := context.WithTimeout(ctx, s.cfg.scanBudget)
	defer cancelWalk()
	seen := make(map[string]struct{})
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.scan(walkCtx, cursor, pattern)
		if err != nil {
			return nil, errors.Wrap(err, "kv: SCAN")
		}
		for _, k := range batch {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *redisStore) scan(ctx context.Context, cursor uint64, pattern string) ([]string, uint64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.Scan(qctx, cursor, pattern, s.cfg.scanCount).Result()
}

func (s *redisStore) Incr(ctx context.Context, key string) (int64, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	n, err := s.client.Incr(qctx, key).Result()
	return n, errors.Wrap(err, "kv: INCR")
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	ok, err := s.client.Expire(qctx, key, ttl).Result()
	return ok, errors.Wrap(err, "kv: EXPIRE")
}

func (s *redisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	d, err := s.client.PTTL(qctx, key).Result()
	if err != nil {
		return 0, errors.Wrap(err, "kv: PTTL")
	}
	switch d {
	case -1, -time.Millisecond:
		return NoExpiry, nil
	case -2, -2 * time.Millisecond:
		return Missing, nil
	}
	return d, nil
}

func (s *redisStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	vals, err := s.client.MGet(qctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "kv: MGET")
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		switch val := v.(type) {
		case string:
			out[i] = []byte(val)
		case []byte:
			out[i] = val
		}
	}
	return out, nil
}

// Pipeline queues every op and sends them in one round trip. Individual
// command failures are collected into a single error.
func (s *redisStore) Pipeline(ctx context.Context, ops ...Op) error {
	if len(ops) == 0 {
		return nil
	}
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	pipe := s.client.Pipeline()
	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			ttl := op.TTL
			if ttl < 0 {
				ttl = 0
			}
			pipe.Set(qctx, op.Key, op.Value, ttl)
		case OpDel:
			pipe.Del(qctx, op.Key)
		case OpExpire:
			pipe.Expire(qctx, op.Key, op.TTL)
		default:
			return errors.Newf("kv: unsupported pipeline op %s", op.Kind)
		}
	}
	cmds, err := pipe.Exec(qctx)
	if err == nil {
		return nil
	}
	var result *multierror.Error
	for _, cmd := range cmds {
		if cerr := cmd.Err(); cerr != nil && cerr != redis.Nil {
			result = multierror.Append(result, errors.Wrapf(cerr, "kv: pipeline %s", cmd.Name()))
		}
	}
	if result == nil {
		return errors.Wrap(err, "kv: pipeline")
	}
	return result.ErrorOrNil()
}

func (s *redisStore) Ping(ctx context.Context) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return errors.Wrap(s.client.Ping(qctx).Err(), "kv: PING")
}

func (s *redisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
