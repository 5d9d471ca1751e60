package kv

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jellydator/ttlcache/v3"
)

// ErrNotInteger mirrors the Redis error for INCR on a non-numeric value.
var ErrNotInteger = errors.New("kv: value is not an integer or out of range")

type memoryStore struct {
	ctx    context.Context
	cancel context.CancelFunc
	// mu makes compound commands (INCR, EXPIRE) atomic like they are on Redis.
	mu    sync.Mutex
	items *ttlcache.Cache[string, []byte]
	now   func() time.Time
	wg    sync.WaitGroup
	once  sync.Once
}

var _ Store = (*memoryStore)(nil)

// NewMemory returns an in-process Store with the same command semantics as
// the Redis store. State is local to the process, so it is only suitable for
// tests and single-node development.
func NewMemory(parent context.Context) Store {
	ctx, cancel := context.WithCancel(parent)
	s := &memoryStore{
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		items: ttlcache.New[string, []byte](
			ttlcache.WithDisableTouchOnHit[string, []byte](),
		),
	}
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.items.Start()
	}()
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		s.items.Stop()
	}()
	return s
}

func toTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttlcache.NoTTL
	}
	return ttl
}

// lookup returns the live item under key with its remaining TTL, NoExpiry
// when it has none. Expiry is judged once against s.now, so a returned item
// always has time left.
func (s *memoryStore) lookup(key string) (*ttlcache.Item[string, []byte], time.Duration) {
	item := s.items.Get(key)
	if item == nil {
		return nil, Missing
	}
	return s.check(item)
}

func (s *memoryStore) check(item *ttlcache.Item[string, []byte]) (*ttlcache.Item[string, []byte], time.Duration) {
	exp := item.ExpiresAt()
	if exp.IsZero() {
		return item, NoExpiry
	}
	left := exp.Sub(s.now())
	if left <= 0 {
		return nil, Missing
	}
	return item, left
}

func (s *memoryStore) live(key string) *ttlcache.Item[string, []byte] {
	item, _ := s.lookup(key)
	return item
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	item := s.live(key)
	if item == nil {
		return nil, false, nil
	}
	return append([]byte(nil), item.Value()...), true, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items.Set(key, append([]byte(nil), val...), toTTL(ttl))
	return nil
}

func (s *memoryStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, k := range keys {
		if s.live(k) != nil {
			n++
		}
		s.items.Delete(k)
	}
	return n, nil
}

func (s *memoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	re, err := globToRegexp(pattern)
	if err != nil {
		return nil, err
	}
	var keys []string
	for k, item := range s.items.Items() {
		if live, _ := s.check(item); live != nil && re.MatchString(k) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *memoryStore) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	item, ttl := s.lookup(key)
	if item != nil {
		v, err := strconv.ParseInt(string(item.Value()), 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		n = v
	}
	n++
	s.items.Set(key, []byte(strconv.FormatInt(n, 10)), toTTL(ttl))
	return n, nil
}

func (s *memoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.live(key)
	if item == nil {
		return false, nil
	}
	if ttl <= 0 {
		s.items.Delete(key)
		return true, nil
	}
	s.items.Set(key, item.Value(), ttl)
	return true, nil
}

func (s *memoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, ttl := s.lookup(key)
	return ttl, nil
}

func (s *memoryStore) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if item := s.live(k); item != nil {
			out[i] = append([]byte(nil), item.Value()...)
		}
	}
	return out, nil
}

func (s *memoryStore) Pipeline(ctx context.Context, ops ...Op) error {
	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpSet:
			err = s.Set(ctx, op.Key, op.Value, op.TTL)
		case OpDel:
			_, err = s.Del(ctx, op.Key)
		case OpExpire:
			_, err = s.Expire(ctx, op.Key, op.TTL)
		default:
			err = errors.Newf("kv: unsupported pipeline op %s", op.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	if s.ctx.Err() != nil {
		return ErrUnavailable
	}
	return ctx.Err()
}

func (s *memoryStore) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

// globToRegexp translates a Redis glob (*, ?, [...], backslash escapes)
// into an anchored regular expression.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteString(regexp.QuoteMeta(string(pattern[i])))
			} else {
				b.WriteString(`\\`)
			}
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "^") {
				class = "^" + strings.ReplaceAll(class[1:], `\`, `\\`)
			} else {
				class = strings.ReplaceAll(class, `\`, `\\`)
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	return re, errors.Wrap(err, "kv: invalid pattern")
}
