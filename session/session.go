// Package session keeps login sessions in the shared store.
//
// A session id is "<userID>:<creation unix millis>:<nonce>" and the record
// lives at "session:<id>", so all sessions of one user can be found with a
// prefix scan. Invalidation is soft: the record is kept, marked inactive,
// and re-written with a short retention TTL so it can still be inspected
// for a while after logout.
package session

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/codec"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/token"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTTL is how long an active session lives without a heartbeat.
	DefaultTTL = 7 * 24 * time.Hour
	// DefaultRetention is how long an invalidated session is kept.
	DefaultRetention = 24 * time.Hour

	defaultPrefix      = "session"
	defaultConcurrency = 8
)

// ErrInvalidUserID is returned by Create for an empty user id.
var ErrInvalidUserID = errors.New("session: user id is required")

// DeviceInfo describes the client a session was created from.
type DeviceInfo struct {
	UserAgent string `json:"userAgent"`
	IP        string `json:"ip"`
}

// Session is the stored record.
type Session struct {
	ID         string     `json:"sessionId"`
	UserID     string     `json:"userId"`
	Device     DeviceInfo `json:"deviceInfo"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastActive time.Time  `json:"lastActive"`
	IsActive   bool       `json:"isActive"`
}

// Store manages sessions on a kv.Store.
type Store struct {
	store       kv.Store
	log         logger.Logger
	codec       codec.Serializer[Session]
	prefix      string
	ttl         time.Duration
	retention   time.Duration
	concurrency int
	now         func() time.Time
}

type Option func(*Store)

// WithTTL sets the lifetime of an active session. Defaults to DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithRetention sets how long an invalidated session is kept. Defaults to
// DefaultRetention.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// WithPrefix sets the key prefix. Defaults to "session".
func WithPrefix(p string) Option {
	return func(s *Store) { s.prefix = p }
}

// WithConcurrency bounds how many sessions InvalidateAll updates at once.
func WithConcurrency(n int) Option {
	return func(s *Store) { s.concurrency = max(n, 1) }
}

func New(store kv.Store, log logger.Logger, opts ...Option) *Store {
	s := &Store{
		store:       store,
		log:         log.WithPrefix("[session]"),
		codec:       codec.JSON[Session](),
		prefix:      defaultPrefix,
		ttl:         DefaultTTL,
		retention:   DefaultRetention,
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

func (s *Store) userPattern(userID string) string {
	return s.prefix + ":" + kv.EscapeGlob(userID) + ":*"
}

func newID(userID string, created time.Time) (string, error) {
	nonce, err := token.Nonce()
	if err != nil {
		return "", err
	}
	return userID + ":" + strconv.FormatInt(created.UnixMilli(), 10) + ":" + nonce, nil
}

func (s *Store) load(ctx context.Context, key string) (Session, bool, error) {
	data, found, err := s.store.Get(ctx, key)
	if err != nil || !found {
		return Session{}, false, err
	}
	sess, err := s.codec.Unmarshal(data)
	if err != nil {
		return Session{}, false, errors.Wrapf(err, "session: decoding %s", key)
	}
	return sess, true, nil
}

func (s *Store) save(ctx context.Context, sess Session, ttl time.Duration) error {
	data, err := s.codec.Marshal(sess)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, s.key(sess.ID), data, ttl)
}

// Create starts a new active session for userID and returns its id.
func (s *Store) Create(ctx context.Context, userID string, device DeviceInfo) (string, error) {
	if userID == "" {
		return "", ErrInvalidUserID
	}
	now := s.now()
	id, err := newID(userID, now)
	if err != nil {
		return "", errors.Wrap(err, "session: generating id")
	}
	sess := Session{
		ID:         id,
		UserID:     userID,
		Device:     device,
		CreatedAt:  now,
		LastActive: now,
		IsActive:   true,
	}
	if err := s.save(ctx, sess, s.ttl); err != nil {
		return "", errors.Wrap(err, "session: create")
	}
	s.log.Debug("created session for user %s", userID)
	return id, nil
}

// Get returns the session with id, active or not.
func (s *Store) Get(ctx context.Context, id string) (Session, bool, error) {
	sess, found, err := s.load(ctx, s.key(id))
	return sess, found, errors.Wrap(err, "session: get")
}

// ActiveSessions returns every active session owned by userID.
func (s *Store) ActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	keys, err := s.store.Keys(ctx, s.userPattern(userID))
	if err != nil {
		return nil, errors.Wrap(err, "session: listing")
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.store.MGet(ctx, keys...)
	if err != nil {
		return nil, errors.Wrap(err, "session: loading")
	}
	var out []Session
	for i, data := range vals {
		if data == nil {
			// expired between SCAN and MGET
			continue
		}
		sess, err := s.codec.Unmarshal(data)
		if err != nil {
			s.log.Warn("skipping unreadable session %s: %s", keys[i], err)
			continue
		}
		// a user id containing ':' can share a prefix with another user's
		if sess.IsActive && sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}

// Invalidate marks a session inactive and shortens its lifetime to the
// retention TTL. It reports false if the session does not exist. A session
// that is already inactive is left as is.
func (s *Store) Invalidate(ctx context.Context, id string) (bool, error) {
	ok, err := s.invalidate(ctx, s.key(id), "")
	return ok, errors.Wrap(err, "session: invalidate")
}

func (s *Store) invalidate(ctx context.Context, key, userID string) (bool, error) {
	sess, found, err := s.load(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if userID != "" && sess.UserID != userID {
		return false, nil
	}
	if !sess.IsActive {
		return true, nil
	}
	sess.IsActive = false
	if err := s.save(ctx, sess, s.retention); err != nil {
		return false, err
	}
	return true, nil
}

// InvalidateAll invalidates every session owned by userID and returns how
// many sessions were found, including ones that were already inactive.
func (s *Store) InvalidateAll(ctx context.Context, userID string) (int, error) {
	keys, err := s.store.Keys(ctx, s.userPattern(userID))
	if err != nil {
		return 0, errors.Wrap(err, "session: listing")
	}
	var n atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, key := range keys {
		g.Go(func() error {
			ok, err := s.invalidate(gctx, key, userID)
			if err != nil {
				return errors.Wrapf(err, "session: invalidating %s", strings.TrimPrefix(key, s.prefix+":"))
			}
			if ok {
				n.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(n.Load()), err
	}
	s.log.Info("invalidated %d session(s) for user %s", n.Load(), userID)
	return int(n.Load()), nil
}

// UpdateActivity records a heartbeat: LastActive is set to now and the
// session gets its full TTL again. Inactive or missing sessions report false.
func (s *Store) UpdateActivity(ctx context.Context, id string) (bool, error) {
	sess, found, err := s.load(ctx, s.key(id))
	if err != nil {
		return false, errors.Wrap(err, "session: update activity")
	}
	if !found || !sess.IsActive {
		return false, nil
	}
	sess.LastActive = s.now()
	if err := s.save(ctx, sess, s.ttl); err != nil {
		return false, errors.Wrap(err, "session: update activity")
	}
	return true, nil
}

// Validate reports whether id names an active session. Store failures
// count as invalid.
func (s *Store) Validate(ctx context.Context, id string) bool {
	sess, found, err := s.load(ctx, s.key(id))
	if err != nil {
		s.log.Error("validate failed, rejecting: %s", err)
		return false
	}
	return found && sess.IsActive
}
