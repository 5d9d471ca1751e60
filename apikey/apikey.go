// Package apikey issues and checks the API keys used by service clients.
//
// A key record is stored as JSON at "apikey:key:<secret>", so a lookup is a
// single GET on the presented secret. Keys never change after creation; they
// end by expiring or by being revoked. Each key carries its own quota, which
// is counted in a fixed window at "apikey:usage:<secret>".
package apikey

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/codec"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/ratelimit"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/token"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	// SecretPrefix starts every secret so keys are easy to spot in logs and
	// secret scanners.
	SecretPrefix = "mk_"
	secretLength = 40

	defaultPrefix = "apikey"
)

var (
	// ErrUnauthorized is returned for a missing, unknown, expired or
	// unverifiable key. It maps to HTTP 401.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidName  = errors.New("apikey: name is required")
	ErrInvalidTTL   = errors.New("apikey: expiry must be positive")
)

// RateLimit is the quota attached to a key: Requests per Duration, where
// Duration is a string accepted by ParseWindow.
type RateLimit struct {
	Requests int64  `json:"requests"`
	Duration string `json:"duration"`
}

// DefaultRateLimit is applied to keys created without WithRateLimit.
var DefaultRateLimit = RateLimit{Requests: 1000, Duration: "1h"}

// APIKey is the stored key record.
type APIKey struct {
	ID          string     `json:"id"`
	Secret      string     `json:"secret"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Permissions []string   `json:"permissions"`
	RateLimit   RateLimit  `json:"rateLimit"`
}

// Expired reports whether the key's expiry has passed at now.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// PermissionSet returns the key's permissions as a set.
func (k APIKey) PermissionSet() Permissions {
	return NewPermissions(k.Permissions...)
}

// Manager creates, validates and revokes API keys.
type Manager struct {
	store     kv.Store
	log       logger.Logger
	codec     codec.Serializer[APIKey]
	limiter   *ratelimit.Limiter
	prefix    string
	rateLimit RateLimit
	now       func() time.Time
}

type Option func(*Manager)

// WithPrefix sets the key prefix. Defaults to "apikey".
func WithPrefix(p string) Option {
	return func(m *Manager) { m.prefix = p }
}

// WithDefaultRateLimit sets the quota for keys created without
// WithRateLimit. Defaults to DefaultRateLimit.
func WithDefaultRateLimit(rl RateLimit) Option {
	return func(m *Manager) { m.rateLimit = rl }
}

func New(store kv.Store, log logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		log:       log.WithPrefix("[apikey]"),
		codec:     codec.JSON[APIKey](),
		prefix:    defaultPrefix,
		rateLimit: DefaultRateLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.limiter = ratelimit.New(store, m.log, ratelimit.WithPrefix(m.prefix+":usage"))
	return m
}

func (m *Manager) recordKey(secret string) string {
	return m.prefix + ":key:" + secret
}

func (m *Manager) usageKey(secret string) string {
	return m.prefix + ":usage:" + secret
}

type createOpts struct {
	permissions []string
	expiresIn   time.Duration
	rateLimit   *RateLimit
}

// CreateOption configures a single Create call.
type CreateOption func(*createOpts)

// WithPermissions sets the scopes granted to the key. Defaults to "*".
func WithPermissions(perms ...string) CreateOption {
	return func(o *createOpts) { o.permissions = perms }
}

// WithExpiresIn makes the key expire after d. Keys without it never expire.
func WithExpiresIn(d time.Duration) CreateOption {
	return func(o *createOpts) { o.expiresIn = d }
}

// WithRateLimit sets the key's quota.
func WithRateLimit(requests int64, duration string) CreateOption {
	return func(o *createOpts) { o.rateLimit = &RateLimit{Requests: requests, Duration: duration} }
}

func newSecret() (string, error) {
	s, err := token.RandomString(secretLength)
	if err != nil {
		return "", err
	}
	return SecretPrefix + s, nil
}

// Create issues a new key. The returned record includes the secret, which
// is not recoverable from anywhere else once the caller discards it.
func (m *Manager) Create(ctx context.Context, name string, opts ...CreateOption) (APIKey, error) {
	if strings.TrimSpace(name) == "" {
		return APIKey{}, ErrInvalidName
	}
	o := createOpts{permissions: []string{AnyPermission.String()}}
	for _, opt := range opts {
		opt(&o)
	}
	rl := m.rateLimit
	if o.rateLimit != nil {
		rl = *o.rateLimit
	}
	if rl.Requests <= 0 {
		return APIKey{}, errors.Newf("apikey: rate limit requests must be positive, got %d", rl.Requests)
	}
	if _, err := ParseWindow(rl.Duration); err != nil {
		return APIKey{}, err
	}
	if o.expiresIn < 0 {
		return APIKey{}, ErrInvalidTTL
	}

	secret, err := newSecret()
	if err != nil {
		return APIKey{}, errors.Wrap(err, "apikey: generating secret")
	}
	now := m.now()
	key := APIKey{
		ID:          uuid.NewString(),
		Secret:      secret,
		Name:        name,
		CreatedAt:   now,
		Permissions: slices.Clone(o.permissions),
		RateLimit:   rl,
	}
	if o.expiresIn > 0 {
		exp := now.Add(o.expiresIn)
		key.ExpiresAt = &exp
	}
	data, err := m.codec.Marshal(key)
	if err != nil {
		return APIKey{}, err
	}
	if err := m.store.Set(ctx, m.recordKey(secret), data, o.expiresIn); err != nil {
		return APIKey{}, errors.Wrap(err, "apikey: storing key")
	}
	m.log.With(map[string]interface{}{"id": key.ID}).Info("created key %q", name)
	return key, nil
}

// Validate returns the key for secret. Any failure, including a store
// error, is reported as ErrUnauthorized. An expired key is deleted before
// the error is returned.
func (m *Manager) Validate(ctx context.Context, secret string) (APIKey, error) {
	if secret == "" {
		return APIKey{}, ErrUnauthorized
	}
	data, found, err := m.store.Get(ctx, m.recordKey(secret))
	if err != nil {
		return APIKey{}, errors.Mark(errors.Wrap(err, "apikey: lookup"), ErrUnauthorized)
	}
	if !found {
		return APIKey{}, ErrUnauthorized
	}
	key, err := m.codec.Unmarshal(data)
	if err != nil {
		return APIKey{}, errors.Mark(err, ErrUnauthorized)
	}
	if key.Expired(m.now()) {
		if err := m.Revoke(ctx, secret); err != nil {
			m.log.Warn("failed to remove expired key %s: %s", key.ID, err)
		} else {
			m.log.Debug("removed expired key %s", key.ID)
		}
		return APIKey{}, errors.Wrap(ErrUnauthorized, "key expired")
	}
	return key, nil
}

// Revoke deletes the key and its usage counter. Revoking an unknown key is
// not an error.
func (m *Manager) Revoke(ctx context.Context, secret string) error {
	_, err := m.store.Del(ctx, m.recordKey(secret), m.usageKey(secret))
	return errors.Wrap(err, "apikey: revoke")
}

// CheckRateLimit validates the key and counts one request against its
// quota, reporting whether the request is within it.
func (m *Manager) CheckRateLimit(ctx context.Context, secret string) (bool, error) {
	key, err := m.Validate(ctx, secret)
	if err != nil {
		return false, err
	}
	d, err := m.allow(ctx, key)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

func (m *Manager) allow(ctx context.Context, key APIKey) (ratelimit.Decision, error) {
	window, err := ParseWindow(key.RateLimit.Duration)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	d, err := m.limiter.Allow(ctx, key.Secret, key.RateLimit.Requests, window)
	if err != nil {
		return ratelimit.Decision{}, errors.Mark(errors.Wrap(err, "apikey: counting usage"), kv.ErrUnavailable)
	}
	return d, nil
}

// HasPermission reports whether the key is valid and grants permission.
func (m *Manager) HasPermission(ctx context.Context, secret, permission string) bool {
	key, err := m.Validate(ctx, secret)
	if err != nil {
		return false
	}
	return Permits(key.PermissionSet(), ParsePermission(permission))
}

// List returns every unexpired key ordered by creation time.
func (m *Manager) List(ctx context.Context) ([]APIKey, error) {
	keys, err := m.store.Keys(ctx, m.prefix+":key:*")
	if err != nil {
		return nil, errors.Wrap(err, "apikey: listing")
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := m.store.MGet(ctx, keys...)
	if err != nil {
		return nil, errors.Wrap(err, "apikey: loading")
	}
	now := m.now()
	out := make([]APIKey, 0, len(vals))
	for i, data := range vals {
		if data == nil {
			continue
		}
		key, err := m.codec.Unmarshal(data)
		if err != nil {
			m.log.Warn("skipping unreadable key %s: %s", token.MaskSecret(strings.TrimPrefix(keys[i], m.prefix+":key:")), err)
			continue
		}
		if key.Expired(now) {
			continue
		}
		out = append(out, key)
	}
	slices.SortFunc(out, func(a, b APIKey) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}
