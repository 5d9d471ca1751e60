// Package services builds the shared store once and hands it to every
// component that needs it.
package services

import (
	"context"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/apikey"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/cache"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/config"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/logger"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/ratelimit"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/resilience"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/session"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/token"
	"github.com/cockroachdb/errors"
)

// Services holds one instance of every component, all sharing Store.
type Services struct {
	Store    kv.Store
	Breaker  *resilience.CircuitBreaker
	Cache    *cache.Manager
	Limiter  *ratelimit.Limiter
	Sessions *session.Store
	APIKeys  *apikey.Manager

	base kv.Store
}

type options struct {
	store kv.Store
}

type Option func(*options)

// WithStore uses store instead of dialing cfg.RedisURL. The caller keeps
// ownership of store; Close does not close it.
func WithStore(store kv.Store) Option {
	return func(o *options) { o.store = store }
}

// New connects to the store described by cfg and builds every component on
// top of it. The store is wrapped with a circuit breaker, tracing and the
// configured namespace.
func New(ctx context.Context, cfg config.Config, log logger.Logger, opts ...Option) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	svc := &Services{}
	base := o.store
	if base == nil {
		var err error
		base, err = kv.Connect(ctx, cfg.RedisURL,
			kv.WithTimeout(cfg.StoreTimeout),
			kv.WithScanBudget(cfg.ScanBudget),
		)
		if err != nil {
			return nil, errors.Wrap(err, "services: connecting to store")
		}
		svc.base = base
		if masked, err := token.MaskURL(cfg.RedisURL); err == nil {
			log.Info("connected to %s", masked)
		}
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.MaxFailures = cfg.BreakerMaxFailures
	breakerCfg.Timeout = cfg.BreakerTimeout
	svc.Breaker = resilience.NewCircuitBreaker(breakerCfg)

	store := kv.WithTracing(kv.WithBreaker(base, svc.Breaker))
	svc.Store = kv.WithNamespace(store, cfg.Namespace)

	svc.Cache = cache.New(svc.Store, log, cache.WithDefaultTTL(cfg.CacheTTL))
	svc.Limiter = ratelimit.New(svc.Store, log)
	svc.Sessions = session.New(svc.Store, log,
		session.WithTTL(cfg.SessionTTL),
		session.WithRetention(cfg.SessionRetention),
	)
	svc.APIKeys = apikey.New(svc.Store, log, apikey.WithDefaultRateLimit(apikey.RateLimit{
		Requests: cfg.APIKeyRequests,
		Duration: cfg.APIKeyWindow,
	}))
	return svc, nil
}

// Ping checks that the store is reachable.
func (s *Services) Ping(ctx context.Context) error {
	return s.Store.Ping(ctx)
}

// Close releases the store connection if New opened it.
func (s *Services) Close() error {
	if s.base == nil {
		return nil
	}
	return s.base.Close()
}
