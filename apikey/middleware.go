package apikey

import (
	"context"
	"net/http"

	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/kv"
	"github.com/GrayGhostDev/Midway-Cleaning-app-sub001/ratelimit"
	"github.com/cockroachdb/errors"
)

// Header carries the key secret on incoming requests.
const Header = "X-API-Key"

type contextKeyType struct{}

var contextKey = contextKeyType{}

// FromContext returns the key attached by Middleware.
func FromContext(ctx context.Context) (APIKey, bool) {
	key, ok := ctx.Value(contextKey).(APIKey)
	return key, ok
}

// StatusCode maps an error from this package to an HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ratelimit.ErrLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, kv.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ValidateRequest authenticates r by its X-API-Key header and counts it
// against the key's quota. It fails with ErrUnauthorized when the header is
// missing or the key is invalid, and with ratelimit.ErrLimitExceeded when
// the quota is used up.
func (m *Manager) ValidateRequest(r *http.Request) (APIKey, error) {
	key, _, err := m.validateRequest(r)
	return key, err
}

func (m *Manager) validateRequest(r *http.Request) (APIKey, ratelimit.Decision, error) {
	secret := r.Header.Get(Header)
	if secret == "" {
		return APIKey{}, ratelimit.Decision{}, errors.Wrap(ErrUnauthorized, "missing "+Header+" header")
	}
	key, err := m.Validate(r.Context(), secret)
	if err != nil {
		return APIKey{}, ratelimit.Decision{}, err
	}
	d, err := m.allow(r.Context(), key)
	if err != nil {
		return APIKey{}, ratelimit.Decision{}, err
	}
	if !d.Allowed {
		return APIKey{}, d, ratelimit.ErrLimitExceeded
	}
	return key, d, nil
}

// Middleware rejects requests without a valid key (401) or over quota
// (429, with Retry-After) and passes the rest to next with the key in the
// request context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, d, err := m.validateRequest(r)
		if d.Limit > 0 {
			ratelimit.WriteHeaders(w, d)
		}
		if err != nil {
			code := StatusCode(err)
			if code >= http.StatusInternalServerError {
				m.log.Error("rejecting request: %s", err)
			}
			http.Error(w, http.StatusText(code), code)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey, key)))
	})
}
