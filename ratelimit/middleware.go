package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc picks the identity a request is counted against.
type KeyFunc func(r *http.Request) string

// ByRemoteIP counts requests per client address.
func ByRemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// Middleware throttles next to limit requests per window for each key.
// Throttling is advisory: when the store is unreachable requests pass.
func (l *Limiter) Middleware(keyFn KeyFunc, limit int64, window time.Duration, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := l.Allow(r.Context(), keyFn(r), limit, window)
		if err != nil {
			l.log.Error("allowing request after limiter failure: %s", err)
			next.ServeHTTP(w, r)
			return
		}
		WriteHeaders(w, d)
		if !d.Allowed {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WriteHeaders sets the conventional X-RateLimit-* headers and, for a denied
// request, Retry-After in whole seconds.
func WriteHeaders(w http.ResponseWriter, d Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	if !d.Allowed {
		secs := int64(math.Ceil(d.ResetAfter.Seconds()))
		h.Set("Retry-After", strconv.FormatInt(max(secs, 1), 10))
	}
}
