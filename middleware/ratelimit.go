package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/estateauth"
)

// Admitter is the Engine surface the rate-limit gate needs.
type Admitter interface {
	Admit(ctx context.Context, clientID string, class estateauth.RouteClass) (estateauth.AdmitDecision, error)
}

// KeyFunc derives the limiter key for a request.
type KeyFunc func(*http.Request) string

// ByClientIP keys requests by remote address.
func ByClientIP(trustForwarded bool) KeyFunc {
	return func(r *http.Request) string {
		return ClientIP(r, trustForwarded)
	}
}

// ClientIPContext attaches the caller's IP to the request context for the
// Engine's login throttle and audit events.
func ClientIPContext(trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := estateauth.WithClientIP(r.Context(), ClientIP(r, trustForwarded))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimit gates requests through engine.Admit for class. It runs before
// any guard so that unauthenticated floods are counted too. Denials answer
// 429 with Retry-After; an unreachable limiter answers 503.
func RateLimit(engine Admitter, class estateauth.RouteClass, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ByClientIP(false)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, estateauth.ErrEngineNotReady)
				return
			}
			d, err := engine.Admit(r.Context(), key(r), class)
			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, estateauth.ErrRateLimited):
				WriteRateLimited(w, d.RetryAfter)
			default:
				WriteError(w, err)
			}
		})
	}
}
