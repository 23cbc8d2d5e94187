package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds the general API quota
type RateLimitConfig struct {
	RequestsPerMinute int
	IP                *pkghttp.IPConfig
}

// DefaultAPIRateLimit is 100 requests per minute
func DefaultAPIRateLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerMinute: 100}
}

// RateLimitByIP limits requests per client IP. The login route has its own
// fixed-window quota in the service layer; this one guards everything else.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "ip:" + pkghttp.ExtractClientIP(r, config.IP), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitByAccount keys on the authenticated account and falls back to
// the client IP. Must run after auth.RequireSession.
func RateLimitByAccount(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if p, ok := auth.GetPrincipal(r); ok {
				return "account:" + p.User.ID, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, config.IP), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// httprate has already set Retry-After and the X-RateLimit-* headers
func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded", 0)
}
