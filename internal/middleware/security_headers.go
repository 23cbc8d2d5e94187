package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// SecurityHeadersConfig controls HSTS. Strict-Transport-Security is only
// sent in production and only over HTTPS. HSTSMaxAge defaults to one year.
type SecurityHeadersConfig struct {
	Env        string
	HSTSMaxAge time.Duration
}

// Every response may carry a session id or lockout state, so nothing is cacheable
var apiHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "no-referrer"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Cache-Control", "no-store"},
	{"Pragma", "no-cache"},
	{"Cross-Origin-Opener-Policy", "same-origin"},
}

func SecurityHeaders(config SecurityHeadersConfig) func(http.Handler) http.Handler {
	maxAge := config.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 365 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains"
	production := config.Env == "production"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range apiHeaders {
				h.Set(kv[0], kv[1])
			}
			if production && isHTTPS(r) {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
