package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		config     *pkghttp.IPConfig
		want       string
	}{
		{
			name:       "direct connection ignores spoofed headers",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4, 5.6.7.8",
			xri:        "192.168.1.1",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "127.0.0.1/32"}},
			want:       "203.0.113.10",
		},
		{
			name:       "trusted proxy yields nearest untrusted hop",
			remoteAddr: "10.0.0.5:54321",
			xff:        "203.0.113.42, 203.0.113.43, 10.0.0.5",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "203.0.113.43",
		},
		{
			name:       "client-written leftmost entry is ignored",
			remoteAddr: "10.0.0.1:54321",
			xff:        "1.1.1.1, 203.0.113.9",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "203.0.113.9",
		},
		{
			name:       "garbage hop stops the walk",
			remoteAddr: "10.0.0.1:54321",
			xff:        "203.0.113.9, not-an-ip",
			xri:        "203.0.113.7",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "203.0.113.7",
		},
		{
			name:       "all hops trusted falls back to the peer",
			remoteAddr: "10.0.0.1:54321",
			xff:        "10.0.0.7, 10.0.0.8",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "10.0.0.1",
		},
		{
			name:       "trusted proxy falls back to X-Real-IP",
			remoteAddr: "10.0.0.5:54321",
			xri:        "203.0.113.7",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "203.0.113.7",
		},
		{
			name:       "ipv6 trusted proxy",
			remoteAddr: "[::1]:54321",
			xff:        "2001:db8::1",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"::1/128"}},
			want:       "2001:db8::1",
		},
		{
			name:       "nil config trusts only the peer",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			want:       "203.0.113.10",
		},
		{
			name:       "invalid cidr ranges are skipped",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"invalid-cidr-range"}},
			want:       "203.0.113.10",
		},
		{
			name:       "localhost claim from untrusted peer",
			remoteAddr: "203.0.113.10:54321",
			xff:        "127.0.0.1, 203.0.113.10",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}},
			want:       "203.0.113.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestExtractSessionID_Precedence(t *testing.T) {
	req := httptest.NewRequest("GET", "/?sessionId=from-query", nil)
	req.Header.Set("X-Session-ID", "from-header")
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: "from-cookie"})
	assert.Equal(t, "from-header", pkghttp.ExtractSessionID(req))

	req = httptest.NewRequest("GET", "/?sessionId=from-query", nil)
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", pkghttp.ExtractSessionID(req))

	req = httptest.NewRequest("GET", "/?sessionId=from-query", nil)
	assert.Equal(t, "from-query", pkghttp.ExtractSessionID(req))

	req = httptest.NewRequest("GET", "/", nil)
	assert.Empty(t, pkghttp.ExtractSessionID(req))
}

func TestExtractLegacyUserID(t *testing.T) {
	req := httptest.NewRequest("GET", "/?userId=u-query", nil)
	req.Header.Set("User-Id", "u-header")
	assert.Equal(t, "u-header", pkghttp.ExtractLegacyUserID(req))

	req = httptest.NewRequest("GET", "/?userId=u-query", nil)
	assert.Equal(t, "u-query", pkghttp.ExtractLegacyUserID(req))
}

func TestExtractClientIP_SpoofedEntriesShareOneBucket(t *testing.T) {
	config := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8"}}

	seen := map[string]bool{}
	for _, spoof := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("X-Forwarded-For", spoof+", 203.0.113.9")
		seen[pkghttp.ExtractClientIP(req, config)] = true
	}

	assert.Equal(t, map[string]bool{"203.0.113.9": true}, seen)
}
