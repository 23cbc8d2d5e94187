package http

import (
	"net"
	"net/http"
	"strings"
)

// Names under which a session id may be presented
const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "sessionId"
	SessionQuery  = "sessionId"

	LegacyUserIDHeader = "User-Id"
	LegacyUserIDQuery  = "userId"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP returns the client address used to key rate-limit windows.
// Forwarding headers are honoured only when the peer is a trusted proxy.
// X-Forwarded-For is read right to left and the first hop outside
// TrustedProxies wins; entries left of it were written by the client.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := remoteAddrIP(r)

	if config == nil || !inCIDRs(remoteIP, config.TrustedProxies) {
		return remoteIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			if !inCIDRs(hop, config.TrustedProxies) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}

	return remoteIP
}

// ExtractSessionID returns the presented session id, checking the
// X-Session-ID header, then the sessionId cookie, then the sessionId query
// parameter. It returns "" when none is present.
func ExtractSessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.URL.Query().Get(SessionQuery))
}

// ExtractLegacyUserID returns a raw account id sent by older clients
func ExtractLegacyUserID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(LegacyUserIDHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get(LegacyUserIDQuery))
}

func remoteAddrIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func inCIDRs(ip string, cidrs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range cidrs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(parsed) {
			return true
		}
	}
	return false
}
