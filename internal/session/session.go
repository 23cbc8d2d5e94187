// Package session holds the in-memory session store.
//
// Sessions are volatile: they live in process memory and are lost on restart.
package session

import (
	"strings"
	"time"

	"github.com/mssola/useragent"
)

// Session is a server-issued bearer credential
type Session struct {
	ID             string    `json:"-"`
	AccountID      string    `json:"accountId"`
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ClientIP       string    `json:"clientIp,omitempty"`
	ClientAgent    string    `json:"clientAgent,omitempty"`
	Browser        string    `json:"browser,omitempty"`
	OS             string    `json:"os,omitempty"`
	DeviceType     string    `json:"deviceType,omitempty"`
}

// Meta describes the client a session is issued to
type Meta struct {
	ClientIP    string
	ClientAgent string
	// TTL overrides the store default when positive
	TTL time.Duration
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// device fills Browser, OS and DeviceType from the user agent string
func (s *Session) device() {
	if s.ClientAgent == "" {
		return
	}

	parsed := useragent.New(s.ClientAgent)
	browser, version := parsed.Browser()
	if version != "" {
		browser = browser + " " + version
	}
	s.Browser = browser

	osInfo := parsed.OSInfo()
	s.OS = strings.TrimSpace(osInfo.Name + " " + osInfo.Version)

	switch {
	case parsed.Bot():
		s.DeviceType = "bot"
	case parsed.Mobile():
		s.DeviceType = "mobile"
	case strings.Contains(strings.ToLower(s.ClientAgent), "ipad") ||
		strings.Contains(strings.ToLower(s.ClientAgent), "tablet"):
		s.DeviceType = "tablet"
	default:
		s.DeviceType = "desktop"
	}
}
