package auth

import (
	"net/http"
	"strings"
	"time"

	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// CookieConfig shapes the session cookie. An empty Domain scopes it to the
// current host. SameSite accepts "strict", "lax" or "none" and defaults to lax.
type CookieConfig struct {
	Domain   string
	Secure   bool
	SameSite string
}

func (c CookieConfig) sameSite() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c CookieConfig) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     pkghttp.SessionCookie,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure || c.sameSite() == http.SameSiteNoneMode,
		SameSite: c.sameSite(),
	}
}

// SetSessionCookie writes the session id in an HttpOnly cookie that lives
// exactly as long as the session does when measured from now
func SetSessionCookie(w http.ResponseWriter, sessionID string, expiresAt, now time.Time, config CookieConfig) {
	maxAge := int(expiresAt.Sub(now) / time.Second)
	if maxAge < 1 {
		maxAge = 1
	}
	c := config.cookie(sessionID, maxAge)
	c.Expires = expiresAt.UTC()
	http.SetCookie(w, c)
}

func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, config.cookie("", -1))
}
