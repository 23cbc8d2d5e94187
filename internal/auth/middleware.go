package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/session"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the authenticated caller. Session is nil when the request was
// authenticated through the legacy user id fallback.
type Principal struct {
	User    *models.User
	Session *session.Session
}

// SessionAuthenticator resolves credentials presented on a request
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, sessionID string) (*session.Session, *models.User, error)
	AuthenticateLegacy(ctx context.Context, userID string) (*models.User, error)
}

// RequireSession rejects requests without a valid session. When legacy is
// true and no session id is presented, a raw user id is accepted instead.
func RequireSession(authn SessionAuthenticator, legacy bool, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var p Principal

			if sid := pkghttp.ExtractSessionID(r); sid != "" {
				sess, user, err := authn.Authenticate(r.Context(), sid)
				if err != nil {
					writeAuthError(w, logger, err)
					return
				}
				p = Principal{User: user, Session: sess}
			} else if uid := pkghttp.ExtractLegacyUserID(r); legacy && uid != "" {
				user, err := authn.AuthenticateLegacy(r.Context(), uid)
				if err != nil {
					writeAuthError(w, logger, err)
					return
				}
				logger.Warn("request authenticated by legacy user id", slog.String("user_id", user.ID))
				p = Principal{User: user}
			} else {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole must run after RequireSession
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := GetPrincipal(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}
			if p.User.Role != role {
				pkghttp.WriteForbidden(w, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// GetPrincipal extracts the caller stored by RequireSession
func GetPrincipal(r *http.Request) (Principal, bool) {
	p, ok := r.Context().Value(principalContextKey).(Principal)
	if !ok || p.User == nil {
		return Principal{}, false
	}
	return p, true
}

func writeAuthError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrSessionInvalid):
		pkghttp.WriteUnauthorized(w, "Invalid or expired session")
	case errors.Is(err, models.ErrAccountSuspended), errors.Is(err, models.ErrAccountDisabled):
		pkghttp.WriteForbidden(w, "Account is not active")
	default:
		logger.Error("session authentication failed", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
