package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/observability"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/BradenHooton/gatekeeper/internal/session"
	"github.com/BradenHooton/gatekeeper/pkg/clock"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// AuthServiceInterface defines the login and session operations the handler needs
type AuthServiceInterface interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	Logout(ctx context.Context, sessionID, accountID, ip string)
	LogoutAll(ctx context.Context, accountID, ip string) int
	ExtendSession(ctx context.Context, sessionID string, d time.Duration) (*session.Session, error)
	ListSessions(ctx context.Context, accountID string) []*session.Session
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	cookie   auth.CookieConfig
	clock    clock.Clock
	logger   *slog.Logger
}

func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, cookie auth.CookieConfig, clk clock.Clock, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		cookie:   cookie,
		clock:    clk,
		logger:   logger,
	}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req, false) || !validOrReject(w, req) {
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		ClientIP:  pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	setRateLimitHeaders(w, result.RateLimit)
	auth.SetSessionCookie(w, result.Session.ID, result.Session.ExpiresAt, h.clock.Now(), h.cookie)
	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		Success:   true,
		User:      toUserResponse(result.User),
		SessionID: result.Session.ID,
		Session:   toSessionResponse(result.Session, h.clock.Now()),
	})
}

func (h *AuthHandler) writeLoginError(w http.ResponseWriter, err error) {
	var (
		limited *models.RateLimitError
		locked  *models.LockedError
		failure *models.AuthFailure
	)

	switch {
	case errors.As(err, &limited):
		setRateLimitHeaders(w, limited.Info)
		pkghttp.SetRetryAfter(w, limited.RetryAfter)
		seconds := pkghttp.RetryAfterSeconds(limited.RetryAfter)
		pkghttp.WriteJSON(w, http.StatusTooManyRequests, RateLimitedResponse{
			Success:    false,
			Error:      "rate_limit_exceeded",
			Message:    fmt.Sprintf("Too many login attempts from this address. Try again in %s.", humanize(limited.RetryAfter)),
			RetryAfter: seconds,
		})

	case errors.As(err, &locked):
		setRateLimitHeaders(w, locked.RateLimit)
		pkghttp.WriteJSON(w, http.StatusLocked, lockedResponse(locked))

	case errors.As(err, &failure):
		setRateLimitHeaders(w, failure.RateLimit)
		resp := InvalidCredentialsResponse{
			Success:   false,
			Error:     "invalid_credentials",
			Message:   "Invalid email or password.",
			RateLimit: toRateLimitResponse(failure.RateLimit),
		}
		if failure.Known {
			resp.FailedAttempts = &failure.FailedAttempts
			resp.RemainingAttempts = &failure.RemainingAttempts
			resp.MaxAttempts = &failure.MaxAttempts
			resp.Message = fmt.Sprintf("Invalid email or password. %d attempt(s) remaining before the account is locked.", failure.RemainingAttempts)
		}
		pkghttp.WriteJSON(w, http.StatusUnauthorized, resp)

	case errors.Is(err, models.ErrValidation):
		pkghttp.WriteBadRequest(w, "Email and password are required")

	case errors.Is(err, models.ErrAccountSuspended), errors.Is(err, models.ErrAccountDisabled):
		pkghttp.WriteForbidden(w, "This account is not active. Contact an administrator.")

	default:
		h.logger.Error("login failed", slog.Any("error", err))
		observability.CaptureError(err, "login")
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func lockedResponse(e *models.LockedError) LockedResponse {
	resp := LockedResponse{
		Success:        false,
		Error:          "account_locked",
		Locked:         true,
		FailedAttempts: e.FailedAttempts,
		MaxAttempts:    e.MaxAttempts,
		RateLimit:      toRateLimitResponse(e.RateLimit),
	}

	if e.Lock.Kind == models.LockedPermanently {
		resp.Permanent = true
		resp.Message = "This account has been locked. Contact an administrator to restore access."
		return resp
	}

	until := e.Lock.Until
	secs := pkghttp.RetryAfterSeconds(e.Remaining())
	mins := (secs + 59) / 60
	resp.LockedUntil = &until
	resp.SecondsRemaining = &secs
	resp.MinutesRemaining = &mins
	resp.Message = fmt.Sprintf("Too many failed attempts. The account is locked for %d more minute(s).", mins)
	return resp
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.GetPrincipal(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if p.Session != nil {
		h.service.Logout(r.Context(), p.Session.ID, p.User.ID, pkghttp.ExtractClientIP(r, h.ipConfig))
	}
	auth.ClearSessionCookie(w, h.cookie)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logged out",
	})
}

// LogoutAll handles POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.GetPrincipal(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	n := h.service.LogoutAll(r.Context(), p.User.ID, pkghttp.ExtractClientIP(r, h.ipConfig))
	auth.ClearSessionCookie(w, h.cookie)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"sessionsEnded": n,
	})
}

// Session handles GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.GetPrincipal(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var sess *SessionResponse
	if p.Session != nil {
		s := toSessionResponse(p.Session, h.clock.Now())
		sess = &s
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    toUserResponse(p.User),
		"session": sess,
	})
}

// ExtendSession handles POST /api/auth/session/extend. An empty body extends
// by the default session lifetime.
func (h *AuthHandler) ExtendSession(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.GetPrincipal(r)
	if !ok || p.Session == nil {
		pkghttp.WriteUnauthorized(w, "A session is required")
		return
	}

	var req ExtendRequest
	if !decodeJSON(w, r, &req, true) || !validOrReject(w, req) {
		return
	}

	sess, err := h.service.ExtendSession(r.Context(), p.Session.ID, time.Duration(req.Hours)*time.Hour)
	if err != nil {
		if errors.Is(err, models.ErrSessionInvalid) {
			pkghttp.WriteUnauthorized(w, "Invalid or expired session")
			return
		}
		h.logger.Error("failed to extend session", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetSessionCookie(w, sess.ID, sess.ExpiresAt, h.clock.Now(), h.cookie)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": toSessionResponse(sess, h.clock.Now()),
	})
}

// Sessions handles GET /api/auth/sessions
func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.GetPrincipal(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	now := h.clock.Now()
	list := h.service.ListSessions(r.Context(), p.User.ID)
	out := make([]SessionResponse, 0, len(list))
	for _, s := range list {
		resp := toSessionResponse(s, now)
		resp.Current = p.Session != nil && s.ID == p.Session.ID
		out = append(out, resp)
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"sessions": out,
	})
}

func setRateLimitHeaders(w http.ResponseWriter, info models.RateLimitInfo) {
	pkghttp.SetRateLimit(w, info.Limit, info.Remaining, info.ResetAt)
}

func humanize(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%d second(s)", int64((d+time.Second-1)/time.Second))
	}
	return fmt.Sprintf("%d minute(s)", int64((d+time.Minute-1)/time.Minute))
}
