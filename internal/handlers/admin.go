package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/observability"
	"github.com/BradenHooton/gatekeeper/internal/ratelimit"
	"github.com/BradenHooton/gatekeeper/internal/session"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminServiceInterface defines the operator actions exposed over HTTP
type AdminServiceInterface interface {
	UnlockAccount(ctx context.Context, actorID, email string) (*models.LockoutView, error)
	LockAccount(ctx context.Context, actorID, email string) (*models.LockoutView, int, error)
	LockoutStatus(ctx context.Context, email string) (*models.LockoutView, error)
	ForceLogout(ctx context.Context, actorID, accountID string) (int, error)
	SessionStats() session.Stats
	ResetRateLimit(ctx context.Context, actorID, key string) bool
}

// AdminHandler handles admin HTTP requests. Every route sits behind
// RequireSession and RequireRole(admin).
type AdminHandler struct {
	service AdminServiceInterface
	logger  *slog.Logger
}

func NewAdminHandler(service AdminServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// UnlockAccount handles POST /api/admin/users/lockout/unlock
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.emailRequest(w, r)
	if !ok {
		return
	}

	view, err := h.service.UnlockAccount(r.Context(), actor, req.Email)
	if err != nil {
		h.writeError(w, err, "unlock account")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Account unlocked. Devices that cached the lock must reset their local lockout state.",
		"lockout": view,
	})
}

// LockAccount handles POST /api/admin/users/lockout/lock
func (h *AdminHandler) LockAccount(w http.ResponseWriter, r *http.Request) {
	actor, req, ok := h.emailRequest(w, r)
	if !ok {
		return
	}

	view, ended, err := h.service.LockAccount(r.Context(), actor, req.Email)
	if err != nil {
		h.writeError(w, err, "lock account")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "Account locked permanently",
		"lockout":       view,
		"sessionsEnded": ended,
	})
}

// LockoutStatus handles GET /api/admin/users/lockout?email=
func (h *AdminHandler) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	req := EmailRequest{Email: strings.TrimSpace(r.URL.Query().Get("email"))}
	if !validOrReject(w, req) {
		return
	}

	view, err := h.service.LockoutStatus(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, err, "lockout status")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"lockout": view,
	})
}

// ForceLogout handles DELETE /api/admin/users/{id}/sessions
func (h *AdminHandler) ForceLogout(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.GetPrincipal(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	accountID := chi.URLParam(r, "id")
	if accountID == "" {
		pkghttp.WriteBadRequest(w, "Account id is required")
		return
	}

	n, err := h.service.ForceLogout(r.Context(), p.User.ID, accountID)
	if err != nil {
		h.writeError(w, err, "force logout")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"sessionsEnded": n,
	})
}

// SessionStats handles GET /api/admin/sessions/stats
func (h *AdminHandler) SessionStats(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"stats":   h.service.SessionStats(),
	})
}

// ResetRateLimit handles DELETE /api/admin/ratelimit?key= or ?ip=
func (h *AdminHandler) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.GetPrincipal(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if ip := strings.TrimSpace(r.URL.Query().Get("ip")); key == "" && ip != "" {
		key = ratelimit.LoginKey(ip)
	}
	if key == "" {
		pkghttp.WriteBadRequest(w, "Query parameter key or ip is required")
		return
	}

	existed := h.service.ResetRateLimit(r.Context(), p.User.ID, key)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"key":     key,
		"existed": existed,
	})
}

func (h *AdminHandler) emailRequest(w http.ResponseWriter, r *http.Request) (string, EmailRequest, bool) {
	var req EmailRequest
	p, ok := auth.GetPrincipal(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return "", req, false
	}
	if !decodeJSON(w, r, &req, false) {
		return "", req, false
	}
	req.Email = strings.TrimSpace(req.Email)
	if !validOrReject(w, req) {
		return "", req, false
	}
	return p.User.ID, req, true
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Account not found")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Administrators cannot lock their own account")
	default:
		h.logger.Error("admin request failed", slog.String("operation", op), slog.Any("error", err))
		observability.CaptureError(err, op)
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
