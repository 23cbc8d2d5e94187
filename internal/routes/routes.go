package routes

import (
	"log/slog"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/handlers"
	"github.com/BradenHooton/gatekeeper/internal/middleware"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/go-chi/chi/v5"
)

// Deps holds what RegisterRoutes wires together
type Deps struct {
	Auth          *handlers.AuthHandler
	Admin         *handlers.AdminHandler
	Authenticator auth.SessionAuthenticator
	LegacyUserID  bool
	APIRateLimit  middleware.RateLimitConfig
	Logger        *slog.Logger
}

// RegisterRoutes registers all application routes under /api
func RegisterRoutes(router chi.Router, d Deps) {
	requireSession := auth.RequireSession(d.Authenticator, d.LegacyUserID, d.Logger)

	router.Route("/api", func(r chi.Router) {
		// Login is throttled by the fixed-window limiter inside the auth
		// service so that its quota shows up in the response body.
		r.Post("/auth/login", d.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(d.APIRateLimit))
			r.Use(requireSession)
			r.Use(middleware.RateLimitByAccount(d.APIRateLimit))

			r.Post("/auth/logout", d.Auth.Logout)
			r.Post("/auth/logout-all", d.Auth.LogoutAll)
			r.Get("/auth/session", d.Auth.Session)
			r.Post("/auth/session/extend", d.Auth.ExtendSession)
			r.Get("/auth/sessions", d.Auth.Sessions)

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleAdmin))

				r.Get("/users/lockout", d.Admin.LockoutStatus)
				r.Post("/users/lockout/unlock", d.Admin.UnlockAccount)
				r.Post("/users/lockout/lock", d.Admin.LockAccount)
				r.Delete("/users/{id}/sessions", d.Admin.ForceLogout)
				r.Get("/sessions/stats", d.Admin.SessionStats)
				r.Delete("/ratelimit", d.Admin.ResetRateLimit)
			})
		})
	})
}
