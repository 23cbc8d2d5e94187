package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/background"
	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/BradenHooton/gatekeeper/internal/handlers"
	middlewareCustom "github.com/BradenHooton/gatekeeper/internal/middleware"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/observability"
	"github.com/BradenHooton/gatekeeper/internal/ratelimit"
	"github.com/BradenHooton/gatekeeper/internal/repositories"
	"github.com/BradenHooton/gatekeeper/internal/routes"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/BradenHooton/gatekeeper/internal/session"
	"github.com/BradenHooton/gatekeeper/pkg/clock"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	if err := observability.InitSentry(cfg.Observability.SentryDSN, cfg.Server.Env, cfg.Observability.SentrySampleRate); err != nil {
		logger.Warn("sentry disabled", slog.Any("error", err))
	}
	defer observability.FlushSentry()

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	clk := clock.Real{}
	auditLogger := pkglogger.NewAuditLogger(logger, clk)
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)

	// In-process state
	sessions := session.NewStore(session.Config{
		TTL:           cfg.Session.TTL,
		MaxPerAccount: cfg.Session.MaxPerAccount,
	}, clk, logger)
	limiter := ratelimit.New(clk)

	// Initialize services
	lockoutService := services.NewLockoutService(lockoutRepo, services.LockoutPolicy{
		MaxAttempts:    cfg.Lockout.MaxAttempts,
		Duration:       cfg.Lockout.Duration,
		PermanentAfter: cfg.Lockout.PermanentAfter,
	}, clk, logger, auditLogger)

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		Min: cfg.Lockout.FailureDelayMin,
		Max: cfg.Lockout.FailureDelayMax,
	})

	authService := services.NewAuthService(services.AuthDeps{
		Users:      userRepo,
		Lockout:    lockoutService,
		Sessions:   sessions,
		Limiter:    limiter,
		Attempts:   loginAttemptRepo,
		Limit:      services.LoginLimit{Max: cfg.RateLimit.LoginMax, Window: cfg.RateLimit.LoginWindow},
		Timing:     timingDelay,
		AttemptTTL: cfg.Session.AttemptLogTTL,
		Clock:      clk,
		Logger:     logger,
		Audit:      auditLogger,
	})
	adminService := services.NewAdminService(userRepo, lockoutService, sessions, limiter, loginAttemptRepo, clk, logger, auditLogger)
	userService := services.NewUserService(userRepo, logger)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userService, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, ipConfig, auth.CookieConfig{Secure: cfg.Session.CookieSecure}, clk, logger)
	adminHandler := handlers.NewAdminHandler(adminService, logger)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(observability.Recoverer(logger))
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, routes.Deps{
		Auth:          authHandler,
		Admin:         adminHandler,
		Authenticator: authService,
		LegacyUserID:  cfg.Server.LegacyUserIDAuth,
		APIRateLimit:  middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.RateLimit.APIPerMinute, IP: ipConfig},
		Logger:        logger,
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
			"status":         "healthy",
			"database":       "up",
			"pool":           db.Stats(),
			"activeSessions": sessions.Stats().Active,
		})
	})

	// Background sweepers
	var sweepers background.Group
	sweepers.Add(background.NewCleanupManager("sessions", sessions.Sweep, logger, cfg.Session.CleanupInterval))
	sweepers.Add(background.NewCleanupManager("rate_limit_windows", limiter.Sweep, logger, cfg.RateLimit.CleanupInterval))
	sweepers.Add(background.NewCleanupManager("login_attempts", func(ctx context.Context) (int64, error) {
		return loginAttemptRepo.DeleteExpiredAttempts(ctx, clk.Now())
	}, logger, cfg.Session.AttemptLogInterval))

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweepers.Start(sweepCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	sweepers.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, users *services.UserService, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := users.CreateUser(ctx, adminEmail, "Admin", models.RoleAdmin, adminPassword)
	if errors.Is(err, models.ErrConflict) {
		logger.Info("admin user already exists")
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("admin user created successfully")
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
