package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/session"
	"github.com/BradenHooton/gatekeeper/pkg/clock"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

// recentFailureWindow bounds the audit-trail count shown with a lockout view
const recentFailureWindow = 24 * time.Hour

// AdminService implements operator actions on lockouts, sessions and rate limits
type AdminService struct {
	users    UserRepository
	lockout  *LockoutService
	sessions SessionStore
	limiter  RateLimiter
	attempts LoginAttemptRepository
	clock    clock.Clock
	logger   *slog.Logger
	audit    *pkglogger.AuditLogger
}

func NewAdminService(users UserRepository, lockout *LockoutService, sessions SessionStore, limiter RateLimiter, attempts LoginAttemptRepository, clk clock.Clock, logger *slog.Logger, audit *pkglogger.AuditLogger) *AdminService {
	return &AdminService{
		users:    users,
		lockout:  lockout,
		sessions: sessions,
		limiter:  limiter,
		attempts: attempts,
		clock:    clk,
		logger:   logger,
		audit:    audit,
	}
}

// UnlockAccount clears the lockout record of the account with this email.
// Devices that mirror the lock must be reset separately.
func (s *AdminService) UnlockAccount(ctx context.Context, actorID, email string) (*models.LockoutView, error) {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}

	st, err := s.lockout.Unlock(ctx, user.ID, actorID)
	if err != nil {
		return nil, s.internal("unlock account", user.ID, err)
	}

	s.logger.Info("account unlocked by admin",
		slog.String("user_id", user.ID),
		slog.String("actor_id", actorID))
	return s.view(ctx, st, user.Email), nil
}

// LockAccount locks the account permanently and ends its sessions
func (s *AdminService) LockAccount(ctx context.Context, actorID, email string) (*models.LockoutView, int, error) {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, 0, err
	}
	if user.ID == actorID {
		return nil, 0, fmt.Errorf("%w: administrators cannot lock their own account", models.ErrBadRequest)
	}

	st, err := s.lockout.LockPermanently(ctx, user.ID, actorID)
	if err != nil {
		return nil, 0, s.internal("lock account", user.ID, err)
	}

	ended := s.sessions.DestroyAllFor(user.ID)
	s.logger.Warn("account permanently locked by admin",
		slog.String("user_id", user.ID),
		slog.String("actor_id", actorID),
		slog.Int("sessions_ended", ended))
	return s.view(ctx, st, user.Email), ended, nil
}

// LockoutStatus reports the effective lockout state of an account
func (s *AdminService) LockoutStatus(ctx context.Context, email string) (*models.LockoutView, error) {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}

	st, err := s.lockout.State(ctx, user.ID)
	if err != nil {
		return nil, s.internal("read lockout state", user.ID, err)
	}
	return s.view(ctx, st, user.Email), nil
}

// ForceLogout ends every session of an account
func (s *AdminService) ForceLogout(ctx context.Context, actorID, accountID string) (int, error) {
	if _, err := s.users.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, models.ErrNotFound
		}
		return 0, s.internal("force logout", accountID, err)
	}

	n := s.sessions.DestroyAllFor(accountID)
	s.audit.LogAccountAction(ctx, pkglogger.EventForcedLogout, accountID, "",
		slog.String("actor_id", actorID),
		slog.Int("sessions", n),
	)
	return n, nil
}

func (s *AdminService) SessionStats() session.Stats {
	return s.sessions.Stats()
}

// ResetRateLimit forgets one limiter window. It reports whether one existed.
func (s *AdminService) ResetRateLimit(ctx context.Context, actorID, key string) bool {
	existed := s.limiter.Reset(key)
	s.audit.LogAccountAction(ctx, pkglogger.EventRateLimitReset, actorID, "",
		slog.String("key", key),
		slog.Bool("existed", existed),
	)
	return existed
}

func (s *AdminService) lookup(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, s.internal("look up account", "", err)
	}
	return user, nil
}

func (s *AdminService) view(ctx context.Context, st *models.LockoutState, email string) *models.LockoutView {
	v := s.lockout.View(st, email)
	if s.attempts != nil {
		n, err := s.attempts.CountFailuresSince(ctx, email, s.clock.Now().Add(-recentFailureWindow))
		if err != nil {
			s.logger.Warn("failed to count recent login failures", slog.Any("error", err))
		} else {
			v.RecentFailures = n
		}
	}
	return v
}

func (s *AdminService) internal(op, userID string, err error) error {
	s.logger.Error("admin operation failed",
		slog.String("operation", op),
		slog.String("user_id", userID),
		slog.Any("error", err))
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNotFound
	}
	return fmt.Errorf("%w: %v", models.ErrInternalServer, err)
}
