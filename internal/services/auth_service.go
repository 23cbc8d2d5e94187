package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/ratelimit"
	"github.com/BradenHooton/gatekeeper/internal/session"
	pkgauth "github.com/BradenHooton/gatekeeper/pkg/auth"
	"github.com/BradenHooton/gatekeeper/pkg/clock"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

// UserRepository is the read side of the account store used by the login flow
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// LoginAttemptRepository stores the login audit trail
type LoginAttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error)
}

// SessionStore is the subset of session.Store the services depend on
type SessionStore interface {
	Create(accountID string, meta session.Meta) (*session.Session, error)
	Get(id string) (*session.Session, bool)
	Destroy(id string) bool
	DestroyAllFor(accountID string) int
	Extend(id string, d time.Duration) (*session.Session, bool)
	ListFor(accountID string) []*session.Session
	Stats() session.Stats
	TTL() time.Duration
}

// RateLimiter is the subset of ratelimit.Limiter the services depend on
type RateLimiter interface {
	Check(key string, max int, d time.Duration) ratelimit.Result
	GetInfo(key string, max int, d time.Duration) ratelimit.Result
	Reset(key string) bool
}

// LoginLimit is the IP quota applied to the login route
type LoginLimit struct {
	Max    int
	Window time.Duration
}

// LoginRequest carries one login attempt
type LoginRequest struct {
	Email     string
	Password  string
	ClientIP  string
	UserAgent string
}

// LoginResult is returned on successful authentication
type LoginResult struct {
	User      *models.User
	Session   *session.Session
	RateLimit models.RateLimitInfo
}

// AuthService handles the login flow and session lifecycle
type AuthService struct {
	users      UserRepository
	lockout    *LockoutService
	sessions   SessionStore
	limiter    RateLimiter
	attempts   LoginAttemptRepository
	limit      LoginLimit
	timing     *auth.TimingDelay
	attemptTTL time.Duration
	clock      clock.Clock
	logger     *slog.Logger
	audit      *pkglogger.AuditLogger
}

// AuthDeps groups the collaborators of AuthService
type AuthDeps struct {
	Users      UserRepository
	Lockout    *LockoutService
	Sessions   SessionStore
	Limiter    RateLimiter
	Attempts   LoginAttemptRepository // optional
	Limit      LoginLimit
	Timing     *auth.TimingDelay // optional
	AttemptTTL time.Duration
	Clock      clock.Clock
	Logger     *slog.Logger
	Audit      *pkglogger.AuditLogger
}

func NewAuthService(d AuthDeps) *AuthService {
	if d.AttemptTTL <= 0 {
		d.AttemptTTL = 30 * 24 * time.Hour
	}
	return &AuthService{
		users:      d.Users,
		lockout:    d.Lockout,
		sessions:   d.Sessions,
		limiter:    d.Limiter,
		attempts:   d.Attempts,
		limit:      d.Limit,
		timing:     d.Timing,
		attemptTTL: d.AttemptTTL,
		clock:      d.Clock,
		logger:     d.Logger,
		audit:      d.Audit,
	}
}

// Login authenticates an email/password pair.
//
// The IP quota is checked first, then the account's lockout state, then the
// password. Errors are *models.RateLimitError, *models.LockedError,
// *models.AuthFailure, or wrap ErrAccountDisabled / ErrAccountSuspended /
// ErrInternalServer.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	started := time.Now()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, models.ErrValidation
	}

	key := ratelimit.LoginKey(req.ClientIP)
	rl := s.limiter.Check(key, s.limit.Max, s.limit.Window)
	if !rl.Allowed {
		retry := rl.RetryAfter(s.clock.Now())
		s.logger.Warn("login rate limited",
			slog.String("ip_address", req.ClientIP),
			slog.Duration("retry_after", retry),
		)
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginThrottled,
			Email:         email,
			IPAddress:     req.ClientIP,
			FailureReason: "rate_limited",
		})
		return nil, &models.RateLimitError{Info: toInfo(rl), RetryAfter: retry}
	}
	info := toInfo(rl)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkgauth.VerifyDummy(req.Password)
			s.wait(started)
			s.logger.Info("login failed: unknown account")
			s.record(ctx, req, email, false, models.FailureReasonUnknownAccount)
			s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventLoginFailure,
				Email:         email,
				IPAddress:     req.ClientIP,
				UserAgent:     req.UserAgent,
				FailureReason: models.FailureReasonUnknownAccount,
			})
			return nil, s.shadowFailure(email, info)
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}

	outcome, err := s.lockout.Evaluate(ctx, user.ID, req.ClientIP, func() (bool, error) {
		return pkgauth.VerifyPassword(user.PasswordHash, req.Password)
	})
	if err != nil {
		var locked *models.LockedError
		if errors.As(err, &locked) {
			locked.RateLimit = toInfo(s.limiter.GetInfo(key, s.limit.Max, s.limit.Window))
			s.wait(started)
			s.record(ctx, req, email, false, models.FailureReasonLocked)
			s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventLoginLocked,
				UserID:        user.ID,
				IPAddress:     req.ClientIP,
				FailureReason: models.FailureReasonLocked,
				Attrs:         []slog.Attr{slog.String("lock_state", locked.Lock.Kind.String())},
			})
			return nil, locked
		}
		s.logger.Error("lockout evaluation failed", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}

	maxAttempts := s.lockout.Policy().MaxAttempts

	if !outcome.Authenticated {
		s.wait(started)
		s.record(ctx, req, email, false, models.FailureReasonInvalidPassword)
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginFailure,
			UserID:        user.ID,
			IPAddress:     req.ClientIP,
			UserAgent:     req.UserAgent,
			FailureReason: models.FailureReasonInvalidPassword,
			Attrs: []slog.Attr{
				slog.Int("failed_attempts", outcome.State.FailedAttempts),
				slog.Int("remaining_attempts", outcome.Remaining(maxAttempts)),
			},
		})

		if outcome.NewlyLocked {
			return nil, &models.LockedError{
				Lock:           outcome.State.Lock,
				FailedAttempts: outcome.State.FailedAttempts,
				MaxAttempts:    maxAttempts,
				At:             s.clock.Now(),
				RateLimit:      info,
			}
		}
		return nil, &models.AuthFailure{
			Known:             true,
			FailedAttempts:    outcome.State.FailedAttempts,
			RemainingAttempts: outcome.Remaining(maxAttempts),
			MaxAttempts:       maxAttempts,
			RateLimit:         info,
		}
	}

	if err := validateAccountState(user); err != nil {
		s.logger.Info("login blocked due to account state",
			slog.String("user_id", user.ID),
			slog.String("status", user.Status))
		s.record(ctx, req, email, false, models.FailureReasonAccountInactive)
		return nil, err
	}

	sess, err := s.sessions.Create(user.ID, session.Meta{ClientIP: req.ClientIP, ClientAgent: req.UserAgent})
	if err != nil {
		s.logger.Error("failed to create session", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}

	s.record(ctx, req, email, true, "")
	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLoginSuccess,
		UserID:    user.ID,
		IPAddress: req.ClientIP,
		UserAgent: req.UserAgent,
		Success:   true,
	})

	return &LoginResult{User: user, Session: sess, RateLimit: info}, nil
}

// Authenticate resolves a presented session id to its session and account.
// The account must still exist and be active.
func (s *AuthService) Authenticate(ctx context.Context, sessionID string) (*session.Session, *models.User, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, models.ErrSessionInvalid
	}

	user, err := s.users.GetByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.sessions.DestroyAllFor(sess.AccountID)
			return nil, nil, models.ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}

	if err := validateAccountState(user); err != nil {
		return nil, nil, err
	}
	return sess, user, nil
}

// AuthenticateLegacy accepts a raw account id from clients that predate sessions
func (s *AuthService) AuthenticateLegacy(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionInvalid
		}
		return nil, fmt.Errorf("%w: %v", models.ErrInternalServer, err)
	}
	if err := validateAccountState(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout destroys one session. Unknown ids are not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID, accountID, ip string) {
	if s.sessions.Destroy(sessionID) {
		s.audit.LogAccountAction(ctx, pkglogger.EventLogout, accountID, ip)
	}
}

// LogoutAll destroys every session of the account
func (s *AuthService) LogoutAll(ctx context.Context, accountID, ip string) int {
	n := s.sessions.DestroyAllFor(accountID)
	s.audit.LogAccountAction(ctx, pkglogger.EventLogoutAll, accountID, ip, slog.Int("sessions", n))
	return n
}

// ExtendSession pushes the session expiry out by d, or by the store TTL when d is zero
func (s *AuthService) ExtendSession(ctx context.Context, sessionID string, d time.Duration) (*session.Session, error) {
	if d <= 0 {
		d = s.sessions.TTL()
	}
	sess, ok := s.sessions.Extend(sessionID, d)
	if !ok {
		return nil, models.ErrSessionInvalid
	}
	return sess, nil
}

// ListSessions returns the account's live sessions
func (s *AuthService) ListSessions(ctx context.Context, accountID string) []*session.Session {
	return s.sessions.ListFor(accountID)
}

// shadowFailure counts failures for an email with no account the way the
// lockout service counts them for a real one: the max-th failure and every
// failure after it inside the window answer as a temporary lock.
func (s *AuthService) shadowFailure(email string, info models.RateLimitInfo) error {
	policy := s.lockout.Policy()
	res := s.limiter.Check(ratelimit.ShadowKey(email), policy.MaxAttempts, policy.Duration)
	failed := policy.MaxAttempts - res.Remaining

	if !res.Allowed || failed >= policy.MaxAttempts {
		return &models.LockedError{
			Lock:           models.TemporaryLock(res.ResetAt),
			FailedAttempts: policy.MaxAttempts,
			MaxAttempts:    policy.MaxAttempts,
			At:             s.clock.Now(),
			RateLimit:      info,
		}
	}
	return &models.AuthFailure{
		Known:             true,
		FailedAttempts:    failed,
		RemainingAttempts: res.Remaining,
		MaxAttempts:       policy.MaxAttempts,
		RateLimit:         info,
	}
}

// wait pads a failed login out to the timing delay measured from started
func (s *AuthService) wait(started time.Time) {
	if s.timing != nil {
		s.timing.WaitFrom(started, false)
	}
}

// record writes the audit trail row; failures are logged and swallowed
func (s *AuthService) record(ctx context.Context, req LoginRequest, email string, success bool, reason string) {
	if s.attempts == nil {
		return
	}
	now := s.clock.Now()
	attempt := &models.LoginAttempt{
		Email:       email,
		IPAddress:   req.ClientIP,
		UserAgent:   req.UserAgent,
		AttemptTime: now,
		Success:     success,
		ExpiresAt:   now.Add(s.attemptTTL),
	}
	if reason != "" {
		attempt.FailureReason = &reason
	}
	if err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Warn("failed to record login attempt", slog.Any("error", err))
	}
}

func validateAccountState(user *models.User) error {
	switch user.Status {
	case models.StatusSuspended:
		return models.ErrAccountSuspended
	case models.StatusDisabled:
		return models.ErrAccountDisabled
	default:
		return nil
	}
}

func toInfo(r ratelimit.Result) models.RateLimitInfo {
	return models.RateLimitInfo{Limit: r.Limit, Remaining: r.Remaining, ResetAt: r.ResetAt}
}
