package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/pkg/clock"
)

const (
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventLoginLocked    = "login_refused_locked"
	EventLoginThrottled = "login_throttled"
	EventAccountLocked  = "account_locked"
	EventAccountUnlock  = "account_unlocked"
	EventLogout         = "logout"
	EventLogoutAll      = "logout_all"
	EventForcedLogout   = "forced_logout"
	EventRateLimitReset = "rate_limit_reset"
)

// AuditEvent is one login attempt outcome. Email is masked on emission.
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Attrs         []slog.Attr
}

// LockoutEvent is a lock state transition. ActorID is empty when the
// transition came from failed logins rather than an operator.
type LockoutEvent struct {
	EventType   string
	AccountID   string
	ActorID     string
	State       string
	LockedUntil *time.Time
}

// AuditLogger writes "audit" records on the injected slog logger.
// Every record carries audit_type and event_type plus a UTC timestamp.
type AuditLogger struct {
	logger *slog.Logger
	clock  clock.Clock
}

// NewAuditLogger stamps records with clk, or the wall clock when clk is nil
func NewAuditLogger(logger *slog.Logger, clk clock.Clock) *AuditLogger {
	if clk == nil {
		clk = clock.Real{}
	}
	return &AuditLogger{logger: logger, clock: clk}
}

func (al *AuditLogger) emit(ctx context.Context, level slog.Level, auditType, eventType string, attrs []slog.Attr) {
	head := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", al.clock.Now().UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(ctx, level, "audit", append(head, attrs...)...)
}

// optional appends a string attr only when v is set
func optional(attrs []slog.Attr, key, v string) []slog.Attr {
	if v == "" {
		return attrs
	}
	return append(attrs, slog.String(key, v))
}

// LogAuthAttempt records a login outcome. Failures are logged at WARN.
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{slog.Bool("success", event.Success)}
	attrs = optional(attrs, "user_id", event.UserID)
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	attrs = optional(attrs, "ip_address", event.IPAddress)
	attrs = optional(attrs, "user_agent", event.UserAgent)
	attrs = optional(attrs, "failure_reason", event.FailureReason)
	attrs = append(attrs, event.Attrs...)

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.emit(ctx, level, "auth", event.EventType, attrs)
}

func (al *AuditLogger) LogLockout(ctx context.Context, event LockoutEvent) {
	attrs := []slog.Attr{
		slog.String("user_id", event.AccountID),
		slog.String("state", event.State),
	}
	if event.LockedUntil != nil {
		attrs = append(attrs, slog.Time("locked_until", event.LockedUntil.UTC()))
	}
	attrs = optional(attrs, "actor_id", event.ActorID)

	al.emit(ctx, slog.LevelWarn, "lockout", event.EventType, attrs)
}

// LogAccountAction records session and operator actions on an account
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, userID, ipAddress string, attrs ...slog.Attr) {
	all := []slog.Attr{slog.String("user_id", userID)}
	all = optional(all, "ip_address", ipAddress)
	all = append(all, attrs...)

	al.emit(ctx, slog.LevelInfo, "account", eventType, all)
}
