package models

import "time"

// Failure reasons recorded on login attempts
const (
	FailureReasonInvalidPassword = "invalid_password"
	FailureReasonUnknownAccount  = "unknown_account"
	FailureReasonLocked          = "account_locked"
	FailureReasonAccountInactive = "account_inactive"
)

// LoginAttempt represents a single evaluated login attempt in the audit trail
type LoginAttempt struct {
	ID            string    `db:"id"`
	Email         string    `db:"email"`
	IPAddress     string    `db:"ip_address"`
	UserAgent     string    `db:"user_agent"`
	AttemptTime   time.Time `db:"attempt_time"`
	Success       bool      `db:"success"`
	FailureReason *string   `db:"failure_reason"`
	ExpiresAt     time.Time `db:"expires_at"`
}
