package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Login flow errors
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRateLimitExceeded  = errors.New("too many requests")
	ErrAccountLocked      = errors.New("account is locked")
	ErrSessionInvalid     = errors.New("session is invalid or expired")

	// Account state errors
	ErrAccountDisabled  = errors.New("account is disabled")
	ErrAccountSuspended = errors.New("account is suspended")
)

// AuthFailure is returned for a verified wrong password on an unlocked account.
// Known is false when the email matched no account; counters are then zero.
type AuthFailure struct {
	// Known is false when no counters are available; the reply then omits them
	Known             bool
	FailedAttempts    int
	RemainingAttempts int
	MaxAttempts       int
	RateLimit         RateLimitInfo
}

func (e *AuthFailure) Error() string {
	if !e.Known {
		return ErrInvalidCredentials.Error()
	}
	return fmt.Sprintf("%s: %d attempt(s) remaining", ErrInvalidCredentials, e.RemainingAttempts)
}

func (e *AuthFailure) Unwrap() error { return ErrInvalidCredentials }

// LockedError carries the lock details of an account that refused evaluation
type LockedError struct {
	Lock           Lock
	FailedAttempts int
	MaxAttempts    int
	At             time.Time // evaluation time, used for remaining-time math
	RateLimit      RateLimitInfo
}

func (e *LockedError) Error() string {
	if e.Lock.Kind == LockedPermanently {
		return ErrAccountLocked.Error() + " permanently"
	}
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Lock.Until.Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// Remaining returns how long the lock still holds; zero for permanent locks
func (e *LockedError) Remaining() time.Duration {
	return e.Lock.Remaining(e.At)
}

// RateLimitError is returned when the IP window for the login route is exhausted
type RateLimitError struct {
	Info       RateLimitInfo
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimitExceeded, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }
