package client

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNetwork covers transport failures and timeouts. The mirror is left untouched.
	ErrNetwork = errors.New("network error")
	// ErrServer is any 5xx response
	ErrServer = errors.New("server error")
	// ErrInProgress means another login for the same identifier is in flight
	ErrInProgress = errors.New("login already in progress")
)

// LockedError is returned for a 423 response or when the local mirror refuses
// the attempt. LockedUntil is nil for permanent locks.
type LockedError struct {
	LockedUntil *time.Time
	Permanent   bool
	Local       bool // refused from the cache without contacting the server
	Message     string
}

func (e *LockedError) Error() string {
	if e.Permanent {
		return "account locked permanently"
	}
	if e.LockedUntil != nil {
		return fmt.Sprintf("account locked until %s", e.LockedUntil.Format(time.RFC3339))
	}
	return "account locked"
}

// RateLimitedError is returned for a 429 response
type RateLimitedError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// InvalidCredentialsError is returned for a 401 response. Remaining is the
// server's count when it sent one, otherwise the mirror's local estimate.
type InvalidCredentialsError struct {
	Remaining int
	Message   string
}

func (e *InvalidCredentialsError) Error() string {
	return fmt.Sprintf("invalid credentials, %d attempt(s) remaining", e.Remaining)
}

// APIError is any other non-2xx response
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}
