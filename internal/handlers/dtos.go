package handlers

import (
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/session"
)

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// ExtendRequest is the optional body of POST /api/auth/session/extend
type ExtendRequest struct {
	Hours int `json:"hours" validate:"omitempty,min=1,max=720"`
}

// EmailRequest identifies an account for admin lockout operations
type EmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type SessionResponse struct {
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresIn      int64     `json:"expiresIn"` // seconds
	ExpiresInHours float64   `json:"expiresInHours"`
	ClientIP       string    `json:"clientIp,omitempty"`
	Browser        string    `json:"browser,omitempty"`
	OS             string    `json:"os,omitempty"`
	DeviceType     string    `json:"deviceType,omitempty"`
	Current        bool      `json:"current,omitempty"`
}

type LoginResponse struct {
	Success   bool            `json:"success"`
	User      UserResponse    `json:"user"`
	SessionID string          `json:"sessionId"`
	Session   SessionResponse `json:"session"`
}

type RateLimitResponse struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// InvalidCredentialsResponse is the 401 body. The counters are omitted when
// the email does not belong to an account.
type InvalidCredentialsResponse struct {
	Success           bool              `json:"success"`
	Error             string            `json:"error"`
	FailedAttempts    *int              `json:"failedAttempts,omitempty"`
	RemainingAttempts *int              `json:"remainingAttempts,omitempty"`
	MaxAttempts       *int              `json:"maxAttempts,omitempty"`
	Message           string            `json:"message"`
	RateLimit         RateLimitResponse `json:"rateLimit"`
}

// LockedResponse is the 423 body. LockedUntil is null for permanent locks.
type LockedResponse struct {
	Success          bool              `json:"success"`
	Error            string            `json:"error"`
	Locked           bool              `json:"locked"`
	Permanent        bool              `json:"permanent"`
	FailedAttempts   int               `json:"failedAttempts"`
	MaxAttempts      int               `json:"maxAttempts"`
	LockedUntil      *time.Time        `json:"lockedUntil"`
	SecondsRemaining *int64            `json:"secondsRemaining,omitempty"`
	MinutesRemaining *int64            `json:"minutesRemaining,omitempty"`
	Message          string            `json:"message"`
	RateLimit        RateLimitResponse `json:"rateLimit"`
}

type RateLimitedResponse struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter"` // seconds
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

func toSessionResponse(s *session.Session, now time.Time) SessionResponse {
	left := s.ExpiresAt.Sub(now)
	if left < 0 {
		left = 0
	}
	return SessionResponse{
		CreatedAt:      s.CreatedAt,
		ExpiresAt:      s.ExpiresAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresIn:      int64(left / time.Second),
		ExpiresInHours: float64(int64(left.Hours()*100)) / 100,
		ClientIP:       s.ClientIP,
		Browser:        s.Browser,
		OS:             s.OS,
		DeviceType:     s.DeviceType,
	}
}

func toRateLimitResponse(info models.RateLimitInfo) RateLimitResponse {
	return RateLimitResponse{Limit: info.Limit, Remaining: info.Remaining, Reset: info.ResetAt}
}
