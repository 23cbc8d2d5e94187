// Package client is the device-side login client. It gates attempts on the
// local lockout mirror and reconciles the mirror with every server response.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/mirror"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

const DefaultTimeout = 30 * time.Second

// Mirror is the subset of the lockout mirror the client drives
type Mirror interface {
	CanAttempt(ctx context.Context, identifier string) (bool, *time.Time, error)
	Begin(identifier string) (func(), bool)
	RecordLocalFailure(ctx context.Context, identifier string) (mirror.State, error)
	SyncFromServer(ctx context.Context, identifier string, r mirror.Report) (*mirror.State, error)
	Reset(ctx context.Context, identifier string) error
}

type Client struct {
	baseURL string
	http    *http.Client
	mirror  Mirror
	logger  *slog.Logger
}

// New creates a client for the API at baseURL. A nil httpClient gets the
// default 30 second timeout.
func New(baseURL string, httpClient *http.Client, m Mirror, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		mirror:  m,
		logger:  logger.With("component", "login_client"),
	}
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type SessionInfo struct {
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	ExpiresIn int64     `json:"expiresIn"`
}

// LoginResult is the body of a successful login
type LoginResult struct {
	User      User        `json:"user"`
	SessionID string      `json:"sessionId"`
	Session   SessionInfo `json:"session"`
}

// loginFailure holds every field any non-200 login response may carry
type loginFailure struct {
	Error             string     `json:"error"`
	Message           string     `json:"message"`
	FailedAttempts    *int       `json:"failedAttempts"`
	RemainingAttempts *int       `json:"remainingAttempts"`
	MaxAttempts       *int       `json:"maxAttempts"`
	Locked            bool       `json:"locked"`
	Permanent         bool       `json:"permanent"`
	LockedUntil       *time.Time `json:"lockedUntil"`
	RetryAfter        int64      `json:"retryAfter"`
}

func (f loginFailure) report() mirror.Report {
	return mirror.Report{
		Locked:            f.Locked,
		Permanent:         f.Permanent,
		FailedAttempts:    f.FailedAttempts,
		RemainingAttempts: f.RemainingAttempts,
		MaxAttempts:       f.MaxAttempts,
		LockedUntil:       f.LockedUntil,
	}
}

// Login authenticates against the server. Only a 401 that carries no
// account counters increments the mirror locally; transport errors never do.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	allowed, until, err := c.mirror.CanAttempt(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("client: read lockout mirror: %w", err)
	}
	if !allowed {
		return nil, &LockedError{LockedUntil: until, Permanent: until == nil, Local: true}
	}

	release, ok := c.mirror.Begin(email)
	if !ok {
		return nil, ErrInProgress
	}
	defer release()

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("client: encode login request: %w", err)
	}

	resp, err := c.post(ctx, "/api/auth/login", "", body)
	if err != nil {
		c.logger.Warn("login request failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var result LoginResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("client: decode login response: %w", err)
		}
		if _, err := c.mirror.SyncFromServer(ctx, email, mirror.Report{Success: true}); err != nil {
			return nil, err
		}
		return &result, nil

	case resp.StatusCode >= 500:
		if err := c.revert(ctx, email); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	}

	var failure loginFailure
	if err := json.Unmarshal(raw, &failure); err != nil {
		if err := c.revert(ctx, email); err != nil {
			return nil, err
		}
		return nil, &APIError{Status: resp.StatusCode, Message: string(raw)}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if failure.FailedAttempts != nil || failure.RemainingAttempts != nil {
			if _, err := c.mirror.SyncFromServer(ctx, email, failure.report()); err != nil {
				return nil, err
			}
			return nil, &InvalidCredentialsError{Remaining: derefInt(failure.RemainingAttempts), Message: failure.Message}
		}
		st, err := c.mirror.RecordLocalFailure(ctx, email)
		if err != nil {
			return nil, err
		}
		return nil, &InvalidCredentialsError{Remaining: st.RemainingAttempts, Message: failure.Message}

	case http.StatusLocked:
		failure.Locked = true
		if _, err := c.mirror.SyncFromServer(ctx, email, failure.report()); err != nil {
			return nil, err
		}
		return nil, &LockedError{LockedUntil: failure.LockedUntil, Permanent: failure.Permanent, Message: failure.Message}

	case http.StatusTooManyRequests:
		if err := c.revert(ctx, email); err != nil {
			return nil, err
		}
		return nil, &RateLimitedError{RetryAfter: retryAfter(resp.Header, failure.RetryAfter), Message: failure.Message}

	default:
		if err := c.revert(ctx, email); err != nil {
			return nil, err
		}
		return nil, &APIError{Status: resp.StatusCode, Code: failure.Error, Message: failure.Message}
	}
}

// revert reconciles after a response that carries no account state: the
// mirror falls back to the last server snapshot and drops provisional state.
func (c *Client) revert(ctx context.Context, email string) error {
	_, err := c.mirror.SyncFromServer(ctx, email, mirror.Report{})
	return err
}

// UnlockAccount lifts an account lock with an administrator session and then
// wipes the local mirror for email. The two steps are not atomic: if the reset
// fails the server is already unlocked and the call can simply be repeated.
func (c *Client) UnlockAccount(ctx context.Context, adminSessionID, email string) error {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return fmt.Errorf("client: encode unlock request: %w", err)
	}

	resp, err := c.post(ctx, "/api/admin/users/lockout/unlock", adminSessionID, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		var e pkghttp.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&e)
		return &APIError{Status: resp.StatusCode, Code: e.Error, Message: e.Message}
	}

	if err := c.mirror.Reset(ctx, email); err != nil {
		return fmt.Errorf("client: server unlocked but local reset failed: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, sessionID string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(pkghttp.SessionHeader, sessionID)
	}
	return c.http.Do(req)
}

// retryAfter prefers the Retry-After header and falls back to the body
func retryAfter(h http.Header, bodySeconds int64) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(bodySeconds) * time.Second
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// IsCredentialFailure reports whether err was a wrong email or password
func IsCredentialFailure(err error) bool {
	var invalid *InvalidCredentialsError
	return errors.As(err, &invalid)
}
