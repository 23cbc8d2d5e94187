package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/BradenHooton/gatekeeper/internal/session"
	"github.com/BradenHooton/gatekeeper/pkg/clock"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUser = &models.User{ID: "acct-1", Email: "alice@example.com", Name: "Alice", Role: models.RoleUser, Status: models.StatusActive}

var quota = models.RateLimitInfo{Limit: 5, Remaining: 3, ResetAt: t0.Add(15 * time.Minute)}

func newAuthHandler(svc *MockAuthService) *AuthHandler {
	return NewAuthHandler(svc, nil, auth.CookieConfig{}, clock.NewFake(t0), testLogger())
}

func postLogin(t *testing.T, h *AuthHandler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Login(rec, NewTestRequest(t, http.MethodPost, "/api/auth/login", body))
	return rec
}

func TestLogin_Success(t *testing.T) {
	var got services.LoginRequest
	svc := &MockAuthService{LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
		got = req
		return &services.LoginResult{
			User: testUser,
			Session: &session.Session{
				ID: "sid-123", AccountID: testUser.ID,
				CreatedAt: t0, LastActivityAt: t0, ExpiresAt: t0.Add(24 * time.Hour),
			},
			RateLimit: quota,
		}, nil
	}}

	rec := postLogin(t, newAuthHandler(svc), LoginRequest{Email: "alice@example.com", Password: "SecurePass123"})

	var resp LoginResponse
	AssertJSONResponse(t, rec, http.StatusOK, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "sid-123", resp.SessionID)
	assert.Equal(t, testUser.ID, resp.User.ID)
	assert.Equal(t, int64(86400), resp.Session.ExpiresIn)
	assert.Equal(t, 24.0, resp.Session.ExpiresInHours)
	assert.NotContains(t, rec.Body.String(), "password")

	assert.Equal(t, "192.0.2.1", got.ClientIP)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Remaining"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, pkghttp.SessionCookie, cookies[0].Name)
	assert.Equal(t, "sid-123", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLogin_ValidationNeverReachesService(t *testing.T) {
	svc := &MockAuthService{LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	h := newAuthHandler(svc)

	for _, body := range []interface{}{
		LoginRequest{Email: "not-an-email", Password: "x"},
		LoginRequest{Email: "alice@example.com"},
		LoginRequest{Password: "x"},
		"garbage",
	} {
		AssertErrorResponse(t, postLogin(t, h, body), http.StatusBadRequest, "bad_request")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &MockAuthService{LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
		return nil, &models.AuthFailure{Known: true, FailedAttempts: 4, RemainingAttempts: 1, MaxAttempts: 5, RateLimit: quota}
	}}

	rec := postLogin(t, newAuthHandler(svc), LoginRequest{Email: "alice@example.com", Password: "wrong"})

	var resp map[string]any
	AssertJSONResponse(t, rec, http.StatusUnauthorized, &resp)
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, "invalid_credentials", resp["error"])
	assert.EqualValues(t, 4, resp["failedAttempts"])
	assert.EqualValues(t, 1, resp["remainingAttempts"])
	assert.EqualValues(t, 5, resp["maxAttempts"])
	assert.Contains(t, resp["message"], "1 attempt(s) remaining")

	rl := resp["rateLimit"].(map[string]any)
	assert.EqualValues(t, 3, rl["remaining"])
	assert.Equal(t, quota.ResetAt.Format(time.RFC3339), rl["reset"])
}

func TestLogin_FailureWithoutCountersOmitsThem(t *testing.T) {
	svc := &MockAuthService{LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
		return nil, &models.AuthFailure{Known: false, RateLimit: quota}
	}}

	rec := postLogin(t, newAuthHandler(svc), LoginRequest{Email: "ghost@example.com", Password: "wrong"})

	var resp map[string]any
	AssertJSONResponse(t, rec, http.StatusUnauthorized, &resp)
	assert.NotContains(t, resp, "failedAttempts")
	assert.NotContains(t, resp, "remainingAttempts")
	assert.Contains(t, resp, "rateLimit")
}

func TestLogin_TemporarilyLocked(t *testing.T) {
	svc := &MockAuthService{LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
		return nil, &models.LockedError{
			Lock:           models.TemporaryLock(t0.Add(14*time.Minute + 30*time.Second)),
			FailedAttempts: 5,
			MaxAttempts:    5,
			At:             t0,
			RateLimit:      quota,
		}
	}}

	rec := postLogin(t, newAuthHandler(svc), LoginRequest{Email: "alice@example.com", Password: "whatever"})

	var resp map[string]any
	AssertJSONResponse(t, rec, http.StatusLocked, &resp)
	assert.Equal(t, true, resp["locked"])
	assert.Equal(t, false, resp["permanent"])
	assert.EqualValues(t, 5, resp["failedAttempts"])
	assert.EqualValues(t, 5, resp["maxAttempts"])
	assert.EqualValues(t, 870, resp["secondsRemaining"])
	assert.EqualValues(t, 15, resp["minutesRemaining"])
	assert.Equal(t, t0.Add(14*time.Minute+30*time.Second).Format(time.RFC3339), resp["lockedUntil"])
	assert.Contains(t, resp, "rateLimit")
	assert.Contains(t, resp["message"], "15 more minute(s)")
}

func TestLogin_PermanentlyLocked(t *testing.T) {
	svc := &MockAuthService{LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
		return nil, &models.LockedError{Lock: models.PermanentLock(), FailedAttempts: 5, MaxAttempts: 5, At: t0, RateLimit: quota}
	}}

	rec := postLogin(t, newAuthHandler(svc), LoginRequest{Email: "alice@example.com", Password: "whatever"})

	var resp map[string]any
	AssertJSONResponse(t, rec, http.StatusLocked, &resp)
	assert.Equal(t, true, resp["permanent"])
	assert.Contains(t, resp, "lockedUntil")
	assert.Nil(t, resp["lockedUntil"])
	assert.NotContains(t, resp, "secondsRemaining")
	assert.Contains(t, strings.ToLower(resp["message"].(string)), "administrator")
}

func TestLogin_RateLimited(t *testing.T) {
	svc := &MockAuthService{LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
		return nil, &models.RateLimitError{
			Info:       models.RateLimitInfo{Limit: 5, Remaining: 0, ResetAt: t0.Add(90 * time.Second)},
			RetryAfter: 90 * time.Second,
		}
	}}

	rec := postLogin(t, newAuthHandler(svc), LoginRequest{Email: "alice@example.com", Password: "whatever"})

	var resp RateLimitedResponse
	AssertJSONResponse(t, rec, http.StatusTooManyRequests, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "rate_limit_exceeded", resp.Error)
	assert.Equal(t, int64(90), resp.RetryAfter)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestLogin_OtherErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrAccountSuspended, http.StatusForbidden, "forbidden"},
		{models.ErrAccountDisabled, http.StatusForbidden, "forbidden"},
		{errors.New("database exploded"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		svc := &MockAuthService{LoginFunc: func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
			return nil, tt.err
		}}
		rec := postLogin(t, newAuthHandler(svc), LoginRequest{Email: "alice@example.com", Password: "x"})
		AssertErrorResponse(t, rec, tt.status, tt.code)
		assert.NotContains(t, rec.Body.String(), "exploded")
	}
}

func TestLogout(t *testing.T) {
	var destroyed string
	svc := &MockAuthService{LogoutFunc: func(ctx context.Context, sessionID, accountID, ip string) {
		destroyed = sessionID
	}}
	h := newAuthHandler(svc)

	req := WithPrincipal(httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil), testUser, &session.Session{ID: "sid-1"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sid-1", destroyed)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
}

func TestLogoutAll(t *testing.T) {
	svc := &MockAuthService{LogoutAllFunc: func(ctx context.Context, accountID, ip string) int {
		assert.Equal(t, testUser.ID, accountID)
		return 3
	}}

	rec := httptest.NewRecorder()
	newAuthHandler(svc).LogoutAll(rec, WithPrincipal(httptest.NewRequest(http.MethodPost, "/", nil), testUser, nil))

	var resp map[string]any
	AssertJSONResponse(t, rec, http.StatusOK, &resp)
	assert.EqualValues(t, 3, resp["sessionsEnded"])
}

func TestSession(t *testing.T) {
	h := newAuthHandler(&MockAuthService{})
	sess := &session.Session{ID: "sid-1", CreatedAt: t0, ExpiresAt: t0.Add(2 * time.Hour), Browser: "Firefox"}

	rec := httptest.NewRecorder()
	h.Session(rec, WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), testUser, sess))

	var resp map[string]any
	AssertJSONResponse(t, rec, http.StatusOK, &resp)
	s := resp["session"].(map[string]any)
	assert.EqualValues(t, 7200, s["expiresIn"])
	assert.Equal(t, "Firefox", s["browser"])
	assert.NotContains(t, rec.Body.String(), "sid-1")

	rec = httptest.NewRecorder()
	h.Session(rec, WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), testUser, nil))
	AssertJSONResponse(t, rec, http.StatusOK, &resp)
	assert.Nil(t, resp["session"], "legacy callers have no session")

	rec = httptest.NewRecorder()
	h.Session(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	AssertErrorResponse(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestExtendSession(t *testing.T) {
	var asked time.Duration
	svc := &MockAuthService{ExtendSessionFunc: func(ctx context.Context, sessionID string, d time.Duration) (*session.Session, error) {
		asked = d
		return &session.Session{ID: sessionID, CreatedAt: t0, ExpiresAt: t0.Add(48 * time.Hour)}, nil
	}}
	h := newAuthHandler(svc)
	sess := &session.Session{ID: "sid-1"}

	rec := httptest.NewRecorder()
	h.ExtendSession(rec, WithPrincipal(NewTestRequest(t, http.MethodPost, "/", ExtendRequest{Hours: 48}), testUser, sess))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 48*time.Hour, asked)

	rec = httptest.NewRecorder()
	h.ExtendSession(rec, WithPrincipal(httptest.NewRequest(http.MethodPost, "/", nil), testUser, sess))
	assert.Equal(t, http.StatusOK, rec.Code, "empty body uses the default lifetime")
	assert.Zero(t, asked)

	rec = httptest.NewRecorder()
	h.ExtendSession(rec, WithPrincipal(NewTestRequest(t, http.MethodPost, "/", ExtendRequest{Hours: 10000}), testUser, sess))
	AssertErrorResponse(t, rec, http.StatusBadRequest, "bad_request")

	rec = httptest.NewRecorder()
	h.ExtendSession(rec, WithPrincipal(httptest.NewRequest(http.MethodPost, "/", nil), testUser, nil))
	AssertErrorResponse(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestSessions_MarksCurrent(t *testing.T) {
	svc := &MockAuthService{ListSessionsFunc: func(ctx context.Context, accountID string) []*session.Session {
		return []*session.Session{{ID: "a", ExpiresAt: t0.Add(time.Hour)}, {ID: "b", ExpiresAt: t0.Add(time.Hour)}}
	}}

	rec := httptest.NewRecorder()
	newAuthHandler(svc).Sessions(rec, WithPrincipal(httptest.NewRequest(http.MethodGet, "/", nil), testUser, &session.Session{ID: "b"}))

	var resp struct {
		Sessions []SessionResponse `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Sessions, 2)
	assert.False(t, resp.Sessions[0].Current)
	assert.True(t, resp.Sessions[1].Current)
}

func TestValidationErrorNamesJSONField(t *testing.T) {
	rec := postLogin(t, newAuthHandler(&MockAuthService{}), map[string]string{"email": "alice@example.com"})

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password", resp.Details)
	assert.Contains(t, resp.Message, "password")
}
