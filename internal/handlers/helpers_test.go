package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/BradenHooton/gatekeeper/internal/session"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// NewTestRequest creates an HTTP request with a JSON body
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithPrincipal authenticates the request as user, optionally with a session
func WithPrincipal(req *http.Request, user *models.User, sess *session.Session) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{User: user, Session: sess}))
}

// AssertJSONResponse checks the status and decodes the body into target
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	if target != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), target))
	}
}

// AssertErrorResponse checks that the response is a standard error body
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, expectedError, resp.Error)
	assert.NotEmpty(t, resp.Message)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc         func(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	LogoutFunc        func(ctx context.Context, sessionID, accountID, ip string)
	LogoutAllFunc     func(ctx context.Context, accountID, ip string) int
	ExtendSessionFunc func(ctx context.Context, sessionID string, d time.Duration) (*session.Session, error)
	ListSessionsFunc  func(ctx context.Context, accountID string) []*session.Session
}

func (m *MockAuthService) Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, req)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAuthService) Logout(ctx context.Context, sessionID, accountID, ip string) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx, sessionID, accountID, ip)
	}
}

func (m *MockAuthService) LogoutAll(ctx context.Context, accountID, ip string) int {
	if m.LogoutAllFunc != nil {
		return m.LogoutAllFunc(ctx, accountID, ip)
	}
	return 0
}

func (m *MockAuthService) ExtendSession(ctx context.Context, sessionID string, d time.Duration) (*session.Session, error) {
	if m.ExtendSessionFunc != nil {
		return m.ExtendSessionFunc(ctx, sessionID, d)
	}
	return nil, models.ErrSessionInvalid
}

func (m *MockAuthService) ListSessions(ctx context.Context, accountID string) []*session.Session {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, accountID)
	}
	return nil
}

// MockAdminService implements AdminServiceInterface for testing
type MockAdminService struct {
	UnlockAccountFunc  func(ctx context.Context, actorID, email string) (*models.LockoutView, error)
	LockAccountFunc    func(ctx context.Context, actorID, email string) (*models.LockoutView, int, error)
	LockoutStatusFunc  func(ctx context.Context, email string) (*models.LockoutView, error)
	ForceLogoutFunc    func(ctx context.Context, actorID, accountID string) (int, error)
	SessionStatsFunc   func() session.Stats
	ResetRateLimitFunc func(actorID, key string) bool
}

func (m *MockAdminService) UnlockAccount(ctx context.Context, actorID, email string) (*models.LockoutView, error) {
	return m.UnlockAccountFunc(ctx, actorID, email)
}

func (m *MockAdminService) LockAccount(ctx context.Context, actorID, email string) (*models.LockoutView, int, error) {
	return m.LockAccountFunc(ctx, actorID, email)
}

func (m *MockAdminService) LockoutStatus(ctx context.Context, email string) (*models.LockoutView, error) {
	return m.LockoutStatusFunc(ctx, email)
}

func (m *MockAdminService) ForceLogout(ctx context.Context, actorID, accountID string) (int, error) {
	return m.ForceLogoutFunc(ctx, actorID, accountID)
}

func (m *MockAdminService) SessionStats() session.Stats {
	if m.SessionStatsFunc != nil {
		return m.SessionStatsFunc()
	}
	return session.Stats{}
}

func (m *MockAdminService) ResetRateLimit(_ context.Context, actorID, key string) bool {
	if m.ResetRateLimitFunc != nil {
		return m.ResetRateLimitFunc(actorID, key)
	}
	return false
}
