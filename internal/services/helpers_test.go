package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/ratelimit"
	"github.com/BradenHooton/gatekeeper/internal/session"
	"github.com/BradenHooton/gatekeeper/pkg/clock"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const testPassword = "SecurePass123"

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

// usersOf backs a MockUserRepository with a fixed set of users
func usersOf(users ...*models.User) *MockUserRepository {
	byID := make(map[string]*models.User)
	byEmail := make(map[string]*models.User)
	for _, u := range users {
		byID[u.ID] = u
		byEmail[u.Email] = u
	}
	return &MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			if u, ok := byID[id]; ok {
				return u, nil
			}
			return nil, models.ErrNotFound
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			if u, ok := byEmail[email]; ok {
				return u, nil
			}
			return nil, models.ErrNotFound
		},
	}
}

// memoryLockoutRepo applies updates to a copy and keeps it only on success
type memoryLockoutRepo struct {
	mu     sync.Mutex
	states map[string]models.LockoutState
	writes int
}

func newMemoryLockoutRepo(accountIDs ...string) *memoryLockoutRepo {
	r := &memoryLockoutRepo{states: make(map[string]models.LockoutState)}
	for _, id := range accountIDs {
		r.states[id] = models.LockoutState{AccountID: id}
	}
	return r
}

func (r *memoryLockoutRepo) Get(ctx context.Context, accountID string) (*models.LockoutState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &st, nil
}

func (r *memoryLockoutRepo) Update(ctx context.Context, accountID string, fn func(*models.LockoutState) error) error {
	r.mu.Lock()
	st, ok := r.states[accountID]
	r.mu.Unlock()
	if !ok {
		return models.ErrNotFound
	}

	// The service serialises per account; the window between read and write
	// is left open on purpose so a missing service-level lock would show up.
	if err := fn(&st); err != nil {
		return err
	}

	r.mu.Lock()
	r.states[accountID] = st
	r.writes++
	r.mu.Unlock()
	return nil
}

func (r *memoryLockoutRepo) state(accountID string) models.LockoutState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[accountID]
}

func (r *memoryLockoutRepo) set(st models.LockoutState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[st.AccountID] = st
}

// MockLoginAttemptRepository implements LoginAttemptRepository for testing
type MockLoginAttemptRepository struct {
	mu                     sync.Mutex
	Recorded               []*models.LoginAttempt
	RecordAttemptFunc      func(ctx context.Context, attempt *models.LoginAttempt) error
	CountFailuresSinceFunc func(ctx context.Context, email string, since time.Time) (int, error)
}

func (m *MockLoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	m.mu.Lock()
	m.Recorded = append(m.Recorded, attempt)
	m.mu.Unlock()
	if m.RecordAttemptFunc != nil {
		return m.RecordAttemptFunc(ctx, attempt)
	}
	return nil
}

func (m *MockLoginAttemptRepository) CountFailuresSince(ctx context.Context, email string, since time.Time) (int, error) {
	if m.CountFailuresSinceFunc != nil {
		return m.CountFailuresSinceFunc(ctx, email, since)
	}
	return 0, nil
}

// NewTestUser creates an active user whose password is testPassword
func NewTestUser(t *testing.T, id, email string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		Name:         "Test User",
		Role:         models.RoleUser,
		Status:       models.StatusActive,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	clock    *clock.Fake
	users    *MockUserRepository
	lockouts *memoryLockoutRepo
	attempts *MockLoginAttemptRepository
	sessions *session.Store
	limiter  *ratelimit.Limiter
	lockout  *LockoutService
	auth     *AuthService
	admin    *AdminService
}

func defaultPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, Duration: 15 * time.Minute, PermanentAfter: 3}
}

func newHarness(t *testing.T, policy LockoutPolicy, limit LoginLimit, users ...*models.User) *harness {
	t.Helper()

	h := &harness{
		clock:    clock.NewFake(t0),
		users:    usersOf(users...),
		attempts: &MockLoginAttemptRepository{},
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	h.lockouts = newMemoryLockoutRepo(ids...)

	logger := testLogger()
	audit := pkglogger.NewAuditLogger(logger, h.clock)

	h.sessions = session.NewStore(session.Config{TTL: 24 * time.Hour, MaxPerAccount: 5}, h.clock, logger)
	h.limiter = ratelimit.New(h.clock)
	h.lockout = NewLockoutService(h.lockouts, policy, h.clock, logger, audit)
	h.auth = NewAuthService(AuthDeps{
		Users:    h.users,
		Lockout:  h.lockout,
		Sessions: h.sessions,
		Limiter:  h.limiter,
		Attempts: h.attempts,
		Limit:    limit,
		Clock:    h.clock,
		Logger:   logger,
		Audit:    audit,
	})
	h.admin = NewAdminService(h.users, h.lockout, h.sessions, h.limiter, h.attempts, h.clock, logger, audit)
	return h
}

func (h *harness) login(email, password string) (*LoginResult, error) {
	return h.auth.Login(context.Background(), LoginRequest{
		Email:     email,
		Password:  password,
		ClientIP:  "203.0.113.10",
		UserAgent: "test-agent",
	})
}
