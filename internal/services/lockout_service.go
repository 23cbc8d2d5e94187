package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/pkg/clock"
	"github.com/BradenHooton/gatekeeper/pkg/keylock"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

// LockoutRepository persists per-account lockout state. Update must apply fn
// atomically against the stored row and discard the change when fn errors.
type LockoutRepository interface {
	Get(ctx context.Context, accountID string) (*models.LockoutState, error)
	Update(ctx context.Context, accountID string, fn func(*models.LockoutState) error) error
}

// LockoutPolicy holds the thresholds of the lockout state machine
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
	// PermanentAfter is the number of temporary locks after which the next
	// lock is permanent. Zero disables escalation.
	PermanentAfter int
}

// AttemptOutcome is the result of evaluating credentials on an unlocked account
type AttemptOutcome struct {
	Authenticated bool
	State         models.LockoutState
	NewlyLocked   bool
	LazyUnlocked  bool
}

// Remaining is the number of wrong passwords left before a lock
func (o *AttemptOutcome) Remaining(maxAttempts int) int {
	if r := maxAttempts - o.State.FailedAttempts; r > 0 {
		return r
	}
	return 0
}

// LockoutService implements the Unlocked -> LockedUntil -> LockedPermanently
// state machine on top of durable per-account counters.
type LockoutService struct {
	repo   LockoutRepository
	policy LockoutPolicy
	clock  clock.Clock
	logger *slog.Logger
	audit  *pkglogger.AuditLogger
	locks  *keylock.Map
}

func NewLockoutService(repo LockoutRepository, policy LockoutPolicy, clk clock.Clock, logger *slog.Logger, audit *pkglogger.AuditLogger) *LockoutService {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 5
	}
	if policy.Duration <= 0 {
		policy.Duration = 15 * time.Minute
	}
	return &LockoutService{
		repo:   repo,
		policy: policy,
		clock:  clk,
		logger: logger,
		audit:  audit,
		locks:  keylock.New(),
	}
}

func (s *LockoutService) Policy() LockoutPolicy { return s.policy }

// Evaluate runs one login attempt against the account's lockout state.
//
// A locked account returns *models.LockedError without calling verify or
// touching any counter. A temporary lock whose deadline has passed is cleared
// (counter reset to zero) and evaluation continues as unlocked. On an
// unlocked account verify decides: success resets the record, a wrong
// password increments the counter and locks once MaxAttempts is reached.
// The whole read-modify-write runs under a per-account mutex and the
// repository's row lock.
func (s *LockoutService) Evaluate(ctx context.Context, accountID, ip string, verify func() (bool, error)) (*AttemptOutcome, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	var outcome AttemptOutcome
	err := s.repo.Update(ctx, accountID, func(st *models.LockoutState) error {
		now := s.clock.Now()

		if st.Lock.Lapsed(now) {
			st.Lock = models.NoLock()
			st.FailedAttempts = 0
			outcome.LazyUnlocked = true
		}

		if st.Lock.Active(now) {
			return &models.LockedError{
				Lock:           st.Lock,
				FailedAttempts: st.FailedAttempts,
				MaxAttempts:    s.policy.MaxAttempts,
				At:             now,
			}
		}

		ok, err := verify()
		if err != nil {
			return fmt.Errorf("credential check failed: %w", err)
		}

		st.LastAttemptAt = &now
		st.LastAttemptIP = ip

		if ok {
			st.FailedAttempts = 0
			st.Lock = models.NoLock()
			st.LockCount = 0
			outcome.Authenticated = true
			outcome.State = *st
			return nil
		}

		st.FailedAttempts++
		if st.FailedAttempts >= s.policy.MaxAttempts {
			st.FailedAttempts = s.policy.MaxAttempts
			st.LockCount++
			if s.policy.PermanentAfter > 0 && st.LockCount >= s.policy.PermanentAfter {
				st.Lock = models.PermanentLock()
			} else {
				st.Lock = models.TemporaryLock(now.Add(s.policy.Duration))
			}
			outcome.NewlyLocked = true
		}
		outcome.State = *st
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.LazyUnlocked {
		s.logger.Info("temporary lock expired", slog.String("account_id", accountID))
	}
	if outcome.NewlyLocked {
		s.logger.Warn("account locked",
			slog.String("account_id", accountID),
			slog.String("state", outcome.State.Lock.Kind.String()),
			slog.Int("lock_count", outcome.State.LockCount),
		)
		s.audit.LogLockout(ctx, lockEvent(pkglogger.EventAccountLocked, accountID, "", outcome.State.Lock))
	}

	return &outcome, nil
}

// Unlock clears the lockout record regardless of its state
func (s *LockoutService) Unlock(ctx context.Context, accountID, actorID string) (*models.LockoutState, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	var out models.LockoutState
	err := s.repo.Update(ctx, accountID, func(st *models.LockoutState) error {
		st.FailedAttempts = 0
		st.Lock = models.NoLock()
		st.LockCount = 0
		out = *st
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogLockout(ctx, lockEvent(pkglogger.EventAccountUnlock, accountID, actorID, out.Lock))
	return &out, nil
}

// LockPermanently locks the account until an administrator unlocks it
func (s *LockoutService) LockPermanently(ctx context.Context, accountID, actorID string) (*models.LockoutState, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	var out models.LockoutState
	err := s.repo.Update(ctx, accountID, func(st *models.LockoutState) error {
		st.Lock = models.PermanentLock()
		st.FailedAttempts = s.policy.MaxAttempts
		out = *st
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogLockout(ctx, lockEvent(pkglogger.EventAccountLocked, accountID, actorID, out.Lock))
	return &out, nil
}

// State returns the effective lockout state. A lapsed temporary lock is
// reported as unlocked with a zero counter; nothing is written.
func (s *LockoutService) State(ctx context.Context, accountID string) (*models.LockoutState, error) {
	st, err := s.repo.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if st.Lock.Lapsed(s.clock.Now()) {
		st.Lock = models.NoLock()
		st.FailedAttempts = 0
	}
	return st, nil
}

// View projects a state for the admin API
func (s *LockoutService) View(st *models.LockoutState, email string) *models.LockoutView {
	lockedUntil, permanent := st.Lock.Columns()
	return &models.LockoutView{
		AccountID:      st.AccountID,
		Email:          email,
		State:          st.Lock.Kind.String(),
		FailedAttempts: st.FailedAttempts,
		MaxAttempts:    s.policy.MaxAttempts,
		LockCount:      st.LockCount,
		LockedUntil:    lockedUntil,
		Permanent:      permanent,
		LastAttemptAt:  st.LastAttemptAt,
		LastAttemptIP:  st.LastAttemptIP,
	}
}

func lockEvent(eventType, accountID, actorID string, lock models.Lock) pkglogger.LockoutEvent {
	until, _ := lock.Columns()
	return pkglogger.LockoutEvent{
		EventType:   eventType,
		AccountID:   accountID,
		ActorID:     actorID,
		State:       lock.Kind.String(),
		LockedUntil: until,
	}
}
