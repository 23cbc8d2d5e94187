package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/gatekeeper/pkg/auth"
	"github.com/BradenHooton/gatekeeper/pkg/clock"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

const (
	DefaultTTL           = 24 * time.Hour
	DefaultMaxPerAccount = 5
)

type Config struct {
	TTL           time.Duration
	MaxPerAccount int
}

// Stats is a point-in-time count of the store contents
type Stats struct {
	Total          int `json:"total"`
	Active         int `json:"active"`
	Expired        int `json:"expired"`
	UniqueAccounts int `json:"uniqueAccounts"`
}

// Store maps session ids to sessions. Every read path may mutate (lazy
// expiry, activity refresh), so a single mutex guards both maps.
type Store struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	byAccount map[string]map[string]struct{}

	ttl    time.Duration
	max    int
	clock  clock.Clock
	logger *slog.Logger
	newID  func() (string, error)
}

func NewStore(cfg Config, clk clock.Clock, logger *slog.Logger) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxPerAccount <= 0 {
		cfg.MaxPerAccount = DefaultMaxPerAccount
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions:  make(map[string]*Session),
		byAccount: make(map[string]map[string]struct{}),
		ttl:       cfg.TTL,
		max:       cfg.MaxPerAccount,
		clock:     clk,
		logger:    logger,
		newID: func() (string, error) {
			return auth.GenerateOpaqueToken(auth.SessionTokenBytes)
		},
	}
}

// TTL returns the default session lifetime
func (s *Store) TTL() time.Duration { return s.ttl }

// Create issues a new session for accountID. If the account already holds
// MaxPerAccount live sessions, the least recently active ones are evicted
// first so the cap is never exceeded.
func (s *Store) Create(accountID string, meta Meta) (*Session, error) {
	if accountID == "" {
		return nil, fmt.Errorf("session: account id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.uniqueID()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ttl := s.ttl
	if meta.TTL > 0 {
		ttl = meta.TTL
	}

	s.pruneAccount(accountID, now)
	for len(s.byAccount[accountID]) >= s.max {
		evicted := s.oldest(accountID)
		s.remove(evicted)
		s.logger.Info("session evicted",
			slog.String("account_id", accountID),
			slog.String("session", pkglogger.MaskSessionID(evicted)),
			slog.Int("max_per_account", s.max),
		)
	}

	sess := &Session{
		ID:             id,
		AccountID:      accountID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
		ClientIP:       meta.ClientIP,
		ClientAgent:    meta.ClientAgent,
	}
	sess.device()

	s.sessions[id] = sess
	if s.byAccount[accountID] == nil {
		s.byAccount[accountID] = make(map[string]struct{})
	}
	s.byAccount[accountID][id] = struct{}{}

	out := *sess
	return &out, nil
}

// Get returns a copy of the session and refreshes its activity time.
// Unknown, empty and expired ids are all reported as not found; an expired
// session is deleted on the way out.
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	now := s.clock.Now()
	if sess.expired(now) {
		s.remove(id)
		return nil, false
	}

	if now.After(sess.LastActivityAt) {
		sess.LastActivityAt = now
	}

	out := *sess
	return &out, true
}

// Verify resolves a session id to its account id
func (s *Store) Verify(id string) (string, bool) {
	sess, ok := s.Get(id)
	if !ok {
		return "", false
	}
	return sess.AccountID, true
}

// Destroy removes a session. It reports whether one was present.
func (s *Store) Destroy(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	s.remove(id)
	return true
}

// DestroyAllFor removes every session of an account and returns how many went
func (s *Store) DestroyAllFor(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byAccount[accountID]
	n := len(ids)
	for id := range ids {
		s.remove(id)
	}
	return n
}

// Extend pushes the expiry of a live session to now+d
func (s *Store) Extend(id string, d time.Duration) (*Session, bool) {
	if id == "" || d <= 0 {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	now := s.clock.Now()
	if sess.expired(now) {
		s.remove(id)
		return nil, false
	}

	sess.ExpiresAt = now.Add(d)
	if now.After(sess.LastActivityAt) {
		sess.LastActivityAt = now
	}

	out := *sess
	return &out, true
}

// ListFor returns the live sessions of an account, most recently active first.
// Listing does not count as activity.
func (s *Store) ListFor(accountID string) []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	out := make([]*Session, 0, len(s.byAccount[accountID]))
	for id := range s.byAccount[accountID] {
		sess := s.sessions[id]
		if sess.expired(now) {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	st := Stats{Total: len(s.sessions), UniqueAccounts: len(s.byAccount)}
	for _, sess := range s.sessions {
		if sess.expired(now) {
			st.Expired++
		} else {
			st.Active++
		}
	}
	return st
}

// Sweep deletes every expired session. It satisfies background.CleanupFunc.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var n int64
	for id, sess := range s.sessions {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if sess.expired(now) {
			s.remove(id)
			n++
		}
	}
	return n, nil
}

func (s *Store) uniqueID() (string, error) {
	for i := 0; i < 3; i++ {
		id, err := s.newID()
		if err != nil {
			return "", fmt.Errorf("session: %w", err)
		}
		if _, taken := s.sessions[id]; !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("session: could not allocate a unique id")
}

// pruneAccount drops the account's expired sessions so they do not count
// against the cap. Caller holds mu.
func (s *Store) pruneAccount(accountID string, now time.Time) {
	for id := range s.byAccount[accountID] {
		if s.sessions[id].expired(now) {
			s.remove(id)
		}
	}
}

// oldest returns the account's least recently active session id. Caller holds mu.
func (s *Store) oldest(accountID string) string {
	var victim *Session
	for id := range s.byAccount[accountID] {
		sess := s.sessions[id]
		if victim == nil ||
			sess.LastActivityAt.Before(victim.LastActivityAt) ||
			(sess.LastActivityAt.Equal(victim.LastActivityAt) && sess.CreatedAt.Before(victim.CreatedAt)) {
			victim = sess
		}
	}
	return victim.ID
}

// remove deletes a session from both indexes. Caller holds mu.
func (s *Store) remove(id string) {
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	if ids := s.byAccount[sess.AccountID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byAccount, sess.AccountID)
		}
	}
}
