// Package mirror caches the server's account lockout state on the device so
// the UI can refuse an attempt before a network round trip. The server is the
// only authority: every server response overwrites whatever is cached here.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/gatekeeper/pkg/clock"
	"github.com/BradenHooton/gatekeeper/pkg/keylock"
)

// Config controls local optimistic behaviour
type Config struct {
	DefaultMaxAttempts int           // used until the server has reported its own maximum
	ProvisionalLock    time.Duration // local lock applied when local failures reach the maximum
}

func DefaultConfig() Config {
	return Config{DefaultMaxAttempts: 5, ProvisionalLock: 15 * time.Minute}
}

// Mirror is the device-side lockout cache
type Mirror struct {
	store  Store
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	locks *keylock.Map

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

func New(store Store, cfg Config, clk clock.Clock, logger *slog.Logger) *Mirror {
	def := DefaultConfig()
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	if cfg.ProvisionalLock <= 0 {
		cfg.ProvisionalLock = def.ProvisionalLock
	}
	return &Mirror{
		store:    store,
		cfg:      cfg,
		clock:    clk,
		logger:   logger.With("component", "lockout_mirror"),
		locks:    keylock.New(),
		inflight: make(map[string]struct{}),
	}
}

// Normalize maps an identifier to its cache key
func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// CanAttempt reports whether a login for identifier may be sent. A permanent
// lock returns false with a nil time; a lapsed local lock is allowed.
func (m *Mirror) CanAttempt(ctx context.Context, identifier string) (bool, *time.Time, error) {
	st, err := m.store.Load(ctx, Normalize(identifier))
	if err != nil {
		return false, nil, err
	}
	if st == nil {
		return true, nil, nil
	}
	if st.Permanent {
		return false, nil, nil
	}
	if st.Locked(m.clock.Now()) {
		until := *st.LockedUntil
		return false, &until, nil
	}
	return true, nil, nil
}

// Get returns the cached state, or nil when nothing is cached
func (m *Mirror) Get(ctx context.Context, identifier string) (*State, error) {
	return m.store.Load(ctx, Normalize(identifier))
}

// RecordLocalFailure counts a failure the server did not describe. Only call it
// for responses that unambiguously mean wrong credentials.
func (m *Mirror) RecordLocalFailure(ctx context.Context, identifier string) (State, error) {
	id := Normalize(identifier)
	release := m.locks.Lock(id)
	defer release()

	st, err := m.load(ctx, id)
	if err != nil {
		return State{}, err
	}

	now := m.clock.Now()
	if st.LockedUntil != nil && !now.Before(*st.LockedUntil) {
		st.FailedAttempts = 0
		st.LockedUntil = nil
	}

	if st.MaxAttempts <= 0 {
		st.MaxAttempts = m.cfg.DefaultMaxAttempts
	}

	st.FailedAttempts++
	st.Provisional = true
	st.RemainingAttempts = st.MaxAttempts - st.FailedAttempts
	if st.RemainingAttempts <= 0 {
		st.RemainingAttempts = 0
		until := now.Add(m.cfg.ProvisionalLock)
		st.LockedUntil = &until
		m.logger.Info("provisional local lock", "identifier", id, "locked_until", until)
	}

	if err := m.store.Save(ctx, st); err != nil {
		return State{}, err
	}
	return *st, nil
}

// RecordSuccess clears everything cached for identifier
func (m *Mirror) RecordSuccess(ctx context.Context, identifier string) error {
	id := Normalize(identifier)
	release := m.locks.Lock(id)
	defer release()
	return m.store.Delete(ctx, id)
}

// Reset wipes the cache after an administrator unlock
func (m *Mirror) Reset(ctx context.Context, identifier string) error {
	id := Normalize(identifier)
	release := m.locks.Lock(id)
	defer release()

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("mirror reset", "identifier", id)
	return nil
}

// SyncFromServer absorbs a server response. Local-only state is discarded.
// A report that carries no account state reverts to the last server snapshot.
func (m *Mirror) SyncFromServer(ctx context.Context, identifier string, r Report) (*State, error) {
	id := Normalize(identifier)
	release := m.locks.Lock(id)
	defer release()

	if r.Success {
		if err := m.store.Delete(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	st, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if !r.carriesAccountState() {
		if st.Server == nil {
			if err := m.store.Delete(ctx, id); err != nil {
				return nil, err
			}
			return nil, nil
		}
		st.apply(*st.Server)
		st.Provisional = false
		if err := m.store.Save(ctx, st); err != nil {
			return nil, err
		}
		return st, nil
	}

	snap := snapshotFrom(r, st, m.cfg.DefaultMaxAttempts)
	wasLocked := st.Server != nil && (st.Server.Permanent || st.Server.LockedUntil != nil)
	if (snap.Permanent || snap.LockedUntil != nil) && !wasLocked {
		st.LockEscalationCount++
	}

	now := m.clock.Now()
	st.apply(snap)
	st.Server = &snap
	st.Provisional = false
	st.LastSyncedAt = &now

	if err := m.store.Save(ctx, st); err != nil {
		return nil, err
	}
	return st.clone(), nil
}

func snapshotFrom(r Report, prev *State, defaultMax int) Snapshot {
	snap := Snapshot{Permanent: r.Permanent}
	switch {
	case r.MaxAttempts != nil:
		snap.MaxAttempts = *r.MaxAttempts
	case prev.MaxAttempts > 0:
		snap.MaxAttempts = prev.MaxAttempts
	default:
		snap.MaxAttempts = defaultMax
	}

	if r.FailedAttempts != nil {
		snap.FailedAttempts = *r.FailedAttempts
	} else if r.Locked {
		snap.FailedAttempts = snap.MaxAttempts
	}

	if r.RemainingAttempts != nil {
		snap.RemainingAttempts = *r.RemainingAttempts
	} else if !r.Locked {
		snap.RemainingAttempts = max(snap.MaxAttempts-snap.FailedAttempts, 0)
	}

	if r.LockedUntil != nil && !r.Permanent {
		t := *r.LockedUntil
		snap.LockedUntil = &t
	}
	return snap
}

func (m *Mirror) load(ctx context.Context, id string) (*State, error) {
	st, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mirror: load %s: %w", id, err)
	}
	if st == nil {
		st = &State{Identifier: id}
	}
	return st, nil
}

// Begin marks a login for identifier as in flight. It returns ok=false while
// another attempt for the same identifier is outstanding.
func (m *Mirror) Begin(identifier string) (func(), bool) {
	id := Normalize(identifier)

	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	if _, busy := m.inflight[id]; busy {
		return func() {}, false
	}
	m.inflight[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.inflightMu.Lock()
			delete(m.inflight, id)
			m.inflightMu.Unlock()
		})
	}, true
}
