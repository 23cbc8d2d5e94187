package mirror

import "time"

// Snapshot is what the server last said about an identifier
type Snapshot struct {
	FailedAttempts    int        `json:"failedAttempts"`
	RemainingAttempts int        `json:"remainingAttempts"`
	MaxAttempts       int        `json:"maxAttempts"`
	LockedUntil       *time.Time `json:"lockedUntil,omitempty"`
	Permanent         bool       `json:"permanent"`
}

// State is the device-side cache for one identifier. Provisional is true
// while it holds local increments that no server response has confirmed.
type State struct {
	Identifier          string
	FailedAttempts      int
	RemainingAttempts   int
	MaxAttempts         int
	LockedUntil         *time.Time
	Permanent           bool
	LockEscalationCount int // locks reported by the server, informational only
	LastSyncedAt        *time.Time
	Provisional         bool
	Server              *Snapshot
}

// Locked reports whether the cached state refuses an attempt at now
func (s *State) Locked(now time.Time) bool {
	if s.Permanent {
		return true
	}
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

func (s *State) apply(snap Snapshot) {
	s.FailedAttempts = snap.FailedAttempts
	s.RemainingAttempts = snap.RemainingAttempts
	s.MaxAttempts = snap.MaxAttempts
	s.LockedUntil = snap.LockedUntil
	s.Permanent = snap.Permanent
}

func (s *State) clone() *State {
	c := *s
	if s.LockedUntil != nil {
		t := *s.LockedUntil
		c.LockedUntil = &t
	}
	if s.LastSyncedAt != nil {
		t := *s.LastSyncedAt
		c.LastSyncedAt = &t
	}
	if s.Server != nil {
		snap := *s.Server
		if snap.LockedUntil != nil {
			t := *snap.LockedUntil
			snap.LockedUntil = &t
		}
		c.Server = &snap
	}
	return &c
}

// Report is the lockout information carried by one login response. Fields
// the response did not include are nil.
type Report struct {
	Success           bool
	Locked            bool
	Permanent         bool
	FailedAttempts    *int
	RemainingAttempts *int
	MaxAttempts       *int
	LockedUntil       *time.Time
}

// carriesAccountState is false for responses that say nothing about the
// account, such as an IP rate limit or an unknown email
func (r Report) carriesAccountState() bool {
	return r.Success || r.Locked || r.FailedAttempts != nil || r.RemainingAttempts != nil || r.LockedUntil != nil
}
