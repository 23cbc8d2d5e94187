package models

import "time"

// LockKind tags the lock state of an account
type LockKind int

const (
	Unlocked LockKind = iota
	LockedUntil
	LockedPermanently
)

func (k LockKind) String() string {
	switch k {
	case LockedUntil:
		return "locked_until"
	case LockedPermanently:
		return "locked_permanently"
	default:
		return "unlocked"
	}
}

// Lock is the tagged lock value. Until is meaningful only for LockedUntil.
type Lock struct {
	Kind  LockKind
	Until time.Time
}

// NoLock returns the unlocked state
func NoLock() Lock { return Lock{Kind: Unlocked} }

// TemporaryLock locks until t
func TemporaryLock(t time.Time) Lock { return Lock{Kind: LockedUntil, Until: t} }

// PermanentLock requires administrator action to lift
func PermanentLock() Lock { return Lock{Kind: LockedPermanently} }

// Active reports whether the lock refuses evaluation at now
func (l Lock) Active(now time.Time) bool {
	switch l.Kind {
	case LockedPermanently:
		return true
	case LockedUntil:
		return now.Before(l.Until)
	default:
		return false
	}
}

// Lapsed reports a temporary lock whose deadline has passed
func (l Lock) Lapsed(now time.Time) bool {
	return l.Kind == LockedUntil && !now.Before(l.Until)
}

// Remaining is the time left on a temporary lock, zero otherwise
func (l Lock) Remaining(now time.Time) time.Duration {
	if l.Kind != LockedUntil || !now.Before(l.Until) {
		return 0
	}
	return l.Until.Sub(now)
}

// Columns maps the lock onto the locked_until / lock_permanent pair
func (l Lock) Columns() (*time.Time, bool) {
	switch l.Kind {
	case LockedUntil:
		t := l.Until
		return &t, false
	case LockedPermanently:
		return nil, true
	default:
		return nil, false
	}
}

// LockFromColumns is the inverse of Columns
func LockFromColumns(lockedUntil *time.Time, permanent bool) Lock {
	if permanent {
		return PermanentLock()
	}
	if lockedUntil != nil {
		return TemporaryLock(*lockedUntil)
	}
	return NoLock()
}

// LockoutState is the durable failed-login record of an account.
// LockCount counts temporary locks since the last success or admin unlock.
type LockoutState struct {
	AccountID      string
	FailedAttempts int
	Lock           Lock
	LockCount      int
	LastAttemptAt  *time.Time
	LastAttemptIP  string
}

// LockoutView is the admin-facing projection of a LockoutState
type LockoutView struct {
	AccountID      string     `json:"accountId"`
	Email          string     `json:"email"`
	State          string     `json:"state"`
	FailedAttempts int        `json:"failedAttempts"`
	MaxAttempts    int        `json:"maxAttempts"`
	LockCount      int        `json:"lockCount"`
	LockedUntil    *time.Time `json:"lockedUntil"`
	Permanent      bool       `json:"permanent"`
	LastAttemptAt  *time.Time `json:"lastAttemptAt,omitempty"`
	LastAttemptIP  string     `json:"lastAttemptIp,omitempty"`
	RecentFailures int        `json:"recentFailures"` // failed logins in the last 24h
}
