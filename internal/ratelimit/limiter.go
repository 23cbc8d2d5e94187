// Package ratelimit implements a process-local fixed-window request limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/BradenHooton/gatekeeper/pkg/clock"
)

// LoginKey is the bucket key for login attempts from one client address
func LoginKey(ip string) string {
	return "auth:" + ip
}

// ShadowKey buckets failed logins for an email that has no account. Its
// window mirrors the lockout counters so the reply looks like a real account's.
func ShadowKey(email string) string {
	return "shadow:" + email
}

// Result is the outcome of a Check or GetInfo call
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the window resets, rounded up to whole seconds
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return (d + time.Second - 1) / time.Second * time.Second
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key in fixed windows
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   clock.Clock
}

func New(clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Limiter{
		windows: make(map[string]*window),
		clock:   clk,
	}
}

// Check counts one request against key. A window opens on the first request
// (or the first after the previous one elapsed) with count 1. Requests beyond
// max are refused and not counted.
func (l *Limiter) Check(key string, max int, d time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(d)}
		l.windows[key] = w
		return Result{Allowed: max >= 1, Limit: max, Remaining: nonNegative(max - 1), ResetAt: w.resetAt}
	}

	if w.count >= max {
		return Result{Allowed: false, Limit: max, Remaining: 0, ResetAt: w.resetAt}
	}

	w.count++
	return Result{Allowed: true, Limit: max, Remaining: max - w.count, ResetAt: w.resetAt}
}

// GetInfo reports the quota of key without counting a request
func (l *Limiter) GetInfo(key string, max int, d time.Duration) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		return Result{Allowed: max >= 1, Limit: max, Remaining: max, ResetAt: now.Add(d)}
	}
	return Result{
		Allowed:   w.count < max,
		Limit:     max,
		Remaining: nonNegative(max - w.count),
		ResetAt:   w.resetAt,
	}
}

// Reset forgets the window of one key
func (l *Limiter) Reset(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.windows[key]
	delete(l.windows, key)
	return ok
}

// Clear forgets every window
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]*window)
}

// Len returns the number of tracked keys, expired or not
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep drops elapsed windows. It satisfies background.CleanupFunc.
func (l *Limiter) Sweep(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	var n int64
	for key, w := range l.windows {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if now.After(w.resetAt) {
			delete(l.windows, key)
			n++
		}
	}
	return n, nil
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
