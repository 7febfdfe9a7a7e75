// Package rateLimit throttles login attempts. The state is deliberately
// process-local and in-memory: losing it on restart is acceptable, and it is
// outside the durable consistency story. The limiter is injected and owns no
// timers; the caller schedules Sweep.
package rateLimit

import (
	"sync"
	"time"

	"github.com/robertarktes/expo-checkout/internal/observability"
)

type attempt struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
}

// LoginLimiter allows max failed attempts per identifier inside a sliding
// window; exceeding it locks the identifier out for the lockout duration.
// Identifiers combine identity and origin (e.g. "user@example.com|10.0.0.9").
type LoginLimiter struct {
	mu       sync.Mutex
	attempts map[string]*attempt

	max     int
	window  time.Duration
	lockout time.Duration

	now func() time.Time
}

func NewLoginLimiter(max int, window, lockout time.Duration) *LoginLimiter {
	return &LoginLimiter{
		attempts: make(map[string]*attempt),
		max:      max,
		window:   window,
		lockout:  lockout,
		now:      time.Now,
	}
}

// Allow reports whether the identifier may attempt a login. When denied, the
// second return value is how long until the lockout lifts.
func (l *LoginLimiter) Allow(identifier string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	a, ok := l.attempts[identifier]
	if !ok {
		return true, 0
	}

	if !a.lockedUntil.IsZero() {
		if now.Before(a.lockedUntil) {
			return false, a.lockedUntil.Sub(now)
		}
		delete(l.attempts, identifier)
		return true, 0
	}

	if now.Sub(a.windowStart) > l.window {
		delete(l.attempts, identifier)
		return true, 0
	}

	if a.count >= l.max {
		a.lockedUntil = now.Add(l.lockout)
		observability.LoginLockouts.Inc()
		return false, l.lockout
	}
	return true, 0
}

// Record notes the outcome of an attempt. A success clears the identifier's
// history.
func (l *LoginLimiter) Record(identifier string, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if success {
		delete(l.attempts, identifier)
		return
	}

	now := l.now()
	a, ok := l.attempts[identifier]
	if !ok || now.Sub(a.windowStart) > l.window {
		l.attempts[identifier] = &attempt{count: 1, windowStart: now}
		return
	}
	a.count++
}

// Sweep evicts expired windows and lapsed lockouts, returning how many
// entries were dropped. Called on a schedule owned by the process, not by a
// timer hidden in here.
func (l *LoginLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for id, a := range l.attempts {
		expiredWindow := a.lockedUntil.IsZero() && now.Sub(a.windowStart) > l.window
		lapsedLockout := !a.lockedUntil.IsZero() && now.After(a.lockedUntil)
		if expiredWindow || lapsedLockout {
			delete(l.attempts, id)
			dropped++
		}
	}
	return dropped
}
