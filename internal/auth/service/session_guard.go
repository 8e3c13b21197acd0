package service

import (
	"sync"
	"time"
)

const (
	DefaultGlobalMaxAttempts  = 12
	DefaultGlobalLockDuration = 15 * time.Minute
)

// SessionGuard counts failed attempts within one session regardless of the
// username tried. It lives in memory only and is lost with the session.
type SessionGuard struct {
	MaxAttempts  int
	LockDuration time.Duration
	Now          func() time.Time

	mu        sync.Mutex
	failed    int
	lockUntil *time.Time
}

// NewSessionGuard returns a guard with the default thresholds.
func NewSessionGuard() *SessionGuard {
	return &SessionGuard{
		MaxAttempts:  DefaultGlobalMaxAttempts,
		LockDuration: DefaultGlobalLockDuration,
	}
}

func (g *SessionGuard) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *SessionGuard) maxAttempts() int {
	if g.MaxAttempts <= 0 {
		return DefaultGlobalMaxAttempts
	}
	return g.MaxAttempts
}

// IsGloballyLocked reports the session lock. An expired lock is cleared
// along with the counter.
func (g *SessionGuard) IsGloballyLocked() LockStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.statusLocked(g.now())
}

func (g *SessionGuard) statusLocked(now time.Time) LockStatus {
	if g.lockUntil == nil {
		return LockStatus{}
	}
	if st := lockStatus(g.lockUntil, now); st.Locked {
		return st
	}
	g.failed = 0
	g.lockUntil = nil
	return LockStatus{}
}

// RegisterGlobalFailure counts one failure and returns the new count. The
// lock engages when the count reaches MaxAttempts.
func (g *SessionGuard) RegisterGlobalFailure() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.statusLocked(now)

	g.failed++
	if g.failed >= g.maxAttempts() && g.lockUntil == nil {
		d := g.LockDuration
		if d <= 0 {
			d = DefaultGlobalLockDuration
		}
		until := now.Add(d)
		g.lockUntil = &until
	}
	return g.failed
}

// ResetGlobal zeroes the counter and clears the lock.
func (g *SessionGuard) ResetGlobal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failed = 0
	g.lockUntil = nil
}

// Remaining is how many more failures the session takes before it locks.
func (g *SessionGuard) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusLocked(g.now())
	return max(0, g.maxAttempts()-g.failed)
}
