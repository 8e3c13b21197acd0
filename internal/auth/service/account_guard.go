package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/store"
	"github.com/aussiebroadwan/spendsense/pkg/slogx"
)

const (
	DefaultMaxAttempts        = 5
	DefaultLockDuration       = 15 * time.Minute
	DefaultPasswordExpiryDays = 90
)

// LockStatus is the answer to "is this locked right now".
type LockStatus struct {
	Locked           bool
	MinutesRemaining int
}

func lockStatus(lockUntil *time.Time, now time.Time) LockStatus {
	if lockUntil == nil || !now.Before(*lockUntil) {
		return LockStatus{}
	}
	return LockStatus{Locked: true, MinutesRemaining: minutesLeft(lockUntil.Sub(now))}
}

// minutesLeft rounds up, so any remaining time shows as at least a minute
// and a fresh lock shows its full duration.
func minutesLeft(d time.Duration) int {
	return int((d + time.Minute - 1) / time.Minute)
}

// AccountGuard implements the persisted per-user lockout. Locks expire
// lazily: an expired lock is cleared the next time it is checked.
type AccountGuard struct {
	Store store.Store

	MaxAttempts  int
	LockDuration time.Duration

	// PasswordExpiryDays of zero or less disables expiry.
	PasswordExpiryDays int

	Now func() time.Time
}

// NewAccountGuard returns a guard with the default thresholds.
func NewAccountGuard(s store.Store) *AccountGuard {
	return &AccountGuard{
		Store:              s,
		MaxAttempts:        DefaultMaxAttempts,
		LockDuration:       DefaultLockDuration,
		PasswordExpiryDays: DefaultPasswordExpiryDays,
	}
}

func (g *AccountGuard) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *AccountGuard) maxAttempts() int {
	if g.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return g.MaxAttempts
}

func (g *AccountGuard) lockDuration() time.Duration {
	if g.LockDuration <= 0 {
		return DefaultLockDuration
	}
	return g.LockDuration
}

// IsLocked reports whether u is inside its lockout window. An expired lock
// is cleared in storage and on u itself.
func (g *AccountGuard) IsLocked(ctx context.Context, u *domain.User) (LockStatus, error) {
	now := g.now()
	if u.LockUntil == nil {
		return LockStatus{}, nil
	}
	if st := lockStatus(u.LockUntil, now); st.Locked {
		return st, nil
	}

	cleared, err := g.Store.Users().ClearExpiredLock(ctx, u.Username, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LockStatus{}, ErrUserNotFound
		}
		return LockStatus{}, storageErr(err)
	}

	if cleared {
		slogx.FromContext(ctx).Info("account lock expired", slog.String("username", u.Username))
		u.FailedAttempts = 0
		u.LockUntil = nil
		return LockStatus{}, nil
	}

	// Someone else changed the row between our read and the clear, most
	// likely a concurrent failure re-locking it. Trust the fresh row.
	fresh, err := g.Store.Users().GetUserByUsername(ctx, u.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LockStatus{}, ErrUserNotFound
		}
		return LockStatus{}, storageErr(err)
	}
	u.FailedAttempts = fresh.FailedAttempts
	u.LockUntil = fresh.LockUntil
	return lockStatus(u.LockUntil, now), nil
}

// RegisterFailure records one failed attempt for username and engages the
// lock once the count reaches MaxAttempts. The increment is a single
// statement so concurrent failures are never lost.
func (g *AccountGuard) RegisterFailure(ctx context.Context, username string) (domain.GuardState, error) {
	now := g.now()
	limit := g.maxAttempts()

	state, err := g.Store.Users().IncrementFailedAttempts(ctx, username, limit, now.Add(g.lockDuration()))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.GuardState{}, ErrUserNotFound
		}
		return domain.GuardState{}, storageErr(err)
	}

	if state.LockUntil != nil && state.FailedAttempts == limit {
		slogx.FromContext(ctx).Warn("account locked",
			slog.String("username", username),
			slog.Int("failed_attempts", state.FailedAttempts),
			slog.Time("lock_until", *state.LockUntil),
		)
	}
	return state, nil
}

// Reset clears the failure counter and any lock. Calling it twice is the
// same as calling it once.
func (g *AccountGuard) Reset(ctx context.Context, username string) error {
	err := g.Store.Users().UpdateGuardState(ctx, username, domain.GuardState{})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return storageErr(err)
	}
	return nil
}

// IsPasswordExpired reports whether u must change its password before
// signing in. A missing last-set time counts as expired.
func (g *AccountGuard) IsPasswordExpired(u domain.User) bool {
	if g.PasswordExpiryDays <= 0 {
		return false
	}
	if u.PasswordLastSet == nil {
		return true
	}
	expiry := u.PasswordLastSet.Add(time.Duration(g.PasswordExpiryDays) * 24 * time.Hour)
	return !g.now().Before(expiry)
}

// RemainingAttempts is how many more failures the account takes before it
// locks.
func (g *AccountGuard) RemainingAttempts(failed int) int {
	return max(0, g.maxAttempts()-failed)
}
