// Package storetest holds the behaviour every store driver must share. Driver
// packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/store"
	"github.com/aussiebroadwan/spendsense/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns a migrated, empty store. It should register its own cleanup.
type Factory func(t *testing.T) store.Store

func newUser(username string, role domain.Role) store.NewUser {
	return store.NewUser{
		ID:              idx.New().String(),
		Username:        username,
		Role:            role,
		Salt:            "00112233445566778899aabbccddeeff",
		PasswordHash:    "deadbeef",
		HashParams:      "pbkdf2-sha256$i=200000",
		PasswordLastSet: time.Now().UTC(),
	}
}

// Run exercises the Users repository against the store built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicateUsername(t, newStore(t)) })
	t.Run("ConcurrentDuplicateCreate", func(t *testing.T) { testConcurrentDuplicateCreate(t, newStore(t)) })
	t.Run("UsernameIsCaseSensitive", func(t *testing.T) { testCaseSensitive(t, newStore(t)) })
	t.Run("CreateUserIfAbsent", func(t *testing.T) { testCreateIfAbsent(t, newStore(t)) })
	t.Run("ListAndCount", func(t *testing.T) { testListAndCount(t, newStore(t)) })
	t.Run("UpdatePassword", func(t *testing.T) { testUpdatePassword(t, newStore(t)) })
	t.Run("GuardState", func(t *testing.T) { testGuardState(t, newStore(t)) })
	t.Run("IncrementFailedAttempts", func(t *testing.T) { testIncrement(t, newStore(t)) })
	t.Run("ConcurrentIncrement", func(t *testing.T) { testConcurrentIncrement(t, newStore(t)) })
	t.Run("ClearExpiredLock", func(t *testing.T) { testClearExpiredLock(t, newStore(t)) })
	t.Run("WithTxRollback", func(t *testing.T) { testWithTxRollback(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	nu := newUser("mario", domain.RoleAdmin)
	require.NoError(t, s.Users().CreateUser(ctx, nu))

	u, err := s.Users().GetUserByUsername(ctx, "mario")
	require.NoError(t, err)
	require.Equal(t, nu.ID, u.ID)
	require.Equal(t, domain.RoleAdmin, u.Role)
	require.Equal(t, nu.Salt, u.Salt)
	require.Equal(t, nu.PasswordHash, u.PasswordHash)
	require.Equal(t, nu.HashParams, u.HashParams)
	require.Zero(t, u.FailedAttempts)
	require.Nil(t, u.LockUntil)
	require.NotNil(t, u.PasswordLastSet)
	require.WithinDuration(t, nu.PasswordLastSet, *u.PasswordLastSet, time.Millisecond)
	require.False(t, u.CreatedAt.IsZero())

	byID, err := s.Users().GetUserByID(ctx, nu.ID)
	require.NoError(t, err)
	require.Equal(t, u.Username, byID.Username)
}

func testDuplicateUsername(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Users().CreateUser(ctx, newUser("lucas", domain.RoleManager)))

	err := s.Users().CreateUser(ctx, newUser("lucas", domain.RoleViewer))
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	// The original row is untouched
	u, err := s.Users().GetUserByUsername(ctx, "lucas")
	require.NoError(t, err)
	require.Equal(t, domain.RoleManager, u.Role)
}

func testConcurrentDuplicateCreate(t *testing.T, s store.Store) {
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		duplicate int
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Users().CreateUser(ctx, newUser("racer", domain.RoleViewer))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrAlreadyExists):
				duplicate++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, created)
	require.Equal(t, workers-1, duplicate)
}

func testCaseSensitive(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Users().CreateUser(ctx, newUser("Irene", domain.RoleViewer)))
	require.NoError(t, s.Users().CreateUser(ctx, newUser("irene", domain.RoleViewer)))

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func testCreateIfAbsent(t *testing.T, s store.Store) {
	ctx := context.Background()

	created, err := s.Users().CreateUserIfAbsent(ctx, newUser("mario", domain.RoleAdmin))
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.Users().CreateUserIfAbsent(ctx, newUser("mario", domain.RoleViewer))
	require.NoError(t, err)
	require.False(t, created)

	u, err := s.Users().GetUserByUsername(ctx, "mario")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, u.Role)
}

func testListAndCount(t *testing.T, s store.Store) {
	ctx := context.Background()

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	for _, name := range []string{"mario", "irene", "lucas"} {
		require.NoError(t, s.Users().CreateUser(ctx, newUser(name, domain.RoleViewer)))
	}

	users, err := s.Users().ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	require.Equal(t, "irene", users[0].Username)
	require.Equal(t, "lucas", users[1].Username)
	require.Equal(t, "mario", users[2].Username)

	n, err = s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func testUpdatePassword(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Users().CreateUser(ctx, newUser("irene", domain.RoleViewer)))

	setAt := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	require.NoError(t, s.Users().UpdatePassword(ctx, "irene", "ffee", "c0ffee", "pbkdf2-sha256$i=1000", setAt))

	u, err := s.Users().GetUserByUsername(ctx, "irene")
	require.NoError(t, err)
	require.Equal(t, "ffee", u.Salt)
	require.Equal(t, "c0ffee", u.PasswordHash)
	require.Equal(t, "pbkdf2-sha256$i=1000", u.HashParams)
	require.NotNil(t, u.PasswordLastSet)
	require.True(t, setAt.Equal(*u.PasswordLastSet))

	err = s.Users().UpdatePassword(ctx, "nobody", "a", "b", "", setAt)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testGuardState(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Users().CreateUser(ctx, newUser("lucas", domain.RoleManager)))

	lock := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Users().UpdateGuardState(ctx, "lucas", domain.GuardState{FailedAttempts: 5, LockUntil: &lock}))

	u, err := s.Users().GetUserByUsername(ctx, "lucas")
	require.NoError(t, err)
	require.Equal(t, 5, u.FailedAttempts)
	require.NotNil(t, u.LockUntil)
	require.True(t, lock.Equal(*u.LockUntil))

	// Reset twice, the second is a no-op
	for range 2 {
		require.NoError(t, s.Users().UpdateGuardState(ctx, "lucas", domain.GuardState{}))
		u, err = s.Users().GetUserByUsername(ctx, "lucas")
		require.NoError(t, err)
		require.Zero(t, u.FailedAttempts)
		require.Nil(t, u.LockUntil)
	}

	err = s.Users().UpdateGuardState(ctx, "nobody", domain.GuardState{})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testIncrement(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Users().CreateUser(ctx, newUser("mario", domain.RoleAdmin)))

	lock := time.Date(2030, 1, 1, 0, 15, 0, 0, time.UTC)
	for i := 1; i < 5; i++ {
		st, err := s.Users().IncrementFailedAttempts(ctx, "mario", 5, lock)
		require.NoError(t, err)
		require.Equal(t, i, st.FailedAttempts)
		require.Nil(t, st.LockUntil, "attempt %d should not lock", i)
	}

	st, err := s.Users().IncrementFailedAttempts(ctx, "mario", 5, lock)
	require.NoError(t, err)
	require.Equal(t, 5, st.FailedAttempts)
	require.NotNil(t, st.LockUntil)
	require.True(t, lock.Equal(*st.LockUntil))

	_, err = s.Users().IncrementFailedAttempts(ctx, "nobody", 5, lock)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentIncrement(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Users().CreateUser(ctx, newUser("irene", domain.RoleViewer)))

	const workers = 10
	lock := time.Now().Add(time.Hour).UTC()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Users().IncrementFailedAttempts(ctx, "irene", 100, lock); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	u, err := s.Users().GetUserByUsername(ctx, "irene")
	require.NoError(t, err)
	require.Equal(t, workers, u.FailedAttempts, "no increments may be lost")
}

func testClearExpiredLock(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Users().CreateUser(ctx, newUser("mario", domain.RoleAdmin)))

	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	lock := now.Add(10 * time.Minute)
	require.NoError(t, s.Users().UpdateGuardState(ctx, "mario", domain.GuardState{FailedAttempts: 5, LockUntil: &lock}))

	// Still active: nothing cleared
	cleared, err := s.Users().ClearExpiredLock(ctx, "mario", now)
	require.NoError(t, err)
	require.False(t, cleared)

	// At and after the lock end it clears
	cleared, err = s.Users().ClearExpiredLock(ctx, "mario", lock)
	require.NoError(t, err)
	require.True(t, cleared)

	u, err := s.Users().GetUserByUsername(ctx, "mario")
	require.NoError(t, err)
	require.Zero(t, u.FailedAttempts)
	require.Nil(t, u.LockUntil)

	// Nothing left to clear
	cleared, err = s.Users().ClearExpiredLock(ctx, "mario", lock.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, cleared)
}

func testWithTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		for i := range 3 {
			if err := tx.Users().CreateUser(ctx, newUser(fmt.Sprintf("user%d", i), domain.RoleViewer)); err != nil {
				return err
			}
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().CreateUser(ctx, newUser("committed", domain.RoleViewer))
	}))
	n, err = s.Users().CountUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Users().GetUserByUsername(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Users().GetUserByID(ctx, idx.New().String())
	require.ErrorIs(t, err, store.ErrNotFound)
}
