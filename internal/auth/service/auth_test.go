package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/service"
	"github.com/aussiebroadwan/spendsense/internal/auth/store"
	"github.com/stretchr/testify/require"
)

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	out, err := f.auth.Login(ctx, sess, "mario", "1234")
	require.NoError(t, err)
	require.NoError(t, out.Err())
	require.Equal(t, domain.StateAuthenticated, out.State)
	require.Equal(t, "mario", out.Identity.Username)
	require.Equal(t, domain.RoleAdmin, out.Identity.Role)

	require.True(t, sess.IsAuthenticated())
	id, ok := sess.CurrentUser()
	require.True(t, ok)
	require.Equal(t, out.Identity, id)
}

func TestLogin_WrongPasswordReportsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	_, err := f.auth.Login(ctx, sess, "lucas", "nope")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)

	var ce *service.CredentialsError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 4, ce.RemainingUser)
	require.Equal(t, 11, ce.RemainingGlobal)
	require.False(t, sess.IsAuthenticated())

	u, err := f.creds.Get(ctx, "lucas")
	require.NoError(t, err)
	require.Equal(t, 1, u.FailedAttempts)
}

func TestLogin_UnknownUserIsGeneric(t *testing.T) {
	f := newFixture(t)
	sess := f.newSession(t)

	_, err := f.auth.Login(context.Background(), sess, "ghost", "whatever")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	require.NotErrorIs(t, err, service.ErrUserNotFound)

	var ce *service.CredentialsError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, 11, ce.RemainingGlobal)

	// Same numbers a real account reports after its first failure.
	_, err = f.auth.Login(context.Background(), f.newSession(t), "lucas", "nope")
	var real *service.CredentialsError
	require.ErrorAs(t, err, &real)
	require.Equal(t, real.RemainingUser, ce.RemainingUser)
	require.Equal(t, service.DefaultMaxAttempts-1, ce.RemainingUser)
}

type failingUsers struct {
	store.Users
	err error
}

func (u failingUsers) IncrementFailedAttempts(context.Context, string, int, time.Time) (domain.GuardState, error) {
	return domain.GuardState{}, u.err
}

type failingStore struct {
	store.Store
	users store.Users
}

func (s failingStore) Users() store.Users { return s.users }

func TestLogin_StorageFailureLeavesSessionCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	guard := service.NewAccountGuard(failingStore{
		Store: f.store,
		users: failingUsers{Users: f.store.Users(), err: errors.New("disk gone")},
	})
	guard.Now = f.clock.Now
	auth := &service.AuthService{Credentials: f.creds, Guard: guard}

	_, err := auth.Login(ctx, sess, "lucas", "nope")
	require.ErrorIs(t, err, service.ErrStorage)
	require.ErrorContains(t, err, "disk gone")
	require.NotErrorIs(t, err, service.ErrInvalidCredentials)

	require.Equal(t, service.DefaultGlobalMaxAttempts, sess.Guard().Remaining())
	require.False(t, sess.IsAuthenticated())

	u, err := f.creds.Get(ctx, "lucas")
	require.NoError(t, err)
	require.Zero(t, u.FailedAttempts)
}

func TestLogin_AccountLocksOnFifthFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	for i := 1; i < 5; i++ {
		_, err := f.auth.Login(ctx, sess, "mario", "wrong")
		require.ErrorIs(t, err, service.ErrInvalidCredentials, "attempt %d", i)
	}

	_, err := f.auth.Login(ctx, sess, "mario", "wrong")
	require.ErrorIs(t, err, service.ErrAccountLocked)
	var le *service.LockedError
	require.ErrorAs(t, err, &le)
	require.Equal(t, service.LockScopeAccount, le.Scope)
	require.Equal(t, 15, le.MinutesRemaining)

	// Still locked before expiry, even with the right password.
	f.clock.Advance(5 * time.Minute)
	_, err = f.auth.Login(ctx, sess, "mario", "wrong")
	require.ErrorIs(t, err, service.ErrAccountLocked)
	require.ErrorAs(t, err, &le)
	require.Equal(t, 10, le.MinutesRemaining)

	_, err = f.auth.Login(ctx, sess, "mario", "1234")
	require.ErrorIs(t, err, service.ErrAccountLocked)

	// A fresh session does not get around the persisted lock.
	_, err = f.auth.Login(ctx, f.newSession(t), "mario", "1234")
	require.ErrorIs(t, err, service.ErrAccountLocked)

	f.clock.Advance(10 * time.Minute)
	out, err := f.auth.Login(ctx, f.newSession(t), "mario", "1234")
	require.NoError(t, err)
	require.Equal(t, domain.StateAuthenticated, out.State)

	u, err := f.creds.Get(ctx, "mario")
	require.NoError(t, err)
	require.Equal(t, 0, u.FailedAttempts)
	require.Nil(t, u.LockUntil)
}

func TestLogin_GlobalLockAcrossUsernames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	for i := 1; i < 12; i++ {
		_, err := f.auth.Login(ctx, sess, fmt.Sprintf("ghost%d", i), "x")
		require.ErrorIs(t, err, service.ErrInvalidCredentials, "attempt %d", i)
	}

	_, err := f.auth.Login(ctx, sess, "ghost12", "x")
	require.ErrorIs(t, err, service.ErrGlobalLockActive)

	_, err = f.auth.Login(ctx, sess, "mario", "1234")
	require.ErrorIs(t, err, service.ErrGlobalLockActive)
	var le *service.LockedError
	require.ErrorAs(t, err, &le)
	require.Equal(t, service.LockScopeGlobal, le.Scope)
	require.Equal(t, 15, le.MinutesRemaining)
	require.False(t, sess.IsAuthenticated())

	// The lock belongs to this session only.
	_, err = f.auth.Login(ctx, f.newSession(t), "mario", "1234")
	require.NoError(t, err)

	f.clock.Advance(15 * time.Minute)
	_, err = f.auth.Login(ctx, sess, "lucas", "abcd")
	require.NoError(t, err)
}

func TestLogin_SuccessResetsCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	for range 3 {
		_, err := f.auth.Login(ctx, sess, "irene", "wrong")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	}

	_, err := f.auth.Login(ctx, sess, "irene", "pass")
	require.NoError(t, err)
	require.Equal(t, service.DefaultGlobalMaxAttempts, sess.Guard().Remaining())

	u, err := f.creds.Get(ctx, "irene")
	require.NoError(t, err)
	require.Equal(t, 0, u.FailedAttempts)
}

func TestLogin_RejectsNonAnonymousSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	_, err := f.auth.Login(ctx, sess, "mario", "1234")
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, sess, "lucas", "abcd")
	require.ErrorIs(t, err, service.ErrInvalidState)
}

func TestLogin_ExpiredPasswordForcesChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	f.clock.Advance(91 * 24 * time.Hour)

	out, err := f.auth.Login(ctx, sess, "lucas", "abcd")
	require.NoError(t, err)
	require.ErrorIs(t, out.Err(), service.ErrPasswordExpired)
	require.Equal(t, domain.StateMustChangePassword, sess.State())
	require.False(t, sess.IsAuthenticated())
	_, ok := sess.CurrentUser()
	require.False(t, ok)
	_, err = sess.RequireAuthenticated()
	require.ErrorIs(t, err, service.ErrPasswordExpired)

	// Forced change does not ask for the current password.
	_, err = f.auth.ChangePassword(ctx, sess, service.ChangePasswordRequest{New: "N3w!password", Confirm: "N3w!passwordX"})
	require.ErrorIs(t, err, service.ErrPasswordMismatch)

	_, err = f.auth.ChangePassword(ctx, sess, service.ChangePasswordRequest{New: "weak", Confirm: "weak"})
	require.ErrorIs(t, err, service.ErrPasswordPolicy)
	require.Equal(t, domain.StateMustChangePassword, sess.State())

	out, err = f.auth.ChangePassword(ctx, sess, service.ChangePasswordRequest{New: "N3w!password", Confirm: "N3w!password"})
	require.NoError(t, err)
	require.Equal(t, domain.StateAuthenticated, out.State)
	require.Equal(t, domain.RoleManager, out.Identity.Role)
	require.True(t, sess.IsAuthenticated())

	// The new password is fresh, so the next login goes straight through.
	f.auth.Logout(ctx, sess)
	out, err = f.auth.Login(ctx, sess, "lucas", "N3w!password")
	require.NoError(t, err)
	require.Equal(t, domain.StateAuthenticated, out.State)
}

func TestChangePassword_Voluntary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	_, err := f.auth.ChangePassword(ctx, sess, service.ChangePasswordRequest{New: "N3w!password", Confirm: "N3w!password"})
	require.ErrorIs(t, err, service.ErrNotAuthenticated)

	_, err = f.auth.Login(ctx, sess, "irene", "pass")
	require.NoError(t, err)

	_, err = f.auth.ChangePassword(ctx, sess, service.ChangePasswordRequest{
		Current: "wrong", New: "N3w!password", Confirm: "N3w!password",
	})
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
	require.Equal(t, service.DefaultGlobalMaxAttempts-1, sess.Guard().Remaining())

	out, err := f.auth.ChangePassword(ctx, sess, service.ChangePasswordRequest{
		Current: "pass", New: "N3w!password", Confirm: "N3w!password",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateAuthenticated, out.State)
	require.Equal(t, domain.RoleViewer, out.Identity.Role)
	require.Equal(t, service.DefaultGlobalMaxAttempts, sess.Guard().Remaining())

	f.auth.Logout(ctx, sess)
	_, err = f.auth.Login(ctx, sess, "irene", "pass")
	require.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	req := service.SignupRequest{Username: "alice", Password: "Abcdef1!", Confirm: "Abcdef1!", Role: domain.RoleViewer}
	require.NoError(t, f.auth.Signup(ctx, sess, req))
	require.Equal(t, domain.StateAnonymous, sess.State())

	require.ErrorIs(t, f.auth.Signup(ctx, sess, req), service.ErrDuplicateUsername)

	out, err := f.auth.Login(ctx, sess, "alice", "Abcdef1!")
	require.NoError(t, err)
	require.Equal(t, domain.RoleViewer, out.Identity.Role)

	require.ErrorIs(t, f.auth.Signup(ctx, sess, service.SignupRequest{
		Username: "bob", Password: "Abcdef1!", Confirm: "Abcdef1!", Role: domain.RoleViewer,
	}), service.ErrInvalidState)
}

func TestSignup_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  service.SignupRequest
		want error
	}{
		{"empty username", service.SignupRequest{Username: " ", Password: "Abcdef1!", Confirm: "Abcdef1!", Role: domain.RoleViewer}, service.ErrEmptyUsername},
		{"invalid role", service.SignupRequest{Username: "bob", Password: "Abcdef1!", Confirm: "Abcdef1!", Role: "Root"}, service.ErrInvalidRole},
		{"policy", service.SignupRequest{Username: "bob", Password: "abcdefgh", Confirm: "abcdefgh", Role: domain.RoleViewer}, service.ErrPasswordPolicy},
		{"mismatch", service.SignupRequest{Username: "bob", Password: "Abcdef1!", Confirm: "Abcdef1?", Role: domain.RoleViewer}, service.ErrPasswordMismatch},
		{"duplicate", service.SignupRequest{Username: "mario", Password: "Abcdef1!", Confirm: "Abcdef1!", Role: domain.RoleViewer}, service.ErrDuplicateUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			sess := f.newSession(t)
			require.ErrorIs(t, f.auth.Signup(ctx, sess, tt.req), tt.want)
			require.Equal(t, service.DefaultGlobalMaxAttempts, sess.Guard().Remaining())

			f.auth.CountValidationFailures = true
			counted := f.newSession(t)
			require.ErrorIs(t, f.auth.Signup(ctx, counted, tt.req), tt.want)
			require.Equal(t, service.DefaultGlobalMaxAttempts-1, counted.Guard().Remaining())
		})
	}
}

func TestSignup_GlobalLockChecked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	for range service.DefaultGlobalMaxAttempts {
		sess.Guard().RegisterGlobalFailure()
	}

	err := f.auth.Signup(ctx, sess, service.SignupRequest{
		Username: "alice", Password: "Abcdef1!", Confirm: "Abcdef1!", Role: domain.RoleViewer,
	})
	require.ErrorIs(t, err, service.ErrGlobalLockActive)

	_, err = f.creds.Get(ctx, "alice")
	require.ErrorIs(t, err, service.ErrUserNotFound)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.newSession(t)

	_, err := f.auth.Login(ctx, sess, "ghost", "x")
	require.Error(t, err)
	_, err = f.auth.Login(ctx, sess, "mario", "1234")
	require.NoError(t, err)

	f.auth.Logout(ctx, sess)
	require.Equal(t, domain.StateAnonymous, sess.State())
	_, ok := sess.CurrentUser()
	require.False(t, ok)
	_, err = sess.RequireAuthenticated()
	require.ErrorIs(t, err, service.ErrNotAuthenticated)

	// Logging out twice is harmless.
	f.auth.Logout(ctx, sess)
	require.Equal(t, domain.StateAnonymous, sess.State())
}
