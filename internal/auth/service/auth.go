package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/pkg/cryptox"
	"github.com/aussiebroadwan/spendsense/pkg/slogx"
)

// Outcome is where a session ended up after a successful operation.
type Outcome struct {
	State    domain.SessionState
	Identity domain.Identity
}

// Err returns ErrPasswordExpired when the session still has to change its
// password, nil otherwise.
func (o Outcome) Err() error {
	if o.State == domain.StateMustChangePassword {
		return ErrPasswordExpired
	}
	return nil
}

// SignupRequest is a self-service account creation.
type SignupRequest struct {
	Username string
	Password string
	Confirm  string
	Role     domain.Role
}

// ChangePasswordRequest changes the session user's password. Current is
// ignored when the change is forced by an expired password.
type ChangePasswordRequest struct {
	Current string
	New     string
	Confirm string
}

// AuthService drives the login state machine of a Session.
type AuthService struct {
	Credentials *CredentialService
	Guard       *AccountGuard

	// CountValidationFailures makes form validation errors (empty username,
	// policy, mismatch, duplicate) count toward the session lock as well as
	// authentication failures.
	CountValidationFailures bool
}

var (
	dummyOnce sync.Once
	dummyCred cryptox.Credential
)

// burnVerify runs a verification that cannot succeed so an unknown username
// costs as much time as a wrong password.
func burnVerify(password string) {
	dummyOnce.Do(func() {
		cred, err := cryptox.HashPassword("spendsense-dummy-credential")
		if err == nil {
			dummyCred = cred
		}
	})
	_ = cryptox.VerifyPassword(password, dummyCred)
}

// Login authenticates username on an anonymous session. Failures return
// *CredentialsError or *LockedError; an expired password returns an Outcome
// in StateMustChangePassword.
func (s *AuthService) Login(ctx context.Context, sess *Session, username, password string) (Outcome, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	l := slogx.FromContext(ctx).With(slog.String("sid", sessionTag(sess.ID)))

	if sess.state != domain.StateAnonymous {
		return Outcome{}, ErrInvalidState
	}

	guard := sess.guard
	if st := guard.IsGloballyLocked(); st.Locked {
		return Outcome{}, &LockedError{Scope: LockScopeGlobal, MinutesRemaining: st.MinutesRemaining}
	}

	user, err := s.Credentials.Get(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		burnVerify(password)
		l.Info("login failed", slog.String("username", username), slog.String("reason", "unknown_user"))
		// Report the account as if this were its first failure so the
		// response does not reveal the username is unknown.
		return Outcome{}, s.globalFailure(l, guard, s.Guard.RemainingAttempts(1))
	}
	if err != nil {
		return Outcome{}, err
	}

	st, err := s.Guard.IsLocked(ctx, &user)
	if err != nil {
		return Outcome{}, err
	}
	if st.Locked {
		guard.RegisterGlobalFailure()
		l.Info("login refused", slog.String("username", username), slog.String("reason", "account_locked"))
		return Outcome{}, &LockedError{Scope: LockScopeAccount, MinutesRemaining: st.MinutesRemaining}
	}

	cred := cryptox.Credential{Salt: user.Salt, Hash: user.PasswordHash, Params: user.HashParams}
	if err := cryptox.VerifyPassword(password, cred); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("stored credential is malformed", slog.String("username", username), slog.Any("error", err))
		}

		// Persist the per-user failure first. If that write fails the session
		// counter is left alone.
		state, err := s.Guard.RegisterFailure(ctx, username)
		if err != nil {
			return Outcome{}, err
		}
		l.Info("login failed", slog.String("username", username), slog.String("reason", "wrong_password"))

		guard.RegisterGlobalFailure()
		if st := lockStatus(state.LockUntil, s.Guard.now()); st.Locked {
			return Outcome{}, &LockedError{Scope: LockScopeAccount, MinutesRemaining: st.MinutesRemaining}
		}
		if gst := guard.IsGloballyLocked(); gst.Locked {
			l.Warn("session locked", slog.Int("remaining_minutes", gst.MinutesRemaining))
			return Outcome{}, &LockedError{Scope: LockScopeGlobal, MinutesRemaining: gst.MinutesRemaining}
		}
		return Outcome{}, &CredentialsError{
			RemainingUser:   s.Guard.RemainingAttempts(state.FailedAttempts),
			RemainingGlobal: guard.Remaining(),
		}
	}

	if err := s.Guard.Reset(ctx, username); err != nil {
		return Outcome{}, err
	}
	guard.ResetGlobal()

	sess.identity = domain.Identity{UserID: user.ID, Username: user.Username, Role: user.Role}
	if s.Guard.IsPasswordExpired(user) {
		sess.state = domain.StateMustChangePassword
		l.Info("login requires password change", slog.String("username", username))
	} else {
		sess.state = domain.StateAuthenticated
		l.Info("login succeeded", slog.String("username", username), slog.String("role", user.Role.String()))
	}
	return Outcome{State: sess.state, Identity: sess.identity}, nil
}

// globalFailure counts an authentication failure against the session and
// builds the error the caller sees.
func (s *AuthService) globalFailure(l *slog.Logger, guard *SessionGuard, remainingUser int) error {
	guard.RegisterGlobalFailure()
	if st := guard.IsGloballyLocked(); st.Locked {
		l.Warn("session locked", slog.Int("remaining_minutes", st.MinutesRemaining))
		return &LockedError{Scope: LockScopeGlobal, MinutesRemaining: st.MinutesRemaining}
	}
	return &CredentialsError{RemainingUser: remainingUser, RemainingGlobal: guard.Remaining()}
}

// validationFailure returns err, counting it against the session only when
// CountValidationFailures is set.
func (s *AuthService) validationFailure(guard *SessionGuard, err error) error {
	if s.CountValidationFailures {
		guard.RegisterGlobalFailure()
	}
	return err
}

// Signup creates an account from an anonymous session. The session stays
// anonymous; the new user signs in separately.
func (s *AuthService) Signup(ctx context.Context, sess *Session, req SignupRequest) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != domain.StateAnonymous {
		return ErrInvalidState
	}

	guard := sess.guard
	if st := guard.IsGloballyLocked(); st.Locked {
		return &LockedError{Scope: LockScopeGlobal, MinutesRemaining: st.MinutesRemaining}
	}

	if strings.TrimSpace(req.Username) == "" {
		return s.validationFailure(guard, ErrEmptyUsername)
	}
	if !req.Role.Valid() {
		return s.validationFailure(guard, ErrInvalidRole)
	}
	if err := ValidatePassword(req.Password); err != nil {
		return s.validationFailure(guard, err)
	}
	if req.Password != req.Confirm {
		return s.validationFailure(guard, ErrPasswordMismatch)
	}

	if _, err := s.Credentials.Create(ctx, req.Username, req.Password, req.Role); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return s.validationFailure(guard, err)
		}
		return err
	}

	guard.ResetGlobal()
	return nil
}

// ChangePassword sets a new password for the session user. In
// StateMustChangePassword it is forced and skips the current password. In
// StateAuthenticated the current password is verified first.
func (s *AuthService) ChangePassword(ctx context.Context, sess *Session, req ChangePasswordRequest) (Outcome, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	l := slogx.FromContext(ctx).With(slog.String("sid", sessionTag(sess.ID)))

	forced := sess.state == domain.StateMustChangePassword
	if !forced && sess.state != domain.StateAuthenticated {
		return Outcome{}, ErrNotAuthenticated
	}

	guard := sess.guard
	if st := guard.IsGloballyLocked(); st.Locked {
		return Outcome{}, &LockedError{Scope: LockScopeGlobal, MinutesRemaining: st.MinutesRemaining}
	}

	username := sess.identity.Username

	if !forced {
		user, err := s.Credentials.Get(ctx, username)
		if err != nil {
			return Outcome{}, err
		}
		cred := cryptox.Credential{Salt: user.Salt, Hash: user.PasswordHash, Params: user.HashParams}
		if err := cryptox.VerifyPassword(req.Current, cred); err != nil {
			l.Info("password change refused", slog.String("username", username), slog.String("reason", "wrong_current_password"))
			return Outcome{}, s.globalFailure(l, guard, s.Guard.RemainingAttempts(user.FailedAttempts))
		}
	}

	if req.New != req.Confirm {
		return Outcome{}, s.validationFailure(guard, ErrPasswordMismatch)
	}
	if err := ValidatePassword(req.New); err != nil {
		return Outcome{}, s.validationFailure(guard, err)
	}

	if err := s.Credentials.SetPassword(ctx, username, req.New); err != nil {
		return Outcome{}, err
	}
	guard.ResetGlobal()

	// The role may have changed since login.
	user, err := s.Credentials.Get(ctx, username)
	if err != nil {
		return Outcome{}, err
	}

	sess.identity = domain.Identity{UserID: user.ID, Username: user.Username, Role: user.Role}
	sess.state = domain.StateAuthenticated
	return Outcome{State: sess.state, Identity: sess.identity}, nil
}

// Logout returns the session to anonymous and resets its failure counter.
func (s *AuthService) Logout(ctx context.Context, sess *Session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != domain.StateAnonymous {
		slogx.FromContext(ctx).Info("logout",
			slog.String("sid", sessionTag(sess.ID)),
			slog.String("username", sess.identity.Username),
		)
	}
	sess.setAnonymousLocked()
	sess.guard.ResetGlobal()
}

// sessionTag is a log-safe prefix of a session ID.
func sessionTag(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
