package service

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateUsername  = errors.New("duplicate_username")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrAccountLocked      = errors.New("account_locked")
	ErrGlobalLockActive   = errors.New("global_lock_active")
	ErrPasswordPolicy     = errors.New("password_policy")
	ErrPasswordMismatch   = errors.New("password_mismatch")
	ErrEmptyUsername      = errors.New("empty_username")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrNotAuthenticated   = errors.New("not_authenticated")
	ErrInvalidState       = errors.New("invalid_state")

	// ErrPasswordExpired is soft. Login still succeeds but leaves the session
	// in StateMustChangePassword, see Outcome.Err.
	ErrPasswordExpired = errors.New("password_expired")

	// ErrStorage wraps every persistence failure. Nothing is retried.
	ErrStorage = errors.New("storage_error")
)

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// CredentialsError is a failed login. The remaining counts are what is left
// before the account and the session lock.
type CredentialsError struct {
	// RemainingUser for an unknown username is what a first failure would
	// leave, so both cases look the same to the caller.
	RemainingUser   int
	RemainingGlobal int
}

func (e *CredentialsError) Error() string {
	return "invalid_credentials"
}

func (e *CredentialsError) Is(target error) bool { return target == ErrInvalidCredentials }

// LockScope says which guard produced a LockedError.
type LockScope string

const (
	LockScopeAccount LockScope = "account"
	LockScopeGlobal  LockScope = "global"
)

// LockedError reports an active lockout window.
type LockedError struct {
	Scope            LockScope
	MinutesRemaining int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s locked, try again in ~%d min", e.Scope, e.MinutesRemaining)
}

func (e *LockedError) Is(target error) bool {
	switch e.Scope {
	case LockScopeAccount:
		return target == ErrAccountLocked
	case LockScopeGlobal:
		return target == ErrGlobalLockActive
	}
	return false
}

// PolicyError is a password that does not meet ValidatePassword.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string { return "password_policy: " + e.Reason }

func (e *PolicyError) Is(target error) bool { return target == ErrPasswordPolicy }
