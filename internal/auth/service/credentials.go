package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/store"
	"github.com/aussiebroadwan/spendsense/pkg/cryptox"
	"github.com/aussiebroadwan/spendsense/pkg/idx"
	"github.com/aussiebroadwan/spendsense/pkg/slogx"
)

// CredentialService owns user records. Passwords are hashed here and never
// reach the store in plaintext.
type CredentialService struct {
	Store store.Store

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *CredentialService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create hashes password and inserts a new user. It does not apply the
// password policy, callers that take user input check it first.
func (s *CredentialService) Create(ctx context.Context, username, password string, role domain.Role) (domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return domain.User{}, ErrEmptyUsername
	}
	if !role.Valid() {
		return domain.User{}, ErrInvalidRole
	}

	nu, err := s.newUser(username, password, role)
	if err != nil {
		return domain.User{}, err
	}

	if err := s.Store.Users().CreateUser(ctx, nu); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrDuplicateUsername
		}
		return domain.User{}, storageErr(err)
	}

	slogx.FromContext(ctx).Info("user created",
		slog.String("user_id", nu.ID),
		slog.String("username", username),
		slog.String("role", role.String()),
	)

	setAt := nu.PasswordLastSet
	return domain.User{
		ID:              nu.ID,
		Username:        nu.Username,
		Role:            nu.Role,
		Salt:            nu.Salt,
		PasswordHash:    nu.PasswordHash,
		HashParams:      nu.HashParams,
		PasswordLastSet: &setAt,
		CreatedAt:       setAt,
		UpdatedAt:       setAt,
	}, nil
}

func (s *CredentialService) newUser(username, password string, role domain.Role) (store.NewUser, error) {
	cred, err := cryptox.HashPassword(password)
	if err != nil {
		return store.NewUser{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	return store.NewUser{
		ID:              idx.NewAt(now).String(),
		Username:        username,
		Role:            role,
		Salt:            cred.Salt,
		PasswordHash:    cred.Hash,
		HashParams:      cred.Params,
		PasswordLastSet: now,
	}, nil
}

// Get fetches a user by username.
func (s *CredentialService) Get(ctx context.Context, username string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, storageErr(err)
	}
	return u, nil
}

// SetPassword replaces the credential with a fresh salt and hash and marks
// the password as set now.
func (s *CredentialService) SetPassword(ctx context.Context, username, newPassword string) error {
	cred, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.Store.Users().UpdatePassword(ctx, username, cred.Salt, cred.Hash, cred.Params, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return storageErr(err)
	}

	slogx.FromContext(ctx).Info("password changed", slog.String("username", username))
	return nil
}

// UpdateGuardState overwrites the lockout fields of a user.
func (s *CredentialService) UpdateGuardState(ctx context.Context, username string, failedAttempts int, lockUntil *time.Time) error {
	err := s.Store.Users().UpdateGuardState(ctx, username, domain.GuardState{
		FailedAttempts: failedAttempts,
		LockUntil:      lockUntil,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return storageErr(err)
	}
	return nil
}

// ListAll returns every user without hash material, ordered by username.
func (s *CredentialService) ListAll(ctx context.Context) ([]domain.UserSummary, error) {
	users, err := s.Store.Users().ListUsers(ctx)
	if err != nil {
		return nil, storageErr(err)
	}

	out := make([]domain.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, u.Summary())
	}
	return out, nil
}

// Count returns the number of stored users.
func (s *CredentialService) Count(ctx context.Context) (int, error) {
	n, err := s.Store.Users().CountUsers(ctx)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

// SeedIfAbsent inserts each user whose username is not already taken, in a
// single transaction. Existing rows are never modified. Seed passwords are
// not checked against the password policy.
func (s *CredentialService) SeedIfAbsent(ctx context.Context, users map[string]domain.SeedUser) (int, error) {
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)

	// Hash before opening the transaction so the write lock is held briefly.
	rows := make([]store.NewUser, 0, len(names))
	for _, name := range names {
		seed := users[name]
		if strings.TrimSpace(name) == "" {
			return 0, ErrEmptyUsername
		}
		if !seed.Role.Valid() {
			return 0, fmt.Errorf("%w: %q for %s", ErrInvalidRole, seed.Role, name)
		}
		nu, err := s.newUser(name, seed.Password, seed.Role)
		if err != nil {
			return 0, err
		}
		rows = append(rows, nu)
	}

	var created int
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		created = 0
		for _, nu := range rows {
			ok, err := tx.Users().CreateUserIfAbsent(ctx, nu)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, storageErr(err)
	}

	if created > 0 {
		slogx.FromContext(ctx).Info("seeded users", slog.Int("created", created))
	}
	return created, nil
}
