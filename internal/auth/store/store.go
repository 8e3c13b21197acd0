package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. Repositories hang off it as methods so a Tx-scoped Store
// hands out Tx-scoped repos and nobody accidentally nests transactions.
type Store interface {
	Users() Users

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. It commits when fn returns nil
	// and rolls back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// NewUser is the insert shape for a user. Credential fields arrive already
// hashed; the store never sees a plaintext password.
type NewUser struct {
	ID              string
	Username        string
	Role            domain.Role
	Salt            string
	PasswordHash    string
	HashParams      string
	PasswordLastSet time.Time
}

// Users is the credential store.
type Users interface {
	// CreateUser inserts u. A taken username returns ErrAlreadyExists, the
	// unique index decides concurrent inserts.
	CreateUser(ctx context.Context, u NewUser) error

	// CreateUserIfAbsent inserts u unless the username is taken. It reports
	// whether a row was written.
	CreateUserIfAbsent(ctx context.Context, u NewUser) (bool, error)

	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// ListUsers returns every user ordered by username.
	ListUsers(ctx context.Context) ([]domain.User, error)

	CountUsers(ctx context.Context) (int, error)

	// UpdatePassword replaces salt, hash and params together and sets
	// password_last_set in the same statement.
	UpdatePassword(ctx context.Context, username, salt, hash, params string, setAt time.Time) error

	// UpdateGuardState overwrites failed_attempts and lock_until.
	UpdateGuardState(ctx context.Context, username string, state domain.GuardState) error

	// IncrementFailedAttempts atomically bumps failed_attempts and, once the
	// new count reaches maxAttempts, sets lock_until. It returns the state
	// after the update.
	IncrementFailedAttempts(ctx context.Context, username string, maxAttempts int, lockUntil time.Time) (domain.GuardState, error)

	// ClearExpiredLock zeroes failed_attempts and lock_until only if the lock
	// is still set and ends at or before now. It reports whether a row changed,
	// so a lock re-engaged by a concurrent failure is left alone.
	ClearExpiredLock(ctx context.Context, username string, now time.Time) (bool, error)
}
