package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/store"
	"github.com/aussiebroadwan/spendsense/pkg/slogx"
)

// timeLayout is fixed width so lexical order in SQL matches time order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const userColumns = `id, username, role, salt, password_hash, hash_params,
	failed_attempts, lock_until, password_last_set, created_at, updated_at`

const (
	insertUserSQL = `INSERT INTO users (` + userColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, 0, NULL, ?, ?, ?)`

	insertUserIfAbsentSQL = insertUserSQL + ` ON CONFLICT (username) DO NOTHING`

	getUserByUsernameSQL = `SELECT ` + userColumns + ` FROM users WHERE username = ?`
	getUserByIDSQL       = `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	listUsersSQL         = `SELECT ` + userColumns + ` FROM users ORDER BY username`
	countUsersSQL        = `SELECT COUNT(*) FROM users`

	updatePasswordSQL = `UPDATE users
		SET salt = ?, password_hash = ?, hash_params = ?, password_last_set = ?, updated_at = ?
		WHERE username = ?`

	updateGuardStateSQL = `UPDATE users
		SET failed_attempts = ?, lock_until = ?, updated_at = ?
		WHERE username = ?`

	// Right hand sides see the pre-update row, RETURNING sees the new one.
	incrementFailedAttemptsSQL = `UPDATE users
		SET failed_attempts = failed_attempts + 1,
		    lock_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE lock_until END,
		    updated_at = ?
		WHERE username = ?
		RETURNING failed_attempts, lock_until`

	// julianday normalises offsets, rows imported as RFC3339 may not be in UTC.
	clearExpiredLockSQL = `UPDATE users
		SET failed_attempts = 0, lock_until = NULL, updated_at = ?
		WHERE username = ? AND lock_until IS NOT NULL
		  AND julianday(lock_until) <= julianday(?)`
)

type usersRepo struct {
	db dbtx
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatOptionalTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// parseOptionalTime returns nil for NULL and for text that does not parse.
// Callers decide what nil means for their column, the bad value is logged.
func parseOptionalTime(ctx context.Context, username, column string, ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}

	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		// Older rows may carry RFC3339 without fixed fractional seconds.
		if t, err = time.Parse(time.RFC3339Nano, ns.String); err != nil {
			slogx.FromContext(ctx).Warn("malformed timestamp in users table",
				slog.String("username", username),
				slog.String("column", column),
				slog.String("value", ns.String),
			)
			return nil
		}
	}

	t = t.UTC()
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(ctx context.Context, row rowScanner) (domain.User, error) {
	var (
		u                      domain.User
		role                   string
		lockUntil, passwordSet sql.NullString
		createdAt, updatedAt   string
	)

	err := row.Scan(
		&u.ID, &u.Username, &role, &u.Salt, &u.PasswordHash, &u.HashParams,
		&u.FailedAttempts, &lockUntil, &passwordSet, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Role = domain.Role(role)
	u.LockUntil = parseOptionalTime(ctx, u.Username, "lock_until", lockUntil)
	u.PasswordLastSet = parseOptionalTime(ctx, u.Username, "password_last_set", passwordSet)
	if t := parseOptionalTime(ctx, u.Username, "created_at", sql.NullString{String: createdAt, Valid: true}); t != nil {
		u.CreatedAt = *t
	}
	if t := parseOptionalTime(ctx, u.Username, "updated_at", sql.NullString{String: updatedAt, Valid: true}); t != nil {
		u.UpdatedAt = *t
	}

	return u, nil
}

func insertArgs(u store.NewUser, now time.Time) []any {
	return []any{
		u.ID, u.Username, string(u.Role), u.Salt, u.PasswordHash, u.HashParams,
		formatTime(u.PasswordLastSet), formatTime(now), formatTime(now),
	}
}

func (r *usersRepo) CreateUser(ctx context.Context, u store.NewUser) error {
	_, err := r.db.ExecContext(ctx, insertUserSQL, insertArgs(u, time.Now())...)
	return mapConstraint(err)
}

func (r *usersRepo) CreateUserIfAbsent(ctx context.Context, u store.NewUser) (bool, error) {
	res, err := r.db.ExecContext(ctx, insertUserIfAbsentSQL, insertArgs(u, time.Now())...)
	if err != nil {
		return false, mapConstraint(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := scanUser(ctx, r.db.QueryRowContext(ctx, getUserByUsernameSQL, username))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(ctx, r.db.QueryRowContext(ctx, getUserByIDSQL, id))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, listUsersSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(ctx, rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countUsersSQL).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *usersRepo) UpdatePassword(
	ctx context.Context,
	username, salt, hash, params string,
	setAt time.Time,
) error {
	res, err := r.db.ExecContext(ctx, updatePasswordSQL,
		salt, hash, params, formatTime(setAt), formatTime(time.Now()), username)
	return requireOneRow(res, err)
}

func (r *usersRepo) UpdateGuardState(ctx context.Context, username string, state domain.GuardState) error {
	res, err := r.db.ExecContext(ctx, updateGuardStateSQL,
		state.FailedAttempts, formatOptionalTime(state.LockUntil), formatTime(time.Now()), username)
	return requireOneRow(res, err)
}

func (r *usersRepo) IncrementFailedAttempts(
	ctx context.Context,
	username string,
	maxAttempts int,
	lockUntil time.Time,
) (domain.GuardState, error) {
	var (
		state domain.GuardState
		lock  sql.NullString
	)

	err := r.db.QueryRowContext(ctx, incrementFailedAttemptsSQL,
		maxAttempts, formatTime(lockUntil), formatTime(time.Now()), username,
	).Scan(&state.FailedAttempts, &lock)
	if err != nil {
		return domain.GuardState{}, mapNotFound(err)
	}

	state.LockUntil = parseOptionalTime(ctx, username, "lock_until", lock)
	return state, nil
}

func (r *usersRepo) ClearExpiredLock(ctx context.Context, username string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, clearExpiredLockSQL, formatTime(time.Now()), username, formatTime(now))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func requireOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
