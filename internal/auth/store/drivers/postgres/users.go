package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/aussiebroadwan/spendsense/internal/auth/store"
)

const userColumns = `id, username, role, salt, password_hash, hash_params,
	failed_attempts, lock_until, password_last_set, created_at, updated_at`

const (
	insertUserSQL = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NULL, $7, now(), now())`

	insertUserIfAbsentSQL = insertUserSQL + ` ON CONFLICT (username) DO NOTHING`

	getUserByUsernameSQL = `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	getUserByIDSQL       = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	listUsersSQL         = `SELECT ` + userColumns + ` FROM users ORDER BY username`
	countUsersSQL        = `SELECT COUNT(*) FROM users`

	updatePasswordSQL = `UPDATE users
		SET salt = $1, password_hash = $2, hash_params = $3, password_last_set = $4, updated_at = now()
		WHERE username = $5`

	updateGuardStateSQL = `UPDATE users
		SET failed_attempts = $1, lock_until = $2, updated_at = now()
		WHERE username = $3`

	incrementFailedAttemptsSQL = `UPDATE users
		SET failed_attempts = failed_attempts + 1,
		    lock_until = CASE WHEN failed_attempts + 1 >= $1 THEN $2::timestamptz ELSE lock_until END,
		    updated_at = now()
		WHERE username = $3
		RETURNING failed_attempts, lock_until`

	clearExpiredLockSQL = `UPDATE users
		SET failed_attempts = 0, lock_until = NULL, updated_at = now()
		WHERE username = $1 AND lock_until IS NOT NULL AND lock_until <= $2`
)

type usersRepo struct {
	db dbtx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                      domain.User
		role                   string
		lockUntil, passwordSet sql.NullTime
	)

	err := row.Scan(
		&u.ID, &u.Username, &role, &u.Salt, &u.PasswordHash, &u.HashParams,
		&u.FailedAttempts, &lockUntil, &passwordSet, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.Role = domain.Role(role)
	u.LockUntil = nullTimePtr(lockUntil)
	u.PasswordLastSet = nullTimePtr(passwordSet)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func insertArgs(u store.NewUser) []any {
	return []any{
		u.ID, u.Username, string(u.Role), u.Salt, u.PasswordHash, u.HashParams,
		u.PasswordLastSet.UTC(),
	}
}

func (r *usersRepo) CreateUser(ctx context.Context, u store.NewUser) error {
	_, err := r.db.ExecContext(ctx, insertUserSQL, insertArgs(u)...)
	return mapConstraint(err)
}

func (r *usersRepo) CreateUserIfAbsent(ctx context.Context, u store.NewUser) (bool, error) {
	res, err := r.db.ExecContext(ctx, insertUserIfAbsentSQL, insertArgs(u)...)
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
	u, err := scanUser(r.db.QueryRowContext(ctx, getUserByUsernameSQL, username))
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, getUserByIDSQL, id))
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
		u, err := scanUser(rows)
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
	res, err := r.db.ExecContext(ctx, updatePasswordSQL, salt, hash, params, setAt.UTC(), username)
	return requireOneRow(res, err)
}

func (r *usersRepo) UpdateGuardState(ctx context.Context, username string, state domain.GuardState) error {
	var lock sql.NullTime
	if state.LockUntil != nil {
		lock = sql.NullTime{Time: state.LockUntil.UTC(), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, updateGuardStateSQL, state.FailedAttempts, lock, username)
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
		lock  sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, incrementFailedAttemptsSQL, maxAttempts, lockUntil.UTC(), username).
		Scan(&state.FailedAttempts, &lock)
	if err != nil {
		return domain.GuardState{}, mapNotFound(err)
	}

	state.LockUntil = nullTimePtr(lock)
	return state, nil
}

func (r *usersRepo) ClearExpiredLock(ctx context.Context, username string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, clearExpiredLockSQL, username, now.UTC())
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
