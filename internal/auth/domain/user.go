package domain

import "time"

// User is a stored account. Salt, PasswordHash and HashParams are written
// together and never leave the service layer.
type User struct {
	ID              string
	Username        string
	Role            Role
	Salt            string // hex, 16 random bytes
	PasswordHash    string // hex PBKDF2-HMAC-SHA256 derived key
	HashParams      string // e.g. "pbkdf2-sha256$i=200000", empty means defaults
	FailedAttempts  int
	LockUntil       *time.Time // nil when not locked
	PasswordLastSet *time.Time // nil means never set (treated as expired)
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Summary returns the hash-free administrative projection of u.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:              u.ID,
		Username:        u.Username,
		Role:            u.Role,
		FailedAttempts:  u.FailedAttempts,
		LockUntil:       u.LockUntil,
		PasswordLastSet: u.PasswordLastSet,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// UserSummary is what administrative listings see. It never carries hash material.
type UserSummary struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Role            Role       `json:"role"`
	FailedAttempts  int        `json:"failed_attempts"`
	LockUntil       *time.Time `json:"lock_until,omitempty"`
	PasswordLastSet *time.Time `json:"password_last_set,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// GuardState is the per-account lockout state.
type GuardState struct {
	FailedAttempts int
	LockUntil      *time.Time
}
