package authsdk

import "time"

// Session states reported by the server.
const (
	StateAnonymous          = "anonymous"
	StateAuthenticated      = "authenticated"
	StateMustChangePassword = "must_change_password"
)

// Roles accepted by signup.
const (
	RoleViewer  = "Viewer"
	RoleManager = "Manager"
	RoleAdmin   = "Admin"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is a machine readable code, e.g. "invalid_credentials".
	Error string `json:"error"`

	// Message is safe to show to the user.
	Message string `json:"message,omitempty"`

	// RemainingUser is set on every invalid_credentials response.
	RemainingUser *int `json:"remaining_user,omitempty"`

	// RemainingGlobal is set on failed logins and password confirmations.
	RemainingGlobal *int `json:"remaining_global,omitempty"`

	// MinutesRemaining is set on account_locked and global_lock_active.
	MinutesRemaining *int `json:"minutes_remaining,omitempty"`
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignupRequest is the body of POST /v1/auth/signup.
type SignupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
	Role     string `json:"role"`
}

// ChangePasswordRequest is the body of POST /v1/auth/password.
// CurrentPassword is ignored when the session must change an expired password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password"`
	Confirm         string `json:"confirm"`
}

// SessionResponse describes the caller's session.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	State         string `json:"state"`
	UserID        string `json:"user_id,omitempty"`
	Username      string `json:"username,omitempty"`
	Role          string `json:"role,omitempty"`
}

// SignupResponse is returned by a successful signup.
type SignupResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// UserSummary is one row of the administrative user listing. It never
// carries hash material.
type UserSummary struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Role            string     `json:"role"`
	FailedAttempts  int        `json:"failed_attempts"`
	LockUntil       *time.Time `json:"lock_until,omitempty"`
	PasswordLastSet *time.Time `json:"password_last_set,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ListUsersResponse is returned by GET /v1/admin/users.
type ListUsersResponse struct {
	Users []UserSummary `json:"users"`
	Count int           `json:"count"`
}

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks is the status of each dependency checked by /readyz.
type HealthChecks struct {
	Database string `json:"database"`

	// Signer reports whether session cookies can be signed.
	Signer string `json:"signer"`
}
