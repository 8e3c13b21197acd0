package domain

// SessionState is where a browser session sits in the login flow.
type SessionState string

const (
	StateAnonymous          SessionState = "anonymous"
	StateAuthenticated      SessionState = "authenticated"
	StateMustChangePassword SessionState = "must_change_password"
)

// Identity is the signed-in user as the session sees it.
type Identity struct {
	UserID   string
	Username string
	Role     Role
}
