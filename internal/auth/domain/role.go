package domain

type Role string

const (
	RoleViewer  Role = "Viewer"
	RoleManager Role = "Manager"
	RoleAdmin   Role = "Admin"
)

// Roles lists every role in ascending privilege.
var Roles = []Role{RoleViewer, RoleManager, RoleAdmin}

// Valid reports whether r is one of Roles. Role names are case-sensitive.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleManager, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }
