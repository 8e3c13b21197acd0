package domain

// SeedUser is a bootstrap account created only when its username is absent.
type SeedUser struct {
	Password string
	Role     Role
}

// DemoUsers are the accounts a fresh dev database is seeded with. They
// predate the password policy and are inserted without checking it.
func DemoUsers() map[string]SeedUser {
	return map[string]SeedUser{
		"mario": {Password: "1234", Role: RoleAdmin},
		"lucas": {Password: "abcd", Role: RoleManager},
		"irene": {Password: "pass", Role: RoleViewer},
	}
}
