package domain_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/spendsense/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestRoleValid(t *testing.T) {
	for _, r := range domain.Roles {
		require.True(t, r.Valid(), r)
	}
	for _, r := range []domain.Role{"", "admin", "ADMIN", "Owner"} {
		require.False(t, r.Valid(), r)
	}
}

func TestUserSummary_OmitsHashMaterial(t *testing.T) {
	now := time.Now().UTC()
	u := domain.User{
		ID:              "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV",
		Username:        "mario",
		Role:            domain.RoleAdmin,
		Salt:            "aa",
		PasswordHash:    "bb",
		HashParams:      "pbkdf2-sha256$i=200000",
		FailedAttempts:  2,
		PasswordLastSet: &now,
	}

	s := u.Summary()
	require.Equal(t, u.ID, s.ID)
	require.Equal(t, u.Username, s.Username)
	require.Equal(t, u.Role, s.Role)
	require.Equal(t, 2, s.FailedAttempts)
	require.Equal(t, &now, s.PasswordLastSet)
}
