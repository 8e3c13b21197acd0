package cryptox

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"long password", strings.Repeat("a", 100)},
		{"empty password", ""},
		{"unicode password", "contraseña🔒密码"},
		{"whitespace password", "   spaces   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := HashPassword(tt.password)
			require.NoError(t, err)

			// Fixed-width hex encodings
			require.Len(t, cred.Salt, saltLength*2)
			require.Len(t, cred.Hash, keyLength*2)
			_, err = hex.DecodeString(cred.Salt)
			require.NoError(t, err)
			_, err = hex.DecodeString(cred.Hash)
			require.NoError(t, err)

			require.Equal(t, "pbkdf2-sha256$i=200000", cred.Params)

			require.NoError(t, VerifyPassword(tt.password, cred))
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	password := "samepassword"

	c1, err := HashPassword(password)
	require.NoError(t, err)
	c2, err := HashPassword(password)
	require.NoError(t, err)

	// Each credential should be different due to unique salts
	require.NotEqual(t, c1.Salt, c2.Salt)
	require.NotEqual(t, c1.Hash, c2.Hash)

	// But both should verify the same password
	require.NoError(t, VerifyPassword(password, c1))
	require.NoError(t, VerifyPassword(password, c2))
}

// hashWithSalt derives with a fixed salt so runs can be compared.
func hashWithSalt(t *testing.T, password, saltHex string) string {
	t.Helper()
	salt, err := hex.DecodeString(saltHex)
	require.NoError(t, err)
	return hex.EncodeToString(derive(password, salt, DefaultParams))
}

func TestHashPassword_SameSaltDifferentPasswordsDiffer(t *testing.T) {
	base, err := HashPassword("first-password")
	require.NoError(t, err)

	require.NotEqual(t, base.Hash, hashWithSalt(t, "second-password", base.Salt))
	require.Equal(t, base.Hash, hashWithSalt(t, "first-password", base.Salt))
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	cred, err := HashPassword("correct-password")
	require.NoError(t, err)

	tests := []struct {
		name          string
		wrongPassword string
	}{
		{"completely wrong", "wrong-password"},
		{"case difference", "Correct-Password"},
		{"extra space", "correct-password "},
		{"empty password", ""},
		{"similar password", "correct-passwor"},
		{"very long", strings.Repeat("x", 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword(tt.wrongPassword, cred)
			require.ErrorIs(t, err, ErrPasswordMismatch)
		})
	}
}

func TestVerifyPassword_InvalidCredential(t *testing.T) {
	valid, err := HashPassword("test-password")
	require.NoError(t, err)

	tests := []struct {
		name string
		cred Credential
	}{
		{"empty salt", Credential{Salt: "", Hash: valid.Hash}},
		{"empty hash", Credential{Salt: valid.Salt, Hash: ""}},
		{"invalid hex salt", Credential{Salt: "zz", Hash: valid.Hash}},
		{"invalid hex hash", Credential{Salt: valid.Salt, Hash: "not-hex"}},
		{"unknown algorithm", Credential{Salt: valid.Salt, Hash: valid.Hash, Params: "bcrypt$i=10"}},
		{"malformed params", Credential{Salt: valid.Salt, Hash: valid.Hash, Params: "pbkdf2-sha256"}},
		{"zero iterations", Credential{Salt: valid.Salt, Hash: valid.Hash, Params: "pbkdf2-sha256$i=0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword("test-password", tt.cred)
			require.Error(t, err)
			require.NotErrorIs(t, err, ErrPasswordMismatch)
		})
	}
}

func TestVerifyPassword_LegacyRowWithoutParams(t *testing.T) {
	cred, err := HashPassword("legacy-password")
	require.NoError(t, err)

	// Rows created before params were recorded fall back to the defaults.
	cred.Params = ""
	require.NoError(t, VerifyPassword("legacy-password", cred))
}

func TestVerifyPassword_HonoursStoredIterations(t *testing.T) {
	salt := strings.Repeat("ab", saltLength)
	saltBytes, err := hex.DecodeString(salt)
	require.NoError(t, err)

	lowCost := Params{Algorithm: algorithmPBKDF2SHA256, Iterations: 1000}
	key := derive("rotated", saltBytes, lowCost)

	cred := Credential{Salt: salt, Hash: hex.EncodeToString(key), Params: lowCost.String()}
	require.NoError(t, VerifyPassword("rotated", cred))

	// Verifying with the default params would not match.
	cred.Params = ""
	require.ErrorIs(t, VerifyPassword("rotated", cred), ErrPasswordMismatch)
}

func TestParseParams(t *testing.T) {
	p, err := ParseParams("pbkdf2-sha256$i=310000")
	require.NoError(t, err)
	require.Equal(t, 310000, p.Iterations)
	require.Equal(t, "pbkdf2-sha256$i=310000", p.String())

	p, err = ParseParams("  ")
	require.NoError(t, err)
	require.Equal(t, DefaultParams, p)
}
