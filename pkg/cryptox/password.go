package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Configuration for PBKDF2-HMAC-SHA256 hashing.
const (
	algorithmPBKDF2SHA256 = "pbkdf2-sha256"

	iterations = 200_000 // Iteration count for new hashes
	keyLength  = 32      // Length of the derived key
	saltLength = 16      // Length of the salt
)

// ErrPasswordMismatch is returned by VerifyPassword when the candidate does
// not match the stored credential.
var ErrPasswordMismatch = errors.New("password does not match")

// Params describes how a credential was derived. It is stored next to every
// hash so the iteration count can be raised later without breaking old rows.
type Params struct {
	Algorithm  string
	Iterations int
}

// DefaultParams are used for every new hash and for rows with no recorded params.
var DefaultParams = Params{
	Algorithm:  algorithmPBKDF2SHA256,
	Iterations: iterations,
}

// String encodes the params as "pbkdf2-sha256$i=200000".
func (p Params) String() string {
	return fmt.Sprintf("%s$i=%d", p.Algorithm, p.Iterations)
}

// ParseParams decodes a params string. An empty string yields DefaultParams,
// which covers rows written before params were recorded.
func ParseParams(s string) (Params, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultParams, nil
	}

	algo, rest, ok := strings.Cut(s, "$")
	if !ok {
		return Params{}, errors.New("invalid hash params: missing separator")
	}
	if algo != algorithmPBKDF2SHA256 {
		return Params{}, fmt.Errorf("invalid hash params: unsupported algorithm %q", algo)
	}

	var iters int
	if _, err := fmt.Sscanf(rest, "i=%d", &iters); err != nil {
		return Params{}, fmt.Errorf("invalid hash params: failed to parse iterations: %w", err)
	}
	if iters <= 0 {
		return Params{}, errors.New("invalid hash params: iterations must be positive")
	}

	return Params{Algorithm: algo, Iterations: iters}, nil
}

// Credential is the stored form of a password: hex salt, hex derived key and
// the params used to derive it. Salt and Hash are always written together.
type Credential struct {
	Salt   string
	Hash   string
	Params string
}

// HashPassword derives a fresh credential for password using a new random salt.
func HashPassword(password string) (Credential, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := derive(password, salt, DefaultParams)

	return Credential{
		Salt:   hex.EncodeToString(salt),
		Hash:   hex.EncodeToString(key),
		Params: DefaultParams.String(),
	}, nil
}

// VerifyPassword re-derives the key for password with the credential's salt
// and params and compares it in constant time. It returns nil on match and
// ErrPasswordMismatch otherwise. Malformed credentials return a descriptive
// error that is not ErrPasswordMismatch.
func VerifyPassword(password string, c Credential) error {
	params, err := ParseParams(c.Params)
	if err != nil {
		return err
	}

	salt, err := hex.DecodeString(c.Salt)
	if err != nil {
		return fmt.Errorf("invalid credential: failed to decode salt: %w", err)
	}
	if len(salt) == 0 {
		return errors.New("invalid credential: empty salt")
	}

	expected, err := hex.DecodeString(c.Hash)
	if err != nil {
		return fmt.Errorf("invalid credential: failed to decode hash: %w", err)
	}
	if len(expected) == 0 {
		return errors.New("invalid credential: empty hash")
	}

	computed := pbkdf2.Key([]byte(password), salt, params.Iterations, len(expected), sha256.New)

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrPasswordMismatch
}

func derive(password string, salt []byte, p Params) []byte {
	return pbkdf2.Key([]byte(password), salt, p.Iterations, keyLength, sha256.New)
}
