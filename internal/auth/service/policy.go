package service

import "unicode/utf8"

// MinPasswordLength is counted in characters, not bytes.
const MinPasswordLength = 8

// Policy failure reasons, in the order they are checked.
const (
	ReasonTooShort         = "must be at least 8 characters"
	ReasonMissingUppercase = "must contain an uppercase letter (A-Z)"
	ReasonMissingSpecial   = "must contain a character other than A-Z, a-z and 0-9"
)

// ValidatePassword checks the password policy. It returns a *PolicyError
// naming the first rule broken.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &PolicyError{Reason: ReasonTooShort}
	}

	var upper, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		default:
			special = true
		}
	}

	if !upper {
		return &PolicyError{Reason: ReasonMissingUppercase}
	}
	if !special {
		return &PolicyError{Reason: ReasonMissingSpecial}
	}
	return nil
}
