package auth

import (
	"fmt"
	"net/mail"
	"strings"
)

// ValidatePassword enforces a minimum length of minLength (12 when zero)
// with no character class requirements.
func ValidatePassword(password string, minLength int) error {
	if minLength == 0 {
		minLength = 12
	}

	if len(password) < minLength {
		return fmt.Errorf("password must be at least %d characters long", minLength)
	}

	// prevent DoS via extremely long passwords
	if len(password) > 128 {
		return fmt.Errorf("password must be at most 128 characters long")
	}

	lower := strings.ToLower(password)
	commonPasswords := []string{
		"password1234", "123456789012", "qwertyuiopas",
	}
	for _, common := range commonPasswords {
		if lower == common {
			return fmt.Errorf("password is too common")
		}
	}

	if isRepeatingChar(password) {
		return fmt.Errorf("password cannot be a single repeating character")
	}

	return nil
}

// NormalizeEmail lowercases and trims an address and rejects malformed input
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("invalid email address")
	}
	return email, nil
}

// isRepeatingChar checks if the password is just the same character repeated
func isRepeatingChar(s string) bool {
	if len(s) == 0 {
		return false
	}
	runes := []rune(s)
	first := runes[0]
	for _, r := range runes[1:] {
		if r != first {
			return false
		}
	}
	return true
}
