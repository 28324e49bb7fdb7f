package accounts

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kubikal7/ski-jumping-management/internal/auth"
	"github.com/kubikal7/ski-jumping-management/internal/model"
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 8

const passwordSpecials = `!@#$%^&*()_+-={}[];':"\|,.<>/?`

// ValidatePassword enforces the password policy: at least MinPasswordLength
// characters with an uppercase letter, a digit and a special character.
func ValidatePassword(pw string) error {
	var upper, digit bool
	for _, r := range pw {
		upper = upper || unicode.IsUpper(r)
		digit = digit || unicode.IsDigit(r)
	}
	if utf8.RuneCountInString(pw) < MinPasswordLength || !upper || !digit || !strings.ContainsAny(pw, passwordSpecials) {
		return fmt.Errorf("%w: password must be at least %d characters long with at least one uppercase letter, one digit and one special character",
			model.ErrInvalidRequest, MinPasswordLength)
	}
	return nil
}

// newPasswordHash validates pw against the policy and against the current
// hash, then hashes it. oldHash may be empty for new accounts.
func newPasswordHash(pw, oldHash string) (string, error) {
	if err := ValidatePassword(pw); err != nil {
		return "", err
	}
	if oldHash != "" {
		same, err := auth.VerifyPassword(pw, oldHash)
		if err == nil && same {
			return "", fmt.Errorf("%w: new password must be different from old password", model.ErrInvalidRequest)
		}
	}
	hash, err := auth.HashPassword(pw)
	if err != nil {
		return "", fmt.Errorf("accounts: hash password: %w", err)
	}
	return hash, nil
}
