package auth

import (
	"errors"
	"fmt"

	"github.com/punchamoorthee/promoledger/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted anywhere.
const MinPasswordLength = 6

// ValidatePassword rejects passwords shorter than MinPasswordLength.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", domain.ErrValidation)
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, MinPasswordLength)
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword returns domain.ErrUnauthorized on mismatch.
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)
	}
	return err
}
