package service

import (
	"errors"
	"fmt"

	"github.com/punchamoorthee/promoledger/internal/domain"
	"github.com/punchamoorthee/promoledger/internal/store"
)

func requireUser(a domain.Actor) error {
	if !a.Authenticated() {
		return fmt.Errorf("%w: sign in required", domain.ErrUnauthorized)
	}
	return nil
}

func requireAdmin(a domain.Actor) error {
	if err := requireUser(a); err != nil {
		return err
	}
	if !a.IsAdmin() {
		return fmt.Errorf("%w: admin access required", domain.ErrForbidden)
	}
	return nil
}

func isMiss(err error) bool {
	return errors.Is(err, store.ErrReferrerNotFound) ||
		errors.Is(err, store.ErrSignupNotFound) ||
		errors.Is(err, store.ErrProfileNotFound) ||
		errors.Is(err, store.ErrPaymentNotFound)
}

// lookupErr turns a store miss into domain.ErrNotFound and passes anything
// else through.
func lookupErr(err error, what string) error {
	if isMiss(err) {
		return fmt.Errorf("%w: %s not found", domain.ErrNotFound, what)
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}
