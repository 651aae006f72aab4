package domain

import "errors"

// Error classes. Callers wrap these with fmt.Errorf("%w: ...") so the
// message stays user-facing while errors.Is still classifies it.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrUpstream     = errors.New("upstream error")
	ErrConflict     = errors.New("conflict")
)

// IsAuthorization reports whether err belongs to the authorization class.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
