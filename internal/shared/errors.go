package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Unknown principal and
	// wrong secret collapse into this one error so callers cannot enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers missing, expired, tampered and already-rotated
	// refresh tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrDuplicate indicates a unique constraint violation.
	ErrDuplicate = errors.New("already exists")
	// ErrResetCredentialInvalid indicates a reused or expired password reset
	// credential. Deliberately distinct from ErrNotFound.
	ErrResetCredentialInvalid = errors.New("reset credential invalid or expired")
	// ErrPasswordMismatch indicates the presented current password failed
	// verification during a password change.
	ErrPasswordMismatch = errors.New("password is incorrect")
)

// ValidationError reports rejected input together with per-item detail,
// typically the list of offending ids.
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError.
func NewValidationError(message string, details ...string) *ValidationError {
	return &ValidationError{Message: message, Details: details}
}
