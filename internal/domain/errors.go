// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation marks malformed or mismatched input. It is always surfaced
// to the caller and never replaced by a default.
var ErrValidation = errors.New("validation failed")

// ErrStateConflict indicates an operation that is illegal in the current
// lifecycle state (e.g. staging while another experiment is testing).
var ErrStateConflict = errors.New("state conflict")

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ProviderError reports a failed reasoning-provider call. It aborts the
// current pipeline or validation run.
type ProviderError struct {
	Role string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Role == "" {
		return "reasoning provider: " + e.Err.Error()
	}
	return fmt.Sprintf("reasoning provider (role %s): %v", e.Role, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError wraps err as a ProviderError attributed to role.
func NewProviderError(role string, err error) error {
	return &ProviderError{Role: role, Err: err}
}

// IsProviderError reports whether err is or wraps a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
