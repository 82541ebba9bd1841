package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication covers missing identities and grants rejected by the provider.
	ErrAuthentication = errors.New("authentication failed")
	// ErrExternalProvider is returned for network failures or non-2xx provider responses.
	ErrExternalProvider = errors.New("external provider error")
	// ErrValidation is returned when input is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a plan, credential, or matchable session is absent.
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps store failures.
	ErrPersistence = errors.New("persistence failure")
	// ErrDuplicateFeedback is returned when feedback already exists for a session.
	ErrDuplicateFeedback = errors.New("feedback already recorded for session")
)

// ProviderError carries the provider's response for diagnostics.
type ProviderError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

// Is matches ErrExternalProvider.
func (e *ProviderError) Is(target error) bool {
	return target == ErrExternalProvider
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func persistenceErr(op string, err error) error {
	if errors.Is(err, ErrDuplicateFeedback) || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrPersistence, err))
}
