package models

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrNonStationarySeries = errors.New("non-stationary series")
	ErrAliasConflict       = errors.New("alias conflict")
	ErrAliasNotFound       = errors.New("alias not found")
	ErrReviewItemNotFound  = errors.New("review item not found")
)

// ValidationError rejects malformed input before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// CacheComputationError wraps a failed computation behind a cache key. It is never cached.
type CacheComputationError struct {
	Key string
	Err error
}

func (e *CacheComputationError) Error() string {
	return fmt.Sprintf("compute %s: %v", e.Key, e.Err)
}

func (e *CacheComputationError) Unwrap() error {
	return e.Err
}
