package domain

import "fmt"

// ValidationError reports caller-supplied input outside the accepted domain.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// PersistenceError wraps a storage-layer failure with the context needed to diagnose it.
type PersistenceError struct {
	Op      string
	MovieID int64
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s movie=%d: %v", e.Op, e.MovieID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CacheError wraps a cache backend failure. It never fails the surrounding operation.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}
