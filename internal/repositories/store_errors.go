package repositories

import (
	"errors"
	"fmt"
)

// ErrVersionMismatch is wrapped by conflict errors returned from OrderRepository.Update.
var ErrVersionMismatch = errors.New("repository: version mismatch")

type storeErrorKind int

const (
	storeErrorNotFound storeErrorKind = iota + 1
	storeErrorConflict
	storeErrorUnavailable
)

// StoreError implements RepositoryError for backends without a native error taxonomy.
type StoreError struct {
	Op   string
	Err  error
	kind storeErrorKind
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the record was missing.
func (e *StoreError) IsNotFound() bool { return e != nil && e.kind == storeErrorNotFound }

// IsConflict reports whether the write lost a concurrency race or violated uniqueness.
func (e *StoreError) IsConflict() bool { return e != nil && e.kind == storeErrorConflict }

// IsUnavailable reports whether the backend could not be reached.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.kind == storeErrorUnavailable }

// NewNotFoundError wraps err as a not-found repository error.
func NewNotFoundError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, kind: storeErrorNotFound}
}

// NewConflictError wraps err as a conflict repository error.
func NewConflictError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, kind: storeErrorConflict}
}

// NewUnavailableError wraps err as an unavailable repository error.
func NewUnavailableError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err, kind: storeErrorUnavailable}
}
