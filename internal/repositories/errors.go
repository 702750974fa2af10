package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the persistence failure categories surfaced to services.
type ErrorKind string

const (
	// ErrorKindUnknown represents an unspecified failure.
	ErrorKindUnknown ErrorKind = "unknown"
	// ErrorKindNotFound indicates the requested record does not exist.
	ErrorKindNotFound ErrorKind = "not_found"
	// ErrorKindConflict indicates a uniqueness or concurrent-update violation.
	ErrorKindConflict ErrorKind = "conflict"
	// ErrorKindUnavailable indicates the backing store could not be reached.
	ErrorKindUnavailable ErrorKind = "unavailable"
)

// Error is the concrete RepositoryError implementation shared by all backends.
type Error struct {
	Op      string
	Kind    ErrorKind
	Message string
	Err     error
}

var _ RepositoryError = (*Error)(nil)

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *Error) IsNotFound() bool { return e != nil && e.Kind == ErrorKindNotFound }

// IsConflict implements RepositoryError.
func (e *Error) IsConflict() bool { return e != nil && e.Kind == ErrorKindConflict }

// IsUnavailable implements RepositoryError.
func (e *Error) IsUnavailable() bool { return e != nil && e.Kind == ErrorKindUnavailable }

// NewError constructs a typed repository error.
func NewError(op string, kind ErrorKind, message string, err error) *Error {
	if message == "" {
		message = string(kind)
	}
	return &Error{Op: op, Kind: kind, Message: message, Err: err}
}

// IsNotFound reports whether the error chain contains a not-found repository error.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether the error chain contains a conflict repository error.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether the error chain contains an unavailable repository error.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
