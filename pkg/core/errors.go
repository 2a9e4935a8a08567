package core

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrReadOnly         = errors.New("store is in read-only mode")
	ErrConflict         = errors.New("document update conflict")
	ErrNotFound         = errors.New("document not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// ConflictError reports a write that lost the optimistic-concurrency race.
// Attempts is the number of writes issued before giving up.
type ConflictError struct {
	ID       string
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	id := e.ID
	if id == "" {
		id = "<new>"
	}
	if e.Attempts > 1 {
		return fmt.Sprintf("conflict saving %s after %d attempts", id, e.Attempts)
	}
	return fmt.Sprintf("conflict saving %s", id)
}

func (e *ConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConflict}
	}
	return []error{ErrConflict, e.Err}
}

// NotFoundError lists identifiers a fail-fast load could not resolve.
type NotFoundError struct {
	IDs []string
}

func (e *NotFoundError) Error() string {
	return "document(s) not found: " + strings.Join(e.IDs, ", ")
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError carries the field messages of a document that failed validation.
type ValidationError struct {
	Errors Errors
}

func (e *ValidationError) Error() string {
	msgs := e.Errors.FullMessages()
	if len(msgs) == 0 {
		return ErrValidationFailed.Error()
	}
	return ErrValidationFailed.Error() + ": " + strings.Join(msgs, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
