// Package errs defines the abstract error taxonomy every Recall component
// surfaces through. Callers branch on Kind rather than matching strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the abstract error kinds from the design (ยง7).
type Kind string

const (
	InvalidArgument   Kind = "invalid_argument"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	Storage           Kind = "storage"
	IndexCorrupted    Kind = "index_corrupted"
	BackendUnavailable Kind = "backend_unavailable"
	BudgetExceeded    Kind = "budget_exceeded"
	Timeout           Kind = "timeout"
	RateLimited       Kind = "rate_limited"
)

// Error wraps a Kind, a human message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinels for errors.Is comparisons where no extra message is needed.
var (
	ErrNotFound        = New(NotFound, "not found")
	ErrInvalidArgument = New(InvalidArgument, "invalid argument")
	ErrConflict        = New(Conflict, "conflict")
	ErrStorage         = New(Storage, "storage failure")
	ErrBackendDown     = New(BackendUnavailable, "backend unavailable")
	ErrBudgetExceeded  = New(BudgetExceeded, "budget exceeded")
	ErrTimeout         = New(Timeout, "deadline exceeded")
	ErrRateLimited     = New(RateLimited, "rate limited")
)
