// Package apperr provides standardized domain error types for the application.
// Domain services return these typed errors so callers can branch on the
// category without string matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindValidation indicates invalid input data, rejected before any mutation.
	KindValidation
	// KindConflict indicates a conflict with existing state (e.g., duplicate).
	KindConflict
	// KindInternal indicates an unexpected internal error.
	KindInternal
	// KindUpstreamTimeout indicates an external service call exceeded its deadline.
	KindUpstreamTimeout
	// KindUpstreamParse indicates an external service returned an unusable response.
	KindUpstreamParse
	// KindIndexInconsistency indicates a secondary index disagreed with the
	// primary record. Structurally unreachable under the atomic update
	// contract; when detected it is logged and repaired, never ignored.
	KindIndexInconsistency
)

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string // Operation that failed (optional)
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Conflict creates a conflict error (e.g., duplicate resource).
func Conflict(message string) *Error {
	return New(KindConflict, message)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// UpstreamTimeout creates an upstream timeout error.
func UpstreamTimeout(message string) *Error {
	return New(KindUpstreamTimeout, message)
}

// UpstreamParse creates an upstream parse error.
func UpstreamParse(message string) *Error {
	return New(KindUpstreamParse, message)
}

// IndexInconsistency creates an index inconsistency error.
func IndexInconsistency(message string) *Error {
	return New(KindIndexInconsistency, message)
}

// GetKind extracts the error kind from an error, unwrapping as needed.
// Returns KindUnknown if no *Error is in the chain.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
