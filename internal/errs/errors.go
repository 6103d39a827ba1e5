// Package errs provides the unified error type used across autorest.
//
// Every subsystem (catalog, compiler, estimator, endpoint, filestore, …)
// wraps its native errors into *errs.Error before returning them. Callers use
// the Is* predicates to decide whether a failure is a warning, fatal to one
// request, or fatal to the whole run.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindConnectionFailed, "ping failed", pgErr)
//
//	// In a handler, check the error kind:
//	if errs.IsEstimateUnavailable(err) {
//	    http.Error(w, "row estimate unavailable", http.StatusServiceUnavailable)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown             ErrKind = iota
	ErrKindNotFound                    // no rows, no object, no endpoint
	ErrKindConnectionFailed            // catalog or storage unreachable
	ErrKindTimeout                     // context deadline / cancellation
	ErrKindQueryFailed                 // SQL or storage operation error
	ErrKindInvalidInput                // bad arguments from the caller
	ErrKindPermissionDenied            // access denied / auth failure
	ErrKindUnknownColumnType           // catalog type without a field template
	ErrKindSchemaNotAllowed            // requested schema is not owner-allowed
	ErrKindEstimateUnavailable         // planner output had no rows= annotation
	ErrKindIdentifierCollision         // two columns sanitize to the same name
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindUnknownColumnType:
		return "unknown_column_type"
	case ErrKindSchemaNotAllowed:
		return "schema_not_allowed"
	case ErrKindEstimateUnavailable:
		return "estimate_unavailable"
	case ErrKindIdentifierCollision:
		return "identifier_collision"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all autorest subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a formatted message.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return KindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return KindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return KindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrKindPermissionDenied
}

// IsUnknownColumnType reports whether a column type had no field template.
func IsUnknownColumnType(err error) bool {
	return KindOf(err) == ErrKindUnknownColumnType
}

// IsSchemaNotAllowed reports whether a requested schema filter was rejected.
func IsSchemaNotAllowed(err error) bool {
	return KindOf(err) == ErrKindSchemaNotAllowed
}

// IsEstimateUnavailable reports whether a planner estimate could not be read.
func IsEstimateUnavailable(err error) bool {
	return KindOf(err) == ErrKindEstimateUnavailable
}

// IsIdentifierCollision reports whether two columns produced the same field name.
func IsIdentifierCollision(err error) bool {
	return KindOf(err) == ErrKindIdentifierCollision
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
