// Package fault classifies errors into the small set of kinds the rest of
// the service dispatches on: HTTP status mapping, retry eligibility, and
// tool result conversion all go through Kind.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a failure.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindPermission  Kind = "permission_denied"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// Error is a classified error. Details carries structured context that
// surfaces in tool results and audit records.
type Error struct {
	Knd     Kind
	Message string
	Details map[string]any
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Knd, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Knd, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Knd: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Knd: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Knd: kind, Message: message, wrapped: err}
}

// WithDetails attaches structured context and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf reports the Kind of err, or KindInternal if err carries no
// classification.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Knd
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether err may succeed on a later attempt. Validation
// and permission failures can never succeed by retrying; everything that is
// not explicitly transient is treated as non-retryable too, so only
// infrastructure faults re-enter the queue.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUnavailable:
		return true
	default:
		return false
	}
}

// DetailsOf returns the structured context of err, or nil.
func DetailsOf(err error) map[string]any {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Details
	}
	return nil
}
