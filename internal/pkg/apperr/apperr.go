// Package apperr classifies errors crossing service boundaries so that
// transport layers can map them to the right caller-visible behavior
// without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind buckets an error by how the caller should react.
type Kind string

const (
	// Validation: malformed input, rejected before any external call.
	Validation Kind = "validation"
	// NotFound: a referenced identity/message/project is absent.
	NotFound Kind = "not_found"
	// Conflict: the operation collides with existing state.
	Conflict Kind = "conflict"
	// Unauthorized: the principal failed authentication or authorization.
	Unauthorized Kind = "unauthorized"
	// Provider: the mail provider rejected a call.
	Provider Kind = "provider_error"
	// Internal: a store or transport this system depends on is unreachable.
	Internal Kind = "internal"
)

// Error carries a classification kind alongside a caller-safe message and
// an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a caller-safe message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted caller-safe message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the classification from err. Unclassified errors are
// treated as Internal, the safest default for propagation.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the caller-safe message for err. Unclassified errors
// yield a generic message so internals are never leaked to callers.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
