// Package apperr defines the error taxonomy the services return and the API
// boundary maps to HTTP statuses. Store-level errors are wrapped so they never
// reach clients with internal detail.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the boundary layer.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidOperation
	KindPaymentRequired
	KindValidation
)

// Error carries a kind, a stable machine-checkable code, and a human message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error // wrapped cause, for logs only
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a new Error.
func E(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause to a new Error.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Internal wraps an unexpected store failure. The message shown to clients is
// generic; the cause stays in the error chain for logging.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: "Internal error", Err: err}
}

// KindOf extracts the kind from err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf extracts the machine code from err, defaulting to "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// MessageOf extracts the client-safe message from err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error"
}
