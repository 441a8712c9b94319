// Package errs defines the error taxonomy shared across the control plane.
// Every service method returns one of these kinds instead of panicking;
// panics are reserved for programmer-error invariant violations.
package errs

import "fmt"

// Kind classifies an error for the purposes of retry and propagation policy.
type Kind string

const (
	Validation        Kind = "VALIDATION"
	InvalidState      Kind = "INVALID_STATE"
	NotFound          Kind = "NOT_FOUND"
	CapacityExhausted Kind = "CAPACITY_EXHAUSTED"
	Transient         Kind = "TRANSIENT"
	Fatal             Kind = "FATAL"
)

// Error is the stable, user-facing error shape: a kind, a stable code, and
// a human-readable message. Body details are optional.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func NewValidation(code, message string) *Error {
	return New(Validation, code, message)
}

func NewInvalidState(code, message string) *Error {
	return New(InvalidState, code, message)
}

func NewNotFound(code, message string) *Error {
	return New(NotFound, code, message)
}

func NewCapacityExhausted(code, message string) *Error {
	return New(CapacityExhausted, code, message)
}

func NewTransient(code, message string, err error) *Error {
	return Wrap(Transient, code, message, err)
}

func NewFatal(code, message string, err error) *Error {
	return Wrap(Fatal, code, message, err)
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, defaulting to Fatal for anything unrecognised so that unexpected
// errors never get silently retried.
func KindOf(err error) Kind {
	var e *Error
	if ok := as(err, &e); ok {
		return e.Kind
	}
	return Fatal
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
