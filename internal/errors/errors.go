// Package errors provides a small structured error type whose code maps onto
// an HTTP status. Import it as perr.
package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies an error for callers and the HTTP layer
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodePanic is for panics recovered by middleware
	ErrorCodePanic

	// ErrorCodeValidation is for bad client input (missing file, bad extension)
	ErrorCodeValidation

	// ErrorCodeNotFound is for missing files or resources
	ErrorCodeNotFound

	// ErrorCodeTooLarge is for uploads over the configured size
	ErrorCodeTooLarge

	// ErrorCodeUnavailable is for stages whose model is not loaded
	ErrorCodeUnavailable

	// ErrorCodeDecode is for images that cannot be read
	ErrorCodeDecode

	// ErrorCodeInference is for failures inside the model runtime
	ErrorCodeInference
)

// HTTPStatusCode turns an ErrorCode into an http status code
func HTTPStatusCode(c ErrorCode) int {
	switch c {
	case ErrorCodeValidation:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a developer facing message, a machine facing code, an optional
// operation tag and the wrapped cause
type Error struct {
	orig error
	msg  string
	code ErrorCode
	op   string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Op returns the operation tag
func (e *Error) Op() string { return e.op }

// New creates an Error with a code and message
func New(code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg}
}

// Wrap annotates err with a code and message; nil stays nil
func Wrap(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{orig: err, code: code, msg: msg}
}

// WithOp returns a copy of err tagged with op when err is an *Error
func WithOp(err error, op string) error {
	var e *Error
	if !stderrs.As(err, &e) {
		return err
	}
	cp := *e
	cp.op = op
	return &cp
}

// Code extracts the first ErrorCode in the chain, ErrorCodeUnknown otherwise
func Code(err error) ErrorCode {
	var e *Error
	if stderrs.As(err, &e) {
		return e.code
	}
	return ErrorCodeUnknown
}

// HTTPStatus is the http status for any error
func HTTPStatus(err error) int {
	return HTTPStatusCode(Code(err))
}

// PublicMessage is the message safe to show a client: the outermost *Error
// message without its cause, or a generic text for foreign errors
func PublicMessage(err error) string {
	var e *Error
	if stderrs.As(err, &e) {
		return e.msg
	}
	return http.StatusText(http.StatusInternalServerError)
}

// OpOf returns the operation tag of the first *Error in the chain
func OpOf(err error) string {
	var e *Error
	if stderrs.As(err, &e) {
		return e.Op()
	}
	return ""
}
