// Package errors provides the domain error taxonomy shared by services and handlers.
//
// Services return *Error values built with the constructors below; handlers map
// the Code to an HTTP status and surface Message to the user:
//
//	if errors.Is(err, errors.ErrForbidden) {
//	    ...
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is  = errors.Is
	As  = errors.As
	New = errors.New
)

// Code represents a machine-readable error code.
type Code string

const (
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeValidation      Code = "VALIDATION"
	CodeNotFound        Code = "NOT_FOUND"
	CodePersistence     Code = "PERSISTENCE"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, a user-facing message and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated, Message: "authentication required"}
	ErrForbidden       = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrValidation      = &Error{Code: CodeValidation, Message: "validation error"}
	ErrNotFound        = &Error{Code: CodeNotFound, Message: "not found"}
	ErrPersistence     = &Error{Code: CodePersistence, Message: "persistence failure"}
	ErrRateLimited     = &Error{Code: CodeRateLimited, Message: "rate limited"}
	ErrInternal        = &Error{Code: CodeInternal, Message: "internal error"}
)

// Authentication reports a missing or invalid session.
func Authentication(msg string) *Error {
	return &Error{Code: CodeUnauthenticated, Message: msg}
}

// Authorization reports an authenticated caller that is not permitted.
func Authorization(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// Validation reports malformed input.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails reports malformed input with per-field messages.
func ValidationWithDetails(msg string, fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: fields}
}

// NotFound reports a referenced record that does not exist.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf reports a missing record with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Persistence reports a failed primary read or write at the database.
func Persistence(msg string, cause error) *Error {
	return &Error{Code: CodePersistence, Message: msg, cause: cause}
}

// RateLimited reports a throttled action.
func RateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}

// Internal reports an unexpected failure.
func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: cause}
}

// CodeOf returns the code of a domain error, or CodeInternal for anything else.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Message returns the user-facing message for err. Causes are not included so
// raw database errors never reach the client.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
