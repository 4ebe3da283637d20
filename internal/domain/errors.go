// Package domain provides canonical error types for the request pipeline.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the stable, machine-readable category of a pipeline error.
type ErrorKind string

const (
	// KindInvalidBody indicates the request body failed decoding or validation.
	KindInvalidBody ErrorKind = "validation/invalid_body"

	// KindCSRFInvalid indicates a missing or mismatched anti-forgery token.
	KindCSRFInvalid ErrorKind = "csrf/invalid"

	// KindUnauthenticated indicates no valid credential was presented.
	KindUnauthenticated ErrorKind = "auth/unauthenticated"

	// KindExpired indicates a credential was presented but is no longer valid.
	KindExpired ErrorKind = "auth/expired"

	// KindForbidden indicates the caller is authenticated but not permitted.
	KindForbidden ErrorKind = "auth/forbidden"

	// KindNotFound indicates a resource addressed by the route does not exist.
	KindNotFound ErrorKind = "resource/not_found"

	// KindInternal indicates an unclassified failure.
	KindInternal ErrorKind = "server/internal_error"
)

// kindStatus is the closed set of recognized kinds and their status codes.
var kindStatus = map[ErrorKind]int{
	KindInvalidBody:     http.StatusBadRequest,
	KindCSRFInvalid:     http.StatusForbidden,
	KindUnauthenticated: http.StatusUnauthorized,
	KindExpired:         http.StatusUnauthorized,
	KindForbidden:       http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindInternal:        http.StatusInternalServerError,
}

// Known reports whether k is one of the recognized kinds.
func (k ErrorKind) Known() bool {
	_, ok := kindStatus[k]
	return ok
}

// Kinds returns every recognized kind.
func Kinds() []ErrorKind {
	return []ErrorKind{
		KindInvalidBody,
		KindCSRFInvalid,
		KindUnauthenticated,
		KindExpired,
		KindForbidden,
		KindNotFound,
		KindInternal,
	}
}

// Error is a failure raised inside the pipeline or by a route handler.
type Error struct {
	// Kind is the category of error
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// StatusCode overrides the status declared for Kind when non-zero
	StatusCode int `json:"-"`

	// CorrelationID ties the error to the request that raised it
	CorrelationID string `json:"correlationId,omitempty"`

	// Err is the underlying cause, never serialized
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status code for this error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewError creates a new pipeline error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// WithCause records the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithStatusCode sets a specific HTTP status code.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// correlatedError attaches a correlation id to an arbitrary error without
// changing its kind.
type correlatedError struct {
	err error
	id  string
}

func (c *correlatedError) Error() string { return c.err.Error() }
func (c *correlatedError) Unwrap() error { return c.err }

// WithCorrelationID annotates err with the correlation id of the request it
// crossed. An id already present on err is kept.
func WithCorrelationID(err error, id string) error {
	if err == nil || id == "" {
		return err
	}
	if CorrelationIDOf(err) != "" {
		return err
	}
	return &correlatedError{err: err, id: id}
}

// CorrelationIDOf returns the innermost correlation id attached to err.
func CorrelationIDOf(err error) string {
	for err != nil {
		switch e := err.(type) {
		case *correlatedError:
			return e.id
		case *Error:
			if e.CorrelationID != "" {
				return e.CorrelationID
			}
		}
		err = errors.Unwrap(err)
	}
	return ""
}

// Convenience constructors for common errors

// ErrInvalidBody creates a body validation error.
func ErrInvalidBody(message string) *Error {
	return NewError(KindInvalidBody, message)
}

// ErrCSRFInvalid creates an anti-forgery token error.
func ErrCSRFInvalid(message string) *Error {
	return NewError(KindCSRFInvalid, message)
}

// ErrUnauthenticated creates a missing-credential error.
func ErrUnauthenticated(message string) *Error {
	return NewError(KindUnauthenticated, message)
}

// ErrExpired creates a stale-credential error.
func ErrExpired(message string) *Error {
	return NewError(KindExpired, message)
}

// ErrForbidden creates an authorization error.
func ErrForbidden(message string) *Error {
	return NewError(KindForbidden, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *Error {
	return NewError(KindNotFound, message)
}

// ErrInternal creates a server error.
func ErrInternal(message string) *Error {
	return NewError(KindInternal, message)
}

// IsKind reports whether err carries a pipeline error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
