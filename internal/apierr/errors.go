// Package apierr provides the typed error taxonomy shared by every
// component of the orchestration core (see spec §7).
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error taxonomy kinds named in spec §7. It is the
// dimension callers switch on, never the Go type.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindSecurityViolation Kind = "security_violation"
	KindAuth              Kind = "auth"
	KindConflict          Kind = "conflict"
	KindRateLimited       Kind = "rate_limited"
	KindTransport         Kind = "transport"
	KindTimeout           Kind = "timeout"
	KindCancelled         Kind = "cancelled"
	KindStorageFailure    Kind = "storage_failure"
	KindInternal          Kind = "internal"
)

var httpStatusByKind = map[Kind]int{
	KindValidation:        http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindAlreadyExists:     http.StatusConflict,
	KindSecurityViolation: http.StatusForbidden,
	KindAuth:              http.StatusUnauthorized,
	KindConflict:          http.StatusConflict,
	KindRateLimited:       http.StatusTooManyRequests,
	KindTransport:         http.StatusBadGateway,
	KindTimeout:           http.StatusGatewayTimeout,
	KindCancelled:         http.StatusRequestTimeout,
	KindStorageFailure:    http.StatusInternalServerError,
	KindInternal:          http.StatusInternalServerError,
}

// Error is the structured error returned by every fallible operation in
// the core. It carries a correlation id so the audit log (C2) can thread
// a single request across components, per spec §7 "Propagation".
type Error struct {
	Kind          Kind
	Message       string
	Details       map[string]any
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches forensic context. Never pass raw attacked paths or
// secrets here — §4.2 requires the security gatekeeper to scrub anything
// surfaced to a caller.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCorrelationID stamps the error with the id threading the audit log.
func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

// HTTPStatus returns the status code conventionally associated with the
// error's kind.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind around a causing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation, NotFound, ... are convenience constructors mirroring the
// taxonomy so call sites read the same way the spec names them.

func Validation(message string) *Error { return New(KindValidation, message) }

func NotFound(resource, id string) *Error {
	return New(KindNotFound, "resource not found").
		WithDetails("resource", resource).WithDetails("id", id)
}

func AlreadyExists(resource, id string) *Error {
	return New(KindAlreadyExists, "resource already exists").
		WithDetails("resource", resource).WithDetails("id", id)
}

func SecurityViolation(message string) *Error { return New(KindSecurityViolation, message) }

func Unauthorized(message string) *Error { return New(KindAuth, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func RateLimited(waitMS int64) *Error {
	return New(KindRateLimited, "rate limit exceeded").WithDetails("waitTime", waitMS)
}

func Transport(message string, err error) *Error { return Wrap(KindTransport, message, err) }

func Timeout(operation string) *Error {
	return New(KindTimeout, "operation timed out").WithDetails("operation", operation)
}

func Cancelled(operation string) *Error {
	return New(KindCancelled, "operation cancelled").WithDetails("operation", operation)
}

func StorageFailure(message string, err error) *Error {
	return Wrap(KindStorageFailure, message, err)
}

func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

// As extracts an *Error from the error chain, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the taxonomy kind of err, defaulting to KindInternal when
// err does not carry one.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
