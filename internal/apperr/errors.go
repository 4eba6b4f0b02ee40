// Package apperr defines the error taxonomy shared across the request
// pipeline (spec §7). Every component returns one of these kinds instead
// of a bare error so the HTTP surface and the resilience kernel can make
// wire-shape and retry decisions without re-inspecting error strings.
package apperr

import (
	"net/http"

	"github.com/Laisky/errors/v2"
)

// Kind tags an error with its taxonomy entry from spec §7.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindSecurity        Kind = "security_error"
	KindAuthentication  Kind = "authentication_error"
	KindRateLimit       Kind = "rate_limit_error"
	KindUpstreamTimeout Kind = "upstream_timeout_error"
	KindUpstreamNetwork Kind = "upstream_network_error"
	KindUpstreamServer  Kind = "upstream_server_error"
	KindCircuitOpen     Kind = "circuit_open"
	KindTransformation  Kind = "transformation_error"
	KindPayloadTooLarge Kind = "payload_too_large"
)

// retryable reports whether the resilience kernel (C8) may retry an
// error of this kind, per the table in spec §7.
var retryable = map[Kind]bool{
	KindValidation:      false,
	KindSecurity:        false,
	KindAuthentication:  false,
	KindRateLimit:       true,
	KindUpstreamTimeout: true,
	KindUpstreamNetwork: true,
	KindUpstreamServer:  true,
	KindCircuitOpen:     false,
	KindTransformation:  false,
	KindPayloadTooLarge: false,
}

// httpStatus maps each kind to the client-visible HTTP status from spec §7.
var httpStatus = map[Kind]int{
	KindValidation:      http.StatusBadRequest,
	KindSecurity:        http.StatusBadRequest,
	KindAuthentication:  http.StatusUnauthorized,
	KindRateLimit:       http.StatusTooManyRequests,
	KindUpstreamTimeout: http.StatusGatewayTimeout,
	KindUpstreamNetwork: http.StatusBadGateway,
	KindUpstreamServer:  http.StatusBadGateway,
	KindCircuitOpen:     http.StatusServiceUnavailable,
	KindTransformation:  http.StatusInternalServerError,
	KindPayloadTooLarge: http.StatusRequestEntityTooLarge,
}

// Error is the concrete error type carried through the pipeline. It never
// exposes a stack trace or internal type name to clients; those live only
// in the wrapped Cause, which is logged but never serialized to the wire.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Cause         error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether C8 may retry this error.
func (e *Error) Retryable() bool { return retryable[e.Kind] }

// HTTPStatus returns the client-visible status code for this error.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// New builds an Error of the given kind, wrapping cause with errors.Wrap
// so callers keep a stack trace in logs without leaking it to clients.
func New(kind Kind, message string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, message)
	}
	return &Error{Kind: kind, Message: message, Cause: wrapped}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: errors.Errorf(format, args...).Error()}
}

// Security builds a KindSecurity error.
func Security(format string, args ...any) *Error {
	return &Error{Kind: KindSecurity, Message: errors.Errorf(format, args...).Error()}
}

// WithCorrelationID returns a copy of e tagged with the request correlation id.
func (e *Error) WithCorrelationID(id string) *Error {
	clone := *e
	clone.CorrelationID = id
	return &clone
}

// As extracts an *Error from err, recursing through wrapped causes.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Retryable reports whether err, considered generically, is retryable.
// Unclassified errors default to non-retryable so unknown failures never
// loop.
func Retryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable()
	}
	return false
}
