// Package errclass defines the stable, machine-readable error classes of hashtrail.
package errclass

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a stable, machine-readable error class.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

// WithMessage returns a new Error with the same Code but a specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// WithMessagef returns a new Error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	return &Error{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidTimestamp     = &Error{Code: "E_INVALID_TIMESTAMP"}
	ErrMalformedInput       = &Error{Code: "E_MALFORMED_INPUT"}
	ErrPayloadTooLarge      = &Error{Code: "E_PAYLOAD_TOO_LARGE"}
	ErrRateLimited          = &Error{Code: "E_RATE_LIMITED"}
	ErrStaleTail            = &Error{Code: "E_STALE_TAIL"}
	ErrAuditChainBroken     = &Error{Code: "E_AUDIT_CHAIN_BROKEN"}
	ErrAlgorithmUnsupported = &Error{Code: "E_ALGORITHM_UNSUPPORTED"}
	ErrNameInvalid          = &Error{Code: "E_NAME_INVALID"}
	ErrFormatUnsupported    = &Error{Code: "E_FORMAT_UNSUPPORTED"}
)

// Code returns the class code of err, or "" when err carries no class.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HTTPStatus maps an error class to the status code the HTTP layer answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMalformedInput),
		errors.Is(err, ErrInvalidTimestamp),
		errors.Is(err, ErrAlgorithmUnsupported),
		errors.Is(err, ErrNameInvalid),
		errors.Is(err, ErrFormatUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStaleTail):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
