// Package errors carries the coded errors every ledger layer returns. The
// code decides the HTTP status, whether a caller may retry and whether the
// message is safe to show.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInvalidState  Code = "INVALID_STATE"
	CodeNothingOwed   Code = "NOTHING_OWED"
	CodeCurrency      Code = "CURRENCY_MISMATCH"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is the transport view of a Code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// client errors expose their details; server errors may be retried.
func client(status int, msg string, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: msg, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    client(http.StatusBadRequest, "validation failed", true),
	CodeUnauthorized:  client(http.StatusUnauthorized, "authentication required", false),
	CodeForbidden:     client(http.StatusForbidden, "access denied", false),
	CodeNotFound:      client(http.StatusNotFound, "resource not found", false),
	CodeConflict:      client(http.StatusConflict, "conflict detected", true),
	CodeStateConflict: client(http.StatusUnprocessableEntity, "state transition disallowed", true),
	CodeInvalidState:  client(http.StatusBadRequest, "transition not permitted from current state", true),
	CodeNothingOwed:   client(http.StatusUnprocessableEntity, "nothing owed", true),
	CodeCurrency:      client(http.StatusBadRequest, "currency mismatch", true),
	CodeIdempotency:   client(http.StatusConflict, "idempotency key reused", true),
	CodeRateLimit:     client(http.StatusTooManyRequests, "rate limit exceeded", false),
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches a code to err. A nil err yields a plain New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets structured details rendered when the code allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so errors.Is(err, New(CodeNotFound, ""))
// works as a code check.
func (e *Error) Is(target error) bool {
	var other *Error
	if e == nil || !stdErrors.As(target, &other) || other == nil {
		return false
	}
	return e.code == other.code
}

// IsCode reports whether the outermost coded error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether a caller may repeat the operation. Uncoded
// errors are treated as internal.
func Retryable(err error) bool {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Retryable
	}
	return err != nil
}

func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
