// Package domainerrors defines the error taxonomy shared by all domain
// services. Services create coded errors; the HTTP layer translates codes to
// status responses without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// CodeNotFound signals that a case, party, document, or user reference
	// did not resolve.
	CodeNotFound Code = "not_found"
	// CodeInvalidState signals an operation applied to an entity in the
	// wrong state, e.g. promoting a non-Verified document.
	CodeInvalidState Code = "invalid_state"
	// CodeSelfVerification signals an uploader attempting to verify their
	// own document.
	CodeSelfVerification Code = "self_verification"
	// CodeConflict signals a concurrent-update collision that survived the
	// internal retry.
	CodeConflict Code = "conflict"
	// CodeValidation signals malformed input.
	CodeValidation Code = "validation"
	// CodeBadRequest signals a structurally invalid request body.
	CodeBadRequest Code = "bad_request"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error carries a code, a caller-facing message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with a static message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause. The cause stays
// reachable through errors.Is/errors.As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should emit.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState:
		return http.StatusUnprocessableEntity
	case CodeSelfVerification:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeValidation, CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
