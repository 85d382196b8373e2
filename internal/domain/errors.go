package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error"
	KindAuthentication  ErrorKind = "authentication_error"
	KindRateLimit       ErrorKind = "rate_limit_error"
	KindServer          ErrorKind = "server_error"
	KindEmptyGeneration ErrorKind = "empty_generation_error"
	KindStorage         ErrorKind = "storage_error"
	KindUnknown         ErrorKind = "unknown_error"
)

// Error is a structured failure with a stable code and an HTTP-ish status.
type Error struct {
	Kind    ErrorKind
	Code    string
	Status  int
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

// KindOf returns the kind of err, KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// NewValidationError creates a 400 error for unusable input.
func NewValidationError(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Status: 400, Message: msg}
}

// NewAuthenticationError creates a 401 error for a missing or rejected credential.
func NewAuthenticationError(err error) *Error {
	return &Error{Kind: KindAuthentication, Code: "AUTHENTICATION_FAILED", Status: 401, Message: "invalid or missing credential", Err: err}
}

// NewRateLimitError creates a 429 error.
func NewRateLimitError(err error) *Error {
	return &Error{Kind: KindRateLimit, Code: "RATE_LIMITED", Status: 429, Message: "rate limit exceeded", Err: err}
}

// NewServerError creates a 5xx error for backend failures.
func NewServerError(status int, err error) *Error {
	if status < 500 {
		status = 500
	}
	return &Error{Kind: KindServer, Code: "BACKEND_UNAVAILABLE", Status: status, Message: "generation backend failed", Err: err}
}

// NewEmptyGenerationError signals that the backend returned no usable text.
func NewEmptyGenerationError(finishReason string) *Error {
	return &Error{Kind: KindEmptyGeneration, Code: "EMPTY_GENERATION", Status: 502, Message: fmt.Sprintf("empty completion (finish_reason=%q)", finishReason)}
}

// NewStorageError wraps a persistence failure.
func NewStorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Code: "STORAGE_FAILED", Status: 500, Message: op, Err: err}
}

// NewUnknownError wraps anything that escaped classification.
func NewUnknownError(err error) *Error {
	return &Error{Kind: KindUnknown, Code: "INTERNAL", Status: 500, Message: "unexpected failure", Err: err}
}

// ErrorFromStatus maps a backend HTTP status to the error taxonomy.
// Returns nil for 2xx statuses.
func ErrorFromStatus(status int, err error) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 401 || status == 403:
		return NewAuthenticationError(err)
	case status == 429:
		return NewRateLimitError(err)
	case status >= 500:
		return NewServerError(status, err)
	default:
		return NewUnknownError(err)
	}
}
