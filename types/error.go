package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the retrieval core.
type ErrorCode string

const (
	// ErrInvalidArgument marks malformed input: bad alpha, empty query
	// text, bad chunk-window parameters. Never retryable.
	ErrInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrEmbeddingProvider marks a failed embedding call (network, quota,
	// auth). The core does not retry; retry policy belongs to the caller.
	ErrEmbeddingProvider ErrorCode = "EMBEDDING_PROVIDER"

	// ErrIndexUnavailable marks a single index backend failure or timeout.
	// Recovered internally by degrading that channel to empty results.
	ErrIndexUnavailable ErrorCode = "INDEX_UNAVAILABLE"

	// ErrRetrievalUnavailable marks joint failure of both the vector and
	// keyword channels. Surfaced as a hard failure of the retrieve call.
	ErrRetrievalUnavailable ErrorCode = "RETRIEVAL_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Backend   string    `json:"backend,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithBackend sets the backend name (e.g. "weaviate", "gemini-embedding").
func (e *Error) WithBackend(backend string) *Error {
	e.Backend = backend
	return e
}

// CodeOf extracts the ErrorCode from err, unwrapping as needed.
// Returns an empty code when err carries no *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsInvalidArgument reports whether err is an INVALID_ARGUMENT error.
func IsInvalidArgument(err error) bool { return IsCode(err, ErrInvalidArgument) }

// IsEmbeddingProvider reports whether err is an EMBEDDING_PROVIDER error.
func IsEmbeddingProvider(err error) bool { return IsCode(err, ErrEmbeddingProvider) }

// IsIndexUnavailable reports whether err is an INDEX_UNAVAILABLE error.
func IsIndexUnavailable(err error) bool { return IsCode(err, ErrIndexUnavailable) }

// IsRetrievalUnavailable reports whether err is a RETRIEVAL_UNAVAILABLE error.
func IsRetrievalUnavailable(err error) bool { return IsCode(err, ErrRetrievalUnavailable) }

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
