package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the category of a routing error.
type ErrorKind string

const (
	// ErrorKindProvider means one generation provider failed. The orchestrator
	// recovers by advancing the chain.
	ErrorKindProvider ErrorKind = "provider"

	// ErrorKindRetrieval means the similarity index was unavailable. The
	// composer recovers with an ungrounded prompt.
	ErrorKindRetrieval ErrorKind = "retrieval"

	// ErrorKindSessionContention means a compare-and-swap lost a race.
	ErrorKindSessionContention ErrorKind = "session_contention"

	// ErrorKindSessionUnavailable means the session store could not be reached.
	ErrorKindSessionUnavailable ErrorKind = "session_unavailable"

	// ErrorKindConfiguration is fatal at startup.
	ErrorKindConfiguration ErrorKind = "configuration"

	// ErrorKindInvalidRequest indicates a malformed inbound message.
	ErrorKindInvalidRequest ErrorKind = "invalid_request"

	// ErrorKindNotFound indicates a missing session or resource.
	ErrorKindNotFound ErrorKind = "not_found"
)

var (
	// ErrSessionNotFound is returned by stores when no record exists.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRateLimited is returned by a throttled provider.
	ErrRateLimited = errors.New("rate limited")

	// ErrEmptyCompletion is returned when a provider answers with no text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// Error is the canonical routing error.
type Error struct {
	// Kind is the category of error
	Kind ErrorKind

	// Op is the operation that failed (e.g. "complete", "search", "cas")
	Op string

	// Provider is set for provider errors
	Provider string

	// Message is the human-readable error message
	Message string

	// Err is the wrapped cause
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	switch {
	case e.Provider != "" && e.Op != "":
		return fmt.Sprintf("%s (%s/%s): %s", e.Kind, e.Provider, e.Op, msg)
	case e.Op != "":
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Op, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status code used when this error crosses the
// HTTP boundary. Conversational requests never surface provider, retrieval or
// session errors; this mapping is for the admin endpoints.
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case ErrorKindInvalidRequest:
		return http.StatusBadRequest
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindSessionContention:
		return http.StatusConflict
	case ErrorKindSessionUnavailable, ErrorKindRetrieval, ErrorKindProvider:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithOp sets the failing operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(name string) *Error {
	e.Provider = name
	return e
}

// Wrap sets the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// Convenience constructors

// ErrProvider creates a provider error.
func ErrProvider(provider string, err error) *Error {
	return NewError(ErrorKindProvider, "").WithProvider(provider).WithOp("complete").Wrap(err)
}

// ErrRetrieval creates a retrieval error.
func ErrRetrieval(err error) *Error {
	return NewError(ErrorKindRetrieval, "").WithOp("search").Wrap(err)
}

// ErrSessionContention creates a contention error.
func ErrSessionContention(sessionID string, attempts int) *Error {
	return NewError(ErrorKindSessionContention,
		fmt.Sprintf("session %s: compare-and-swap lost after %d attempts", sessionID, attempts)).WithOp("cas")
}

// ErrSessionUnavailable creates a store-unreachable error.
func ErrSessionUnavailable(err error) *Error {
	return NewError(ErrorKindSessionUnavailable, "").WithOp("session_store").Wrap(err)
}

// ErrConfiguration creates a configuration error.
func ErrConfiguration(message string) *Error {
	return NewError(ErrorKindConfiguration, message)
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *Error {
	return NewError(ErrorKindInvalidRequest, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *Error {
	return NewError(ErrorKindNotFound, message)
}

// IsKind reports whether err (or anything it wraps) is an *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
