package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by discovery, analysis and the command dispatcher.
var (
	// ErrUpstreamUnavailable means an indexer or analysis service was unreachable or returned non-success
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedResponse means analysis text could not be turned into a structured result
	ErrMalformedResponse = errors.New("malformed response")

	// ErrInvalidRequest means a command was missing an argument, had a bad value, or was unknown
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRateLimited means a requester is still inside its cooldown window
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound means a requested item does not exist upstream
	ErrNotFound = errors.New("not found")
)

// UpstreamError describes a failed call to an external service
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is makes every UpstreamError match ErrUpstreamUnavailable
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// RequestError is a client-facing command failure. Message is what the
// requester sees; Kind is one of ErrInvalidRequest, ErrRateLimited, ErrNotFound.
type RequestError struct {
	Kind    error
	Message string
}

// Error implements the error interface
func (e *RequestError) Error() string {
	return e.Message
}

// Unwrap exposes the error kind to errors.Is
func (e *RequestError) Unwrap() error {
	return e.Kind
}

// NewInvalidRequest builds a RequestError of kind ErrInvalidRequest
func NewInvalidRequest(format string, args ...any) *RequestError {
	return &RequestError{Kind: ErrInvalidRequest, Message: fmt.Sprintf(format, args...)}
}
