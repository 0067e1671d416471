package hyperliquid

import (
	"errors"
	"fmt"
)

// ErrorKind classifies venue failures so callers can decide whether a retry
// makes sense. Timeout and RateLimited are transient; Unauthorized and
// InvalidResponse are not retried.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindRateLimited     ErrorKind = "rate_limited"
	KindVenueError      ErrorKind = "venue_error"
)

// VenueError is the typed failure returned by bridge operations.
type VenueError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *VenueError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("venue %s (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("venue %s: %s", e.Kind, e.Message)
}

func (e *VenueError) Unwrap() error { return e.Err }

// Retryable reports whether the failure class is worth retrying.
func (e *VenueError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindVenueError:
		return e.Kind != KindVenueError || e.Code >= 500
	default:
		return false
	}
}

func newVenueError(kind ErrorKind, msg string, err error) *VenueError {
	return &VenueError{Kind: kind, Message: msg, Err: err}
}

// AsVenueError extracts a VenueError from an error chain.
func AsVenueError(err error) (*VenueError, bool) {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
