package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrListingNotFound    = errors.New("listing not found")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrInvalidInput       = errors.New("invalid input")
)

// NetworkError is returned when a remote call fails in transport or answers
// with a non-2xx status that has no more specific meaning.
type NetworkError struct {
	Op     string
	Status int
	Reason string
	Err    error
}

func (e *NetworkError) Error() string {
	reason := e.Reason
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), reason)
	}
	return fmt.Sprintf("%s: %s", e.Op, reason)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError carries the backend's (or the form's) explanation of a
// rejected payload. Fields is keyed by form field name.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return ErrInvalidInput.Error()
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// AuthError means the credential was missing, expired or rejected.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return ErrUnauthenticated.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return ErrUnauthenticated }

// IsNetworkError reports whether err is (or wraps) a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
