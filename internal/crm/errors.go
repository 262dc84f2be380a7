package crm

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates API failures so callers can pick a treatment:
// auth errors suggest re-authentication, everything else suggests retry.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindTimeout    ErrorKind = "timeout"
	KindAuth       ErrorKind = "auth"
	KindRateLimit  ErrorKind = "rate_limit"
	KindUnknown    ErrorKind = "unknown"
	KindMalformed  ErrorKind = "malformed"
)

// APIError represents a failure talking to the CRM. Message never contains
// credentials or tokens.
type APIError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("crm %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("crm %s error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("crm %s error: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err is an *APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == kind
}

// AsAPIError unwraps err to an *APIError if possible.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
