package domain

import (
	"fmt"
	"net/http"
)

// ErrorType categorizes an API error.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeUpstream       ErrorType = "upstream"
	ErrorTypeServer         ErrorType = "server"
)

// APIError is the canonical error returned by services and translated to an
// HTTP status by handlers.
type APIError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`

	// StatusCode overrides the default status mapping when set.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// HTTPStatusCode returns the HTTP status for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(format string, args ...any) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a not found error.
func ErrNotFound(format string, args ...any) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: fmt.Sprintf(format, args...)}
}

// ErrUpstream creates an upstream dependency error.
func ErrUpstream(format string, args ...any) *APIError {
	return &APIError{Type: ErrorTypeUpstream, Message: fmt.Sprintf(format, args...)}
}

// ErrServer creates an internal server error.
func ErrServer(format string, args ...any) *APIError {
	return &APIError{Type: ErrorTypeServer, Message: fmt.Sprintf(format, args...)}
}
