package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNetwork           = errors.New("network failure")
	ErrUpstreamError     = errors.New("upstream error")
	ErrBusy              = errors.New("submission in progress")
	ErrClosed            = errors.New("session closed")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Error codes carried by APIError.Code.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNetwork           = "NETWORK_ERROR"
	CodeServer            = "SERVER_ERROR"
	CodeBusy              = "BUSY"
	CodeClosed            = "SESSION_CLOSED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInternal          = "INTERNAL_ERROR"
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the user may resubmit after this error.
// Validation errors need corrected input first.
func (e *APIError) Retryable() bool {
	return e.Code == CodeNetwork || e.Code == CodeServer
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewRejectedError creates a 400 error for an order the backend refused as
// invalid. Message is the backend's own text.
func NewRejectedError(message string) *APIError {
	return &APIError{
		Code:       CodeValidation,
		Message:    message,
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewNetworkError creates a 503 error for transport failures and timeouts.
func NewNetworkError(service string, err error) *APIError {
	return &APIError{
		Code:       CodeNetwork,
		Message:    fmt.Sprintf("%s unreachable", service),
		StatusCode: 503,
		Err:        fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewServerError creates a 502 error for non-2xx backend responses.
// Message carries the backend's own text so it can be shown to the user.
func NewServerError(status int, message string) *APIError {
	return &APIError{
		Code:       CodeServer,
		Message:    message,
		StatusCode: 502,
		Err:        fmt.Errorf("%w: status %d", ErrUpstreamError, status),
	}
}

// NewBusyError creates a 409 error for actions attempted while an order is in flight.
func NewBusyError() *APIError {
	return &APIError{
		Code:       CodeBusy,
		Message:    "order submission in progress",
		StatusCode: 409,
		Err:        ErrBusy,
	}
}

// NewClosedError creates a 410 error for actions on a finished session.
func NewClosedError() *APIError {
	return &APIError{
		Code:       CodeClosed,
		Message:    "session is closed",
		StatusCode: 410,
		Err:        ErrClosed,
	}
}

// NewTransitionError creates a 409 error for an action not valid in the current stage.
func NewTransitionError(from, action string) *APIError {
	return &APIError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("cannot %s from %s", action, from),
		StatusCode: 409,
		Err:        ErrInvalidTransition,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       CodeInternal,
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}
