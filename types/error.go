package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

const (
	ErrInvalidRequest        ErrorCode = "INVALID_REQUEST"
	ErrAgentNotFound         ErrorCode = "AGENT_NOT_FOUND"
	ErrTemplateNotFound      ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrNodeFailed            ErrorCode = "NODE_FAILED"
	ErrCallLimitExceeded     ErrorCode = "CALL_LIMIT_EXCEEDED"
	ErrRetryExhausted        ErrorCode = "RETRY_EXHAUSTED"
	ErrPermissionPending     ErrorCode = "PERMISSION_PENDING"
	ErrNoPendingPermission   ErrorCode = "NO_PENDING_PERMISSION"
	ErrCheckpointUnavailable ErrorCode = "CHECKPOINT_UNAVAILABLE"
	ErrUpstreamTimeout       ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError         ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError         ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
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
	return &Error{Code: code, Message: message, HTTPStatus: defaultHTTPStatus(code)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus overrides the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, or "" if it is not an *Error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given engine error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// defaultHTTPStatus maps engine error codes to the status the API layer returns.
func defaultHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrAgentNotFound, ErrTemplateNotFound, ErrNoPendingPermission:
		return http.StatusNotFound
	case ErrPermissionPending:
		return http.StatusConflict
	case ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case ErrUpstreamError, ErrCheckpointUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
