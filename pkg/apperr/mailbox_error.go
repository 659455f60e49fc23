package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"mailbox_server/core/port/out"
)

// Error codes
const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeReauthRequired   = "REAUTH_REQUIRED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeOAuthFailed      = "OAUTH_FAILED"
	CodeUpstreamNetwork  = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamRejected = "UPSTREAM_REJECTED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeConfigError      = "CONFIG_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, Status: status, Err: err}
}

func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

func MissingField(field string) *AppError {
	return New(CodeValidationFailed, fmt.Sprintf("missing required field: %s", field), http.StatusBadRequest).
		WithDetail("field", field)
}

func InvalidInput(field, reason string) *AppError {
	return New(CodeValidationFailed, fmt.Sprintf("invalid input for '%s': %s", field, reason), http.StatusBadRequest).
		WithDetail("field", field)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

func OAuthFailed(err error) *AppError {
	return Wrap(err, CodeOAuthFailed, "oauth login failed", http.StatusBadGateway)
}

func Internal(err error) *AppError {
	return Wrap(err, CodeInternalError, "internal server error", http.StatusInternalServerError)
}

func Unavailable(message string) *AppError {
	return New(CodeUnavailable, message, http.StatusServiceUnavailable)
}

func ConfigError(message string) *AppError {
	return New(CodeConfigError, message, http.StatusInternalServerError)
}

var ErrRateLimited = New(CodeRateLimited, "too many requests", http.StatusTooManyRequests)

// FromProvider converts a mailbox provider failure to an HTTP-facing error.
// Auth errors ask the user to sign in again; upstream api errors keep their
// status when it is a client error.
func FromProvider(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	pe, ok := out.AsProviderError(err)
	if !ok {
		return Internal(err)
	}

	switch pe.Kind {
	case out.ProviderErrAuth:
		return Wrap(err, CodeReauthRequired, "mailbox credential rejected, sign in again", http.StatusUnauthorized)
	case out.ProviderErrNetwork:
		return Wrap(err, CodeUpstreamNetwork, "mail service unreachable", http.StatusBadGateway)
	default:
		status := http.StatusBadGateway
		if pe.Status == http.StatusNotFound || pe.Status == http.StatusBadRequest {
			status = pe.Status
		}
		return Wrap(err, CodeUpstreamRejected, pe.Message, status).WithDetail("upstream_status", pe.Status)
	}
}

// AsAppError returns err as an *AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
