package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for the client error taxonomy.
var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("conflict")
	ErrNetwork        = errors.New("network unavailable")
	ErrInternal       = errors.New("internal error")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrSessionEnded   = errors.New("session ended")
)

// AppError represents a structured error with HTTP status mapping and
// optional field-level reasons.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Status  int               `json:"-"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation creates a pre-network validation error carrying field reasons.
func Validation(fields map[string]string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: "request validation failed",
		Fields:  fields,
		Status:  http.StatusBadRequest,
		Err:     ErrValidation,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// NotFound creates a 404 error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: message,
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Network wraps a transport failure where no response was received.
func Network(err error) *AppError {
	return &AppError{
		Code:    "NETWORK_ERROR",
		Message: "unable to reach the server",
		Err:     fmt.Errorf("%w: %w", ErrNetwork, err),
	}
}

// SessionEnded reports that the session was closed while an operation was in flight.
func SessionEnded() *AppError {
	return &AppError{
		Code:    "SESSION_ENDED",
		Message: "session ended",
		Status:  http.StatusUnauthorized,
		Err:     ErrSessionEnded,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// FromStatus maps a server-reported status and message to an AppError.
func FromStatus(status int, message string) *AppError {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &AppError{Code: "INVALID_INPUT", Message: message, Status: status, Err: ErrValidation}
	case status == http.StatusUnauthorized:
		return Unauthorized(message)
	case status == http.StatusForbidden:
		return Forbidden(message)
	case status == http.StatusNotFound:
		return NotFound(message)
	case status == http.StatusConflict:
		return Conflict(message)
	case status == http.StatusServiceUnavailable:
		return &AppError{Code: "SERVICE_UNAVAILABLE", Message: message, Status: status, Err: ErrServiceUnavail}
	case status >= 500:
		return &AppError{Code: "SERVER_ERROR", Message: message, Status: status, Err: ErrInternal}
	default:
		return &AppError{Code: "HTTP_ERROR", Message: message, Status: status}
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// Message returns the server-provided message of err when one exists,
// otherwise fallback. Network errors always produce their own message;
// client-side internal errors never leak theirs.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Message == "" {
		return fallback
	}
	if appErr.Status == 0 && !errors.Is(appErr, ErrNetwork) {
		return fallback
	}
	if appErr.Code == "INTERNAL_ERROR" {
		return fallback
	}
	return appErr.Message
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSessionEnded):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNetwork), errors.Is(err, ErrServiceUnavail):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
