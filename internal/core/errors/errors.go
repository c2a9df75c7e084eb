package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Access
	ErrForbidden    = errors.New("action forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	// Projects
	ErrProjectNotFound       = errors.New("project not found")
	ErrProjectNotCollectable = errors.New("project is not eligible for collection")

	// Collection
	ErrMissingCredential   = errors.New("no TestIT credential available")
	ErrUpstreamUnavailable = errors.New("TestIT request failed")
	ErrInvalidDateRange    = errors.New("invalid date range")
	ErrDateRangeTooLong    = errors.New("date range exceeds maximum length")
	ErrCollectionRunning   = errors.New("collection already running")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("resource conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError carries the HTTP status and machine-readable code an error is
// reported with. Err stays reachable through errors.Is.
type AppError struct {
	Err        error
	Message    string
	Code       string
	StatusCode int
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(err error, status int, code, message string) *AppError {
	return &AppError{Err: err, Message: message, Code: code, StatusCode: status}
}

// NewBadRequestError reports a malformed request parameter.
func NewBadRequestError(err error, message string) *AppError {
	return newAppError(err, http.StatusBadRequest, "BAD_REQUEST", message)
}

// NewUnauthorizedError reports a missing or rejected API token.
func NewUnauthorizedError(message string) *AppError {
	return newAppError(ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// NewForbiddenError reports a valid token without the required role.
func NewForbiddenError(message string) *AppError {
	return newAppError(ErrForbidden, http.StatusForbidden, "FORBIDDEN", message)
}

// NewRateLimitError reports a caller over its request budget.
func NewRateLimitError() *AppError {
	return newAppError(ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.")
}

// NewInternalError hides err behind a generic message.
func NewInternalError(err error) *AppError {
	return newAppError(err, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
}

// ValidationErrors collects per-field messages for a 422 response.
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

// NewValidationErrors returns an empty collection.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}
