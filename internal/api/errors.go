package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/firmgen/internal/api/shared"
	"github.com/phrazzld/firmgen/internal/docs"
	"github.com/phrazzld/firmgen/internal/task"
)

// RetryAfterSeconds is how long clients are told to wait before polling an
// unfinished task again.
const RetryAfterSeconds = 10

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Bad request errors
	case errors.Is(err, task.ErrValidation),
		errors.Is(err, docs.ErrUnsupportedType):
		return http.StatusBadRequest

	// Not found errors
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, task.ErrConflict),
		errors.Is(err, task.ErrInvalidTransition):
		return http.StatusConflict

	case errors.Is(err, task.ErrNotReady):
		return http.StatusTooEarly

	// Service unavailable errors
	case errors.Is(err, docs.ErrToolUnavailable),
		errors.Is(err, task.ErrSchedulerStopped):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	// Validation errors name the field but never echo internal values
	var verr *task.ValidationError
	if errors.As(err, &verr) {
		return "Invalid " + verr.Field + ": " + verr.Reason
	}

	switch {
	case errors.Is(err, docs.ErrUnsupportedType):
		return "Unsupported document type"
	case errors.Is(err, task.ErrNotFound):
		return "Task not found"
	case errors.Is(err, task.ErrConflict):
		return "Task is currently processing"
	case errors.Is(err, task.ErrInvalidTransition):
		return "Task state does not allow this operation"
	case errors.Is(err, task.ErrNotReady):
		return "Task not yet completed"
	case errors.Is(err, docs.ErrToolUnavailable):
		return "Required document tool is not installed"
	case errors.Is(err, task.ErrSchedulerStopped):
		return "Service is shutting down"
	}

	switch MapErrorToStatusCode(err) {
	case http.StatusBadRequest:
		return "Invalid request"
	case http.StatusNotFound:
		return "Resource not found"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError maps err to a status code and writes the sanitized response.
// The full error is logged (redacted). Not-ready errors carry a Retry-After hint.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)
	if status == http.StatusTooEarly {
		shared.RespondNotReady(w, r, GetSafeErrorMessage(err), RetryAfterSeconds)
		return
	}

	var opts []shared.ResponseOption
	if errors.Is(err, docs.ErrUnsupportedType) {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err, opts...)
}
