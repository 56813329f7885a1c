package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for common cases.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrGone           = errors.New("resource gone")
)

// Search and indexing failure taxonomy. Callers decide which of these are
// absorbed (missing config, cache errors, contention) and which abort a run.
var (
	ErrConfigurationMissing    = errors.New("no active filter configuration")
	ErrCacheUnavailable        = errors.New("cache backend unavailable")
	ErrSearchEngineUnavailable = errors.New("search engine unavailable")
	ErrLockContention          = errors.New("lock held by another holder")
	ErrStaleLockFence          = errors.New("stale lock fence token")
	ErrCheckpointCorrupt       = errors.New("checkpoint corrupt")
	ErrCheckpointRegression    = errors.New("checkpoint would regress")
)

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Status    int    `json:"-"`
	Retryable bool   `json:"retryable,omitempty"`
	Err       error  `json:"-"`
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

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
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

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrConflict,
	}
}

// Gone creates a 410 error.
func Gone(message string) *AppError {
	return &AppError{
		Code:    "GONE",
		Message: message,
		Status:  http.StatusGone,
		Err:     ErrGone,
	}
}

// Unavailable creates a retryable 503 error. The cause is kept for logs and
// errors.Is checks but never rendered to clients.
func Unavailable(message string, cause error) *AppError {
	if cause == nil {
		cause = ErrServiceUnavail
	}
	return &AppError{
		Code:      "SERVICE_UNAVAILABLE",
		Message:   message,
		Status:    http.StatusServiceUnavailable,
		Retryable: true,
		Err:       cause,
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

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return errors.Is(err, ErrServiceUnavail) || errors.Is(err, ErrSearchEngineUnavailable)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConfigurationMissing):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrLockContention):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrGone):
		return http.StatusGone
	case errors.Is(err, ErrServiceUnavail), errors.Is(err, ErrSearchEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
