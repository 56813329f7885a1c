package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/storefront-search/pkg/errors"
	"github.com/utafrali/storefront-search/pkg/logger"
	"github.com/utafrali/storefront-search/pkg/validator"
)

// DefaultRetryAfterSeconds is sent with retryable failures.
const DefaultRetryAfterSeconds = 5

// Response is the standard JSON response envelope.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Meta  any            `json:"meta,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a standardized error response based on the error type.
// Retryable errors get a Retry-After header. Internal causes are logged,
// never rendered.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Retryable {
			w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
			l.WarnContext(r.Context(), "retryable request failure",
				slog.String("code", appErr.Code),
				slog.String("error", err.Error()),
				slog.String("path", r.URL.Path),
			)
		}
		if appErr.Status >= http.StatusInternalServerError && !appErr.Retryable {
			l.ErrorContext(r.Context(), "internal error",
				slog.String("error", err.Error()),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
		}
		WriteJSON(w, appErr.Status, Response{
			Error: &ErrorResponse{
				Code:      appErr.Code,
				Message:   appErr.Message,
				Retryable: appErr.Retryable,
				RequestID: requestID,
			},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"
	retryable := false

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
	case errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrLockContention):
		code = "CONFLICT"
		message = "resource is busy"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "INVALID_INPUT"
		message = err.Error()
	case status == http.StatusServiceUnavailable:
		code = "SERVICE_UNAVAILABLE"
		message = "service temporarily unavailable"
		retryable = true
		w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
	}

	if status == http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: code, Message: message, Retryable: retryable, RequestID: requestID},
	})
}

// WriteValidationError writes a standardized validation error response.
// It handles ValidationError from the validator package and returns field-level errors.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}
