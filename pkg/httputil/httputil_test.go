package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/storefront-search/pkg/errors"
	"github.com/utafrali/storefront-search/pkg/logger"
	"github.com/utafrali/storefront-search/pkg/validator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *ErrorResponse {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, Response{Data: map[string]int{"total": 3}})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"total":3}}`, rec.Body.String())
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)

	WriteError(rec, req, apperrors.InvalidInput("bad sort"), testLogger())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeError(t, rec)
	assert.Equal(t, "INVALID_INPUT", errResp.Code)
	assert.Equal(t, "bad sort", errResp.Message)
	assert.False(t, errResp.Retryable)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestWriteError_RetryableAppError_SetsRetryAfterAndHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)

	cause := fmt.Errorf("dial tcp 10.0.0.4:9200: connection refused: %w", apperrors.ErrSearchEngineUnavailable)
	WriteError(rec, req, apperrors.Unavailable("search temporarily unavailable", cause), testLogger())

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("Retry-After"))
	errResp := decodeError(t, rec)
	assert.True(t, errResp.Retryable)
	assert.NotContains(t, errResp.Message, "10.0.0.4")
}

func TestWriteError_Sentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"lock contention", apperrors.ErrLockContention, http.StatusConflict, "CONFLICT"},
		{"invalid", apperrors.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
		{"engine", fmt.Errorf("x: %w", apperrors.ErrSearchEngineUnavailable), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unknown", fmt.Errorf("redis: pool exhausted"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)

			WriteError(rec, req, tt.err, testLogger())

			assert.Equal(t, tt.status, rec.Code)
			errResp := decodeError(t, rec)
			assert.Equal(t, tt.code, errResp.Code)
			assert.NotContains(t, errResp.Message, "redis")
		})
	}
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	ctx := logger.WithCorrelationID(context.Background(), "corr-123")
	req := httptest.NewRequest(http.MethodGet, "/test", nil).WithContext(ctx)

	WriteError(rec, req, apperrors.NotFound("filter config", "shop-1"), testLogger())

	assert.Equal(t, "corr-123", decodeError(t, rec).RequestID)
}

func TestWriteError_NoCorrelationID_OmitsRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)

	WriteError(rec, req, apperrors.ErrNotFound, testLogger())

	assert.NotContains(t, rec.Body.String(), "request_id")
}

func TestWriteValidationError(t *testing.T) {
	type body struct {
		Handle string `json:"handle" validate:"required"`
	}
	verr := validator.Validate(body{})
	require.Error(t, verr)

	rec := httptest.NewRecorder()
	WriteValidationError(rec, verr)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decodeError(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)
	assert.Contains(t, errResp.Fields, "handle")

	rec = httptest.NewRecorder()
	WriteValidationError(rec, fmt.Errorf("plain"))
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Code)
}
