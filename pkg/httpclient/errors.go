package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

// DownstreamErrorResponse mirrors the httputil error envelope so structured
// error bodies from upstream services keep their code and message.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError. The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := "", string(bodyBytes)
	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		code, message = downstream.Error.Code, downstream.Error.Message
	}
	return mapDownstreamError(resp.StatusCode, code, message, serviceName)
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusGone:
		return apperrors.Gone(qualifiedMsg)
	case status == http.StatusTooManyRequests, status >= 500:
		return apperrors.Unavailable(qualifiedMsg,
			fmt.Errorf("%s returned status %d (%s)", serviceName, status, code))
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
