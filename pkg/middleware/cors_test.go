package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_DevMode_AllowsWildcard(t *testing.T) {
	handler := CORS(DefaultCORSConfig("development", nil))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORS_ProdMode_AllowedOrigin(t *testing.T) {
	handler := CORS(DefaultCORSConfig("production", []string{"https://a.example.com", "https://b.example.com"}))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://b.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "https://b.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))
}

func TestCORS_ProdMode_RejectedOrigin(t *testing.T) {
	handler := CORS(DefaultCORSConfig("production", []string{"https://a.example.com"}))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_ProdMode_WildcardInList_AllowsAll(t *testing.T) {
	handler := CORS(DefaultCORSConfig("production", []string{"*"}))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://any.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightOptions_Returns204(t *testing.T) {
	called := false
	handler := CORS(DefaultCORSConfig("development", nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, called)
}

func TestCORS_DefaultHeadersIncludeTenantAndRetryAfter(t *testing.T) {
	handler := CORS(DefaultCORSConfig("development", nil))(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))

	assert.Equal(t, "Accept, Content-Type, X-Correlation-ID, X-Tenant-ID", rr.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "X-Correlation-ID, Retry-After", rr.Header().Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "3600", rr.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_EmptyConfigFallsBackToDefaults(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://a.example.com"}, AllowCredentials: true})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://a.example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}
