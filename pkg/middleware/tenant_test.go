package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront-search/pkg/httputil"
	"github.com/utafrali/storefront-search/pkg/logger"
)

func tenantEcho() http.Handler {
	return Tenant()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(TenantFromContext(r.Context()) + "|" + logger.TenantIDFromContext(r.Context())))
	}))
}

func TestTenant_FromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?shop=other", nil)
	req.Header.Set(TenantHeader, "shop-1")
	rr := httptest.NewRecorder()

	tenantEcho().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "shop-1|shop-1", rr.Body.String())
}

func TestTenant_FromQueryParam(t *testing.T) {
	rr := httptest.NewRecorder()
	tenantEcho().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/search?shop=acme.myshop", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "acme.myshop|acme.myshop", rr.Body.String())
}

func TestTenant_RejectsMissingOrMalformed(t *testing.T) {
	for _, tenant := range []string{"", "a/b", "../x", "-lead"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
		if tenant != "" {
			req.Header.Set(TenantHeader, tenant)
		}
		rr := httptest.NewRecorder()

		tenantEcho().ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, tenant)
		var resp httputil.Response
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, "TENANT_REQUIRED", resp.Error.Code)
	}
}

func TestCacheControl_SetsVaryOnGet(t *testing.T) {
	h := CacheControl(30, TenantHeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/search/filters", nil))
	assert.Equal(t, "public, max-age=30", rr.Header().Get("Cache-Control"))
	assert.Equal(t, TenantHeader, rr.Header().Get("Vary"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/admin/filter-config", nil))
	assert.Empty(t, rr.Header().Get("Cache-Control"))
}

func TestRecovery_ReturnsEnvelope(t *testing.T) {
	h := Recovery(newTestLogger(&bytes.Buffer{}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
}
