package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/utafrali/storefront-search/pkg/httpclient"
	"github.com/utafrali/storefront-search/pkg/middleware"
)

// adminClient calls the search service admin API for one tenant.
type adminClient struct {
	client  httpclient.Doer
	baseURL string
	tenant  string
}

func newAdminClient(baseURL, tenant string, timeout time.Duration) *adminClient {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = timeout
	cfg.UserAgent = "searchctl"
	return &adminClient{
		client:  httpclient.New(cfg),
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1/admin",
		tenant:  tenant,
	}
}

// envelope mirrors the service response format.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// do sends a request and decodes the data field of the response into out.
// Non-2xx responses become typed errors.
func (c *adminClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.TenantHeader, c.tenant)

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, "search-service")
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
