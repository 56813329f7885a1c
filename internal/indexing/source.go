package indexing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/utafrali/storefront-search/internal/domain"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
	"github.com/utafrali/storefront-search/pkg/httpclient"
)

// ChangePage is one page of the upstream change feed.
type ChangePage struct {
	Records []domain.ChangeRecord `json:"data"`
	// NextCursor resumes the feed after this page.
	NextCursor string `json:"next_cursor"`
	// Sequence is the upstream position of NextCursor.
	Sequence int64 `json:"sequence"`
	HasMore  bool  `json:"has_more"`
}

// Source reads a tenant's change feed. An empty cursor starts from the
// beginning. A cursor the upstream no longer recognises yields an error
// wrapping ErrCheckpointCorrupt.
type Source interface {
	Changes(ctx context.Context, tenant, resource, cursor string, limit int) (*ChangePage, error)
}

const productServiceName = "product-service"

// HTTPSource reads the change feed from the product service.
type HTTPSource struct {
	client  httpclient.Doer
	baseURL string
}

// NewHTTPSource creates a source for the product service at baseURL. The
// client is normally a CircuitBreakerClient around a retrying Client.
func NewHTTPSource(client httpclient.Doer, baseURL string) *HTTPSource {
	return &HTTPSource{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Changes implements Source.
func (s *HTTPSource) Changes(ctx context.Context, tenant, resource, cursor string, limit int) (*ChangePage, error) {
	q := url.Values{}
	q.Set("cursor", cursor)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := fmt.Sprintf("%s/api/v1/%s/changes?%s", s.baseURL, url.PathEscape(resource), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build changes request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", tenant)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch changes: %w", err)
	}

	if resp.StatusCode == http.StatusGone {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch changes: cursor %q expired upstream: %w", cursor, apperrors.ErrCheckpointCorrupt)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch changes: %w", httpclient.ParseResponseError(resp, productServiceName))
	}
	defer func() { _ = resp.Body.Close() }()

	var page ChangePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode changes: %w", err)
	}
	for i := range page.Records {
		if !page.Records[i].Deleted {
			page.Records[i].Product.Normalize()
		}
	}
	return &page, nil
}
