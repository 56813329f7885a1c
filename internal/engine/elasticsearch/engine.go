// Package elasticsearch implements engine.SearchEngine on Elasticsearch.
// All tenants share one index; every document id is prefixed with its
// tenant and every query carries a tenant_id term filter.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/engine"
	apperrors "github.com/utafrali/storefront-search/pkg/errors"
)

const engineName = "elasticsearch"

// Config configures the Elasticsearch engine.
type Config struct {
	URL      string
	Index    string
	Username string
	Password string
	// Refresh is passed to bulk writes ("true", "false" or "wait_for").
	Refresh string
}

// Engine is an Elasticsearch-backed implementation of engine.SearchEngine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	refresh   string
	logger    *slog.Logger
}

var _ engine.SearchEngine = (*Engine)(nil)

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool                     `json:"errors"`
	Items  []map[string]esBulkItem `json:"items"`
}

type esBulkItem struct {
	ID     string `json:"_id"`
	Status int    `json:"status"`
	Error  struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an engine client. It does not contact the cluster; the index
// is created on the first successful Status probe or by EnsureIndex.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndexName
	}
	if cfg.Refresh == "" {
		cfg.Refresh = "wait_for"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	return &Engine{
		client:    client,
		indexName: cfg.Index,
		refresh:   cfg.Refresh,
		logger:    logger,
	}, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// EnsureIndex checks whether the products index exists and creates it if not.
func (e *Engine) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index exists: unexpected status %s", res.Status())
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		var errResp esErrorResponse
		if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil {
			// Another instance created it first.
			if errResp.Error.Type == "resource_already_exists_exception" {
				return nil
			}
			return fmt.Errorf("create index: %s: %s", errResp.Error.Type, errResp.Error.Reason)
		}
		return fmt.Errorf("create index: unexpected status %s", res.Status())
	}

	e.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", e.indexName))
	return nil
}

// DeleteIndex removes the entire Elasticsearch index.
// It is intended for testing and administrative operations only.
// A 404 response is treated as success (index already absent).
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete index", res)
	}

	e.logger.InfoContext(ctx, "elasticsearch index deleted", slog.String("index", e.indexName))
	return nil
}

// Status implements engine.SearchEngine. A reachable cluster without the
// index gets the index created.
func (e *Engine) Status(ctx context.Context) engine.Status {
	st := engine.Status{CheckedAt: time.Now()}
	if err := e.Ping(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Connected = true

	if err := e.EnsureIndex(ctx); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Initialized = true
	return st
}

// Upsert implements engine.SearchEngine using the bulk NDJSON API.
func (e *Engine) Upsert(ctx context.Context, tenant string, products []domain.Product) (err error) {
	if len(products) == 0 {
		return nil
	}
	defer observe("upsert", time.Now(), &err)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range products {
		doc := products[i]
		doc.Tenant = tenant
		action := map[string]any{
			"index": map[string]any{"_index": e.indexName, "_id": docID(tenant, doc.ID)},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch upsert: encode action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("elasticsearch upsert: encode document: %w", err)
		}
	}

	if err := e.bulk(ctx, "elasticsearch upsert", &buf); err != nil {
		return err
	}
	e.logger.DebugContext(ctx, "bulk indexed products", slog.String("tenant", tenant), slog.Int("count", len(products)))
	return nil
}

// Delete implements engine.SearchEngine. Missing documents are ignored.
func (e *Engine) Delete(ctx context.Context, tenant string, ids []string) (err error) {
	if len(ids) == 0 {
		return nil
	}
	defer observe("delete", time.Now(), &err)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		action := map[string]any{
			"delete": map[string]any{"_index": e.indexName, "_id": docID(tenant, id)},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch delete: encode action: %w", err)
		}
	}

	if err := e.bulk(ctx, "elasticsearch delete", &buf); err != nil {
		return err
	}
	e.logger.DebugContext(ctx, "bulk deleted products", slog.String("tenant", tenant), slog.Int("count", len(ids)))
	return nil
}

func (e *Engine) bulk(ctx context.Context, op string, body *bytes.Buffer) error {
	res, err := e.client.Bulk(
		bytes.NewReader(body.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(e.refresh),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError(op, res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if !bulkResp.Errors {
		return nil
	}

	var errMsgs []string
	for _, entry := range bulkResp.Items {
		for action, item := range entry {
			if action == "delete" && item.Status == http.StatusNotFound {
				continue
			}
			if item.Error.Type != "" {
				errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s: %s", item.ID, item.Error.Type, item.Error.Reason))
			}
		}
	}
	if len(errMsgs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: partial errors: %s", op, strings.Join(errMsgs, "; "))
}

// docID is the index-wide document id of a tenant's product. Both parts are
// escaped so the ":" separator cannot occur inside either of them.
func docID(tenant, id string) string {
	return url.QueryEscape(tenant) + ":" + url.QueryEscape(id)
}

// responseError decodes an Elasticsearch error body into an error. A 400
// means the request itself was rejected and wraps ErrInvalidInput.
func responseError(op string, res *esapi.Response) error {
	var errResp esErrorResponse
	err := fmt.Errorf("%s: unexpected status %s", op, res.Status())
	if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		err = fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	if res.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidInput, err)
	}
	return err
}

func observe(op string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	engine.RequestDuration.WithLabelValues(engineName, op, status).Observe(time.Since(start).Seconds())
}
