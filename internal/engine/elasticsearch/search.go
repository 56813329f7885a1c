package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/utafrali/storefront-search/internal/domain"
	"github.com/utafrali/storefront-search/internal/engine"
)

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source domain.Product `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]esFacetAgg `json:"aggregations"`
}

type esFacetAgg struct {
	DocCount int64 `json:"doc_count"`
	Values   struct {
		Buckets []struct {
			Key      string `json:"key"`
			DocCount int64  `json:"doc_count"`
		} `json:"buckets"`
		Count int64    `json:"count"`
		Min   *float64 `json:"min"`
		Max   *float64 `json:"max"`
	} `json:"values"`
}

// Search implements engine.SearchEngine.
func (e *Engine) Search(ctx context.Context, in domain.SearchInput) (_ *engine.Page, err error) {
	defer observe("search", time.Now(), &err)

	var esResp esSearchResponse
	if err := e.search(ctx, "elasticsearch search", buildSearchQuery(in), &esResp); err != nil {
		return nil, err
	}

	page := &engine.Page{
		Products: make([]domain.ProductSummary, 0, len(esResp.Hits.Hits)),
		Total:    esResp.Hits.Total.Value,
	}
	for i := range esResp.Hits.Hits {
		page.Products = append(page.Products, esResp.Hits.Hits[i].Source.Summary())
	}
	return page, nil
}

// Aggregate implements engine.SearchEngine with one request for all facets.
func (e *Engine) Aggregate(ctx context.Context, in domain.SearchInput, facets []domain.FacetSpec) (_ []domain.FacetResult, err error) {
	if len(facets) == 0 {
		return []domain.FacetResult{}, nil
	}
	defer observe("aggregate", time.Now(), &err)

	var esResp esSearchResponse
	if err := e.search(ctx, "elasticsearch aggregate", buildAggregateQuery(in, facets), &esResp); err != nil {
		return nil, err
	}

	results := make([]domain.FacetResult, 0, len(facets))
	for i, spec := range facets {
		agg, ok := esResp.Aggregations[aggName(i)]
		if !ok {
			return nil, fmt.Errorf("elasticsearch aggregate: missing aggregation for facet %q", spec.Handle)
		}
		res := domain.FacetResult{Handle: spec.Handle}
		if spec.Kind == domain.FacetKindRange {
			if agg.Values.Count > 0 && agg.Values.Min != nil && agg.Values.Max != nil {
				res.Range = &domain.RangeStats{
					Min:   int64(math.Round(*agg.Values.Min)),
					Max:   int64(math.Round(*agg.Values.Max)),
					Count: agg.Values.Count,
				}
			}
		} else {
			res.Buckets = make([]domain.FacetBucket, 0, len(agg.Values.Buckets))
			for _, b := range agg.Values.Buckets {
				res.Buckets = append(res.Buckets, domain.FacetBucket{Value: b.Key, Count: b.DocCount})
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) search(ctx context.Context, op string, query map[string]any, out any) error {
	data, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("%s: marshal query: %w", op, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError(op, res)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
