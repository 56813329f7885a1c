package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_requests_total",
			Help: "Cache lookups by result (hit, miss, error)",
		},
		[]string{"cache", "result"},
	)

	singleflightShared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_singleflight_shared_total",
			Help: "Computations whose result was shared by concurrent callers",
		},
		[]string{"cache"},
	)

	cacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_invalidated_entries_total",
			Help: "Entries removed by explicit invalidation",
		},
		[]string{"cache", "kind"},
	)

	cacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_cache_evictions_total",
			Help: "Entries evicted by the LRU capacity bound",
		},
		[]string{"cache"},
	)
)
