package indexing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_indexing_runs_total",
			Help: "Indexing runs by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_indexing_batch_duration_seconds",
			Help:    "Time to fetch, apply and checkpoint one batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_indexing_documents_total",
			Help: "Documents written to the search engine by operation",
		},
		[]string{"operation"},
	)

	schedulerCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "search_indexing_triggers_coalesced_total",
		Help: "Triggers folded into an already queued or running sync",
	})
)
