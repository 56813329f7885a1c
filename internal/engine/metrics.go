package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	engineUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "search_engine_up",
		Help: "Whether the last probe found the search engine connected and initialized",
	})

	// RequestDuration is observed by engine implementations per operation.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_engine_request_duration_seconds",
			Help:    "Search engine request latency by operation and outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine", "operation", "status"},
	)
)
