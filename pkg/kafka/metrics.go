package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Consumer outcomes recorded on consumerMessages.
const (
	outcomeReceived     = "received"
	outcomeProcessed    = "processed"
	outcomeFailed       = "failed"
	outcomeDeadLettered = "dead_lettered"
)

var (
	consumerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "search",
			Subsystem: "kafka_consumer",
			Name:      "messages_total",
			Help:      "Kafka messages seen by consumers, by outcome.",
		},
		[]string{"topic", "group", "outcome"},
	)

	consumerDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "search",
			Subsystem: "kafka_consumer",
			Name:      "duplicates_total",
			Help:      "Events skipped because their id was already processed.",
		},
		[]string{"event_type"},
	)

	consumerHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "search",
			Subsystem: "kafka_consumer",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one message including retries.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"topic", "group"},
	)

	producerMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "search",
			Subsystem: "kafka_producer",
			Name:      "messages_total",
			Help:      "Kafka publish attempts, by result.",
		},
		[]string{"topic", "result"},
	)

	producerPublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "search",
			Subsystem: "kafka_producer",
			Name:      "publish_duration_seconds",
			Help:      "Latency of Kafka publish calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)
