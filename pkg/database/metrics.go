package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type statMetric[S any] struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(S) float64
}

// statsCollector exports a snapshot of connection pool stats on every scrape.
type statsCollector[S any] struct {
	service string
	stats   func() S
	metrics []statMetric[S]
}

func (c *statsCollector[S]) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *statsCollector[S]) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(s), c.service)
	}
}

func desc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(name, help, []string{"service"}, nil)
}

// NewPoolStatsCollector exports pgxpool statistics.
func NewPoolStatsCollector(pool *pgxpool.Pool, service string) prometheus.Collector {
	return &statsCollector[*pgxpool.Stat]{
		service: service,
		stats:   pool.Stat,
		metrics: []statMetric[*pgxpool.Stat]{
			{desc("db_pool_acquired_connections", "Number of currently acquired connections"), prometheus.GaugeValue,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }},
			{desc("db_pool_idle_connections", "Number of currently idle connections"), prometheus.GaugeValue,
				func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }},
			{desc("db_pool_total_connections", "Total number of connections in the pool"), prometheus.GaugeValue,
				func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }},
			{desc("db_pool_max_connections", "Maximum number of connections allowed"), prometheus.GaugeValue,
				func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }},
			{desc("db_pool_acquire_count_total", "Total number of connection acquires"), prometheus.CounterValue,
				func(s *pgxpool.Stat) float64 { return float64(s.AcquireCount()) }},
			{desc("db_pool_acquire_duration_seconds_total", "Total time spent acquiring connections"), prometheus.CounterValue,
				func(s *pgxpool.Stat) float64 { return s.AcquireDuration().Seconds() }},
			{desc("db_pool_empty_acquire_count_total", "Acquires that had to wait for a connection"), prometheus.CounterValue,
				func(s *pgxpool.Stat) float64 { return float64(s.EmptyAcquireCount()) }},
		},
	}
}

// NewRedisPoolCollector exports go-redis connection pool statistics.
func NewRedisPoolCollector(client *redis.Client, service string) prometheus.Collector {
	return &statsCollector[*redis.PoolStats]{
		service: service,
		stats:   client.PoolStats,
		metrics: []statMetric[*redis.PoolStats]{
			{desc("redis_pool_hits_total", "Times a free connection was found in the pool"), prometheus.CounterValue,
				func(s *redis.PoolStats) float64 { return float64(s.Hits) }},
			{desc("redis_pool_misses_total", "Times a free connection was not found in the pool"), prometheus.CounterValue,
				func(s *redis.PoolStats) float64 { return float64(s.Misses) }},
			{desc("redis_pool_timeouts_total", "Times a wait for a connection timed out"), prometheus.CounterValue,
				func(s *redis.PoolStats) float64 { return float64(s.Timeouts) }},
			{desc("redis_pool_total_connections", "Total connections in the pool"), prometheus.GaugeValue,
				func(s *redis.PoolStats) float64 { return float64(s.TotalConns) }},
			{desc("redis_pool_idle_connections", "Idle connections in the pool"), prometheus.GaugeValue,
				func(s *redis.PoolStats) float64 { return float64(s.IdleConns) }},
		},
	}
}

// RegisterPoolMetrics registers a pgxpool collector with the default registry.
func RegisterPoolMetrics(pool *pgxpool.Pool, service string) {
	prometheus.MustRegister(NewPoolStatsCollector(pool, service))
}

// RegisterRedisPoolMetrics registers a go-redis pool collector with the default registry.
func RegisterRedisPoolMetrics(client *redis.Client, service string) {
	prometheus.MustRegister(NewRedisPoolCollector(client, service))
}
