package database

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/utafrali/storefront-search/pkg/database"

var slowQueryCfg struct {
	mu        sync.RWMutex
	threshold time.Duration
	logger    *slog.Logger
}

// SetSlowQueryLogging configures slow operation detection. Operations slower
// than threshold are logged as warnings. A zero threshold disables it.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	slowQueryCfg.mu.Lock()
	defer slowQueryCfg.mu.Unlock()
	slowQueryCfg.threshold = threshold
	slowQueryCfg.logger = logger
}

func getSlowQueryConfig() (time.Duration, *slog.Logger) {
	slowQueryCfg.mu.RLock()
	defer slowQueryCfg.mu.RUnlock()
	return slowQueryCfg.threshold, slowQueryCfg.logger
}

// TraceQuery starts a span for a PostgreSQL statement. The returned function
// must be called with the operation's error when it completes:
//
//	ctx, end := database.TraceQuery(ctx, "AcquireLock", acquireLockSQL)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	return traceOp(ctx, "postgresql", operation, attribute.String("db.statement", statement))
}

// TraceCommand starts a span for a Redis command or script, keyed by the
// Redis key it touches.
func TraceCommand(ctx context.Context, operation, key string) (context.Context, func(error)) {
	return traceOp(ctx, "redis", operation, attribute.String("db.redis.key", key))
}

func traceOp(ctx context.Context, system, operation string, detail attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", system),
			attribute.String("db.operation", operation),
			detail,
		),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		threshold, logger := getSlowQueryConfig()
		if threshold <= 0 || logger == nil {
			return
		}
		if elapsed := time.Since(start); elapsed >= threshold {
			attrs := []any{
				slog.String("db_system", system),
				slog.String("operation", operation),
				slog.String(string(detail.Key), detail.Value.Emit()),
				slog.Duration("duration", elapsed),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			logger.WarnContext(ctx, "slow query detected", attrs...)
		}
	}
}
