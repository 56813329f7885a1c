package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})

	return exporter
}

func spanAttrs(s tracetest.SpanStub) map[string]string {
	attrs := make(map[string]string)
	for _, a := range s.Attributes {
		attrs[string(a.Key)] = a.Value.Emit()
	}
	return attrs
}

func TestTraceQuery_Success(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), "AcquireLock", "INSERT INTO sync_locks")
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.AcquireLock", spans[0].Name)

	attrs := spanAttrs(spans[0])
	assert.Equal(t, "postgresql", attrs["db.system"])
	assert.Equal(t, "AcquireLock", attrs["db.operation"])
	assert.Equal(t, "INSERT INTO sync_locks", attrs["db.statement"])
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}

func TestTraceQuery_Error(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), "AdvanceCheckpoint", "UPDATE sync_checkpoints")
	end(errors.New("connection refused"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events)
}

func TestTraceCommand_RedisAttributes(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceCommand(context.Background(), "RenewLock", "lock:shop-1:products")
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	attrs := spanAttrs(spans[0])
	assert.Equal(t, "redis", attrs["db.system"])
	assert.Equal(t, "lock:shop-1:products", attrs["db.redis.key"])
}

func TestSlowQueryLogging(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	SetSlowQueryLogging(time.Nanosecond, logger)
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "PublishFilterConfig", "INSERT INTO filter_configs")
	end(errors.New("unique constraint violation"))

	out := buf.String()
	assert.Contains(t, out, "slow query detected")
	assert.Contains(t, out, "PublishFilterConfig")
	assert.Contains(t, out, "INSERT INTO filter_configs")
	assert.Contains(t, out, "unique constraint violation")
}

func TestSlowQueryLogging_FastOrDisabled(t *testing.T) {
	setupTestTracer(t)

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	SetSlowQueryLogging(time.Hour, logger)
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	_, end := TraceQuery(context.Background(), "Fast", "SELECT 1")
	end(nil)
	assert.NotContains(t, buf.String(), "slow query detected")

	SetSlowQueryLogging(0, nil)
	_, end = TraceQuery(context.Background(), "AnyOp", "SELECT 1")
	end(nil)
}
