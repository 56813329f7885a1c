package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/utafrali/storefront-search/pkg/config"
)

func TestConfig_EnvDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, config.LoadFrom(&cfg, map[string]string{}))

	assert.Equal(t, "search-service", cfg.ServiceName)
	assert.Equal(t, "localhost:4318", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.False(t, cfg.Enabled)
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracer_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracer(context.Background(), Config{
		ServiceName:  "search-service",
		OTLPEndpoint: "127.0.0.1:0",
		SampleRate:   0.5,
		Enabled:      true,
		Environment:  "test",
	})
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)
	_ = shutdown(context.Background())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestStart_RecordsError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, end := Start(context.Background(), "test", "indexing.Run", attribute.String("tenant.id", "shop-1"))
	end(errors.New("stale fence"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "indexing.Run", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}
