package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewResource(t *testing.T) {
	res := newResource(Config{ServiceName: "storefront-cache", Environment: "test"})

	value, ok := res.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	assert.Equal(t, "storefront-cache", value.AsString())
}

func TestInitTracing(t *testing.T) {
	ctx := context.Background()
	previous := otel.GetTracerProvider()
	tp, err := InitTracing(ctx, Config{
		ServiceName:   "storefront-cache",
		Endpoint:      "localhost:4318",
		Insecure:      true,
		SamplingRatio: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	assert.Equal(t, tp, otel.GetTracerProvider())

	_, span := otel.Tracer("test").Start(ctx, "noop")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// No collector is listening; shutdown only needs to return.
	shutdownCtx, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	_ = tp.Shutdown(shutdownCtx)
}
