package correlation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestEnsureCorrelationID_KeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "run-1")
	ctx, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "run-1", cid)
	assert.Equal(t, "run-1", ExtractCorrelationID(ctx))

	_, generated := EnsureCorrelationID(context.Background())
	assert.Len(t, generated, 26)
}

func TestMetadata_IncludesSpan(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))
	ctx = ContextWithCorrelationID(ctx, "c-1")

	md := Metadata(ctx)
	assert.Equal(t, "c-1", md["correlation_id"])
	assert.Equal(t, traceID.String(), md["trace_id"])
	assert.Equal(t, spanID.String(), md["span_id"])
}
