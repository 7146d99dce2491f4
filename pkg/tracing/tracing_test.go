package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInjectExtract_RoundTrip(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	SetupPropagator()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := StartSpan(context.Background(), "parent")
	carrier := InjectContext(ctx)
	span.End()

	if carrier["traceparent"] == "" {
		t.Fatalf("traceparent not injected: %v", carrier)
	}

	restored := ExtractContext(context.Background(), carrier)
	got := trace.SpanContextFromContext(restored)
	if got.TraceID() != span.SpanContext().TraceID() {
		t.Errorf("trace id = %s, want %s", got.TraceID(), span.SpanContext().TraceID())
	}
}

func TestSetError(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := StartSpan(context.Background(), "failing")
	SetError(ctx, errors.New("boom"))
	SetError(ctx, nil)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Status.Description != "boom" {
		t.Errorf("status = %+v", spans[0].Status)
	}
}
