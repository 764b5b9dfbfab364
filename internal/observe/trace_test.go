package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// withTestTracer installs a recording tracer provider for one test and
// restores the previous global afterwards.
func withTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func TestTraceIDEmptyWithoutSpan(t *testing.T) {
	if id := TraceID(context.Background()); id != "" {
		t.Errorf("TraceID = %q, want empty outside a span", id)
	}
}

func TestTraceIDInsideSpan(t *testing.T) {
	withTestTracer(t)

	ctx, span := Tracer().Start(context.Background(), "reveal")
	defer span.End()

	id := TraceID(ctx)
	if len(id) != 32 {
		t.Fatalf("TraceID = %q, want a 32-hex-digit id", id)
	}
	if id != span.SpanContext().TraceID().String() {
		t.Error("TraceID does not match the active span")
	}
}

func TestSpansReachTheExporter(t *testing.T) {
	exporter := withTestTracer(t)

	_, span := Tracer().Start(context.Background(), "coup-window")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("exported spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "coup-window" {
		t.Errorf("span name = %q", spans[0].Name)
	}
	if spans[0].InstrumentationScope.Name != tracerScope {
		t.Errorf("scope = %q, want %q", spans[0].InstrumentationScope.Name, tracerScope)
	}
}
