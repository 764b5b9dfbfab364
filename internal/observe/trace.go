package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerScope is the instrumentation scope for all Yggdrasil spans.
const tracerScope = "github.com/jwhector/yggdrasil"

// Tracer returns the process tracer from the globally registered provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerScope)
}

// TraceID returns the hex trace id of the span active in ctx, or "" when
// there is none. The transport layer surfaces it as a response header so
// an operator chasing a console glitch can tie a request to its spans.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
