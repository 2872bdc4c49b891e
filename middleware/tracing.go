package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// tracerName is the instrumentation scope name for marketsync tracing.
const tracerName = "github.com/george-itf/amazon-listing-helper-sub000"

// Tracing returns middleware that wraps job execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through with zero
// overhead.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) ([]byte, error) {
		ctx, span := tracer.Start(ctx, "marketsync.job.execute",
			trace.WithAttributes(
				attribute.String("marketsync.job.id", j.ID.String()),
				attribute.String("marketsync.job.type", string(j.Type)),
				attribute.String("marketsync.entity.kind", j.Scope.EntityKind),
				attribute.String("marketsync.entity.id", j.Scope.EntityID),
				attribute.Int("marketsync.attempt", j.Attempts),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		result, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return result, err
	}
}
