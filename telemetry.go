package ygggo_pool

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName    = "github.com/yggai/ygggo_pool"
	instrumentationVersion = "v0.1.0"
)

// TelemetryConfig holds tracing configuration.
type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

var tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(instrumentationVersion))

// EnableTelemetry enables or disables OpenTelemetry tracing for this pool.
func (p *Pool) EnableTelemetry(enabled bool) {
	if p == nil {
		return
	}
	p.telemetryEnabled = enabled
}

// startSpan opens a span for a pool operation with common attributes.
func (p *Pool) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if p == nil || !p.telemetryEnabled {
		return ctx, trace.SpanFromContext(ctx)
	}
	ctx, span := tracer.Start(ctx, "ygggo_pool."+operation)
	span.SetAttributes(
		attribute.String("db.system", "mysql"),
		attribute.String("db.operation", operation),
	)
	return ctx, span
}

// finishSpan completes a span, recording the error when present.
func (p *Pool) finishSpan(span trace.Span, err error) {
	if p == nil || !p.telemetryEnabled {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
