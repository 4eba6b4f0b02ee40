package monitor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InitTracing wires an OTLP/HTTP exporter when endpoint is non-empty
// (OTEL_EXPORTER_OTLP_ENDPOINT, spec §6 expansion table), exporting spans
// so a request's correlation id can be cross-referenced against its
// trace — tracing, not the structured-logging infrastructure the
// Non-goals exclude, so it is carried as ambient stack regardless.
// Returns a shutdown func that must be called on process exit; if
// endpoint is empty, tracing is a no-op and shutdown is a no-op too.
func InitTracing(ctx context.Context, endpoint, serviceVersion string) (shutdown func(context.Context) error, err error) {
	if endpoint == "" {
		otel.SetTracerProvider(trace.NewNoopTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "respgate"),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer is the package-wide tracer handlers use to start request spans.
func Tracer() trace.Tracer { return otel.Tracer("respgate") }
