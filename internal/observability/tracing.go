package observability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used by the synthesis pipeline.
const TracerName = "github.com/lexiqai/tts-gateway"

// Tracer returns the pipeline tracer from the global provider. Before
// InitTracing runs this is a no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InitTracing installs a global tracer provider for the chosen exporter
// ("none", "stdout" or "otlp") and returns its shutdown function.
func InitTracing(ctx context.Context, exporter, otlpEndpoint string, otlpInsecure bool) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var spanExporter sdktrace.SpanExporter
	switch strings.ToLower(strings.TrimSpace(exporter)) {
	case "", "none":
		return noop, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return noop, fmt.Errorf("create stdout exporter: %w", err)
		}
		spanExporter = exp
	case "otlp":
		opts := []otlptracegrpc.Option{}
		if otlpEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(otlpEndpoint))
		}
		if otlpInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return noop, fmt.Errorf("create otlp exporter: %w", err)
		}
		spanExporter = exp
	default:
		return noop, fmt.Errorf("unknown tracing exporter %q", exporter)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", serviceVersion),
	))
	if err != nil {
		return noop, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spanExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logger := GetLogger()
	logger.Info().Str("exporter", exporter).Msg("Tracing initialized")
	return tp.Shutdown, nil
}
