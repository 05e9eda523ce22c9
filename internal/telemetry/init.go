// Package telemetry wires carina's OpenTelemetry tracing to the resolved
// CLI configuration: spans export over OTLP/HTTP when carina.yaml's
// otlp_endpoint (or CARINA_OTLP_ENDPOINT) names a collector, and land on
// a discard exporter otherwise, so the interpreter's span plumbing always
// has a provider without requiring a collector to be reachable. The
// planner opens no spans.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config carries the identity and export target for one CLI invocation,
// filled in by the root command from cfgfile/viper.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP/HTTP collector URL from the resolved
	// configuration (carina.yaml otlp_endpoint key, CARINA_OTLP_ENDPOINT
	// env var). Empty selects the discard exporter.
	Endpoint string
}

// Init installs the global TracerProvider for cfg. The returned func
// shuts the provider down, flushing any buffered spans.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	exporter, err := newExporter(ctx, cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, error) {
	if endpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(io.Discard))
		if err != nil {
			return nil, fmt.Errorf("failed to create discard exporter: %w", err)
		}
		return exp, nil
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter for %s: %w", endpoint, err)
	}
	return exp, nil
}
