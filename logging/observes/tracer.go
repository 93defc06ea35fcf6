package observes

import (
	"context"
	"fmt"
	"time"

	"github.com/ncobase/keyvault/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

type TracerOption struct {
	URL          string
	Insecure     bool
	Headers      map[string]string
	Name         string
	Version      string
	Environment  string
	SamplingRate float64
	BatchTimeout time.Duration
}

// NewTracer installs a global tracer provider exporting spans over OTLP gRPC
// and returns its shutdown func. An empty URL keeps the no-op provider.
func NewTracer(ctx context.Context, opt *TracerOption) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if opt == nil || opt.URL == "" {
		return noop, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opt.URL)}
	if opt.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(opt.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(opt.Headers))
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return noop, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(opt.Name),
			attribute.String("version", opt.Version),
			attribute.String("environment", opt.Environment),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opt.SamplingRate))),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(opt.BatchTimeout)),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

// TracerOptionFrom maps the observes config to tracer options.
func TracerOptionFrom(name, version string, tc *config.Tracer) *TracerOption {
	if tc == nil {
		return nil
	}
	return &TracerOption{
		URL:          tc.Endpoint,
		Insecure:     tc.Insecure,
		Headers:      tc.Headers,
		Name:         name,
		Version:      version,
		Environment:  tc.Environment,
		SamplingRate: tc.SamplingRate,
		BatchTimeout: tc.BatchTimeout,
	}
}
