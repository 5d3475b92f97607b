// Package telemetry wires OpenTelemetry trace and metric exporters.
//
// Packages create their tracer and meter from the global providers at init
// time; the otel globals delegate, so spans and counters recorded before
// Init still reach the exporters configured here.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Shutdown flushes and stops the providers installed by Init.
type Shutdown func(ctx context.Context) error

// Options tune the exporters.
type Options struct {
	Insecure       bool
	BatchTimeout   time.Duration
	MetricInterval time.Duration
	// SampleRatio is the fraction of root spans recorded. Values outside
	// (0, 1) record everything.
	SampleRatio float64
}

// Init installs OTLP/HTTP trace and metric providers as otel globals. An
// empty endpoint leaves the no-op providers in place.
func Init(ctx context.Context, endpoint, service, version string, insecure bool, optFns ...func(o *Options)) (Shutdown, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	opts := Options{
		Insecure:       insecure,
		BatchTimeout:   5 * time.Second,
		MetricInterval: 15 * time.Second,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(service),
		semconv.ServiceVersionKey.String(version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := tracerProvider(ctx, endpoint, res, opts)
	if err != nil {
		return nil, err
	}

	mp, err := meterProvider(ctx, endpoint, res, opts)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

func tracerProvider(ctx context.Context, endpoint string, res *resource.Resource, opts Options) (*sdktrace.TracerProvider, error) {
	exOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if opts.Insecure {
		exOpts = append(exOpts, otlptracehttp.WithInsecure())
	}

	exp, err := otlptracehttp.New(ctx, exOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if opts.SampleRatio > 0 && opts.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(opts.BatchTimeout)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	), nil
}

func meterProvider(ctx context.Context, endpoint string, res *resource.Resource, opts Options) (*sdkmetric.MeterProvider, error) {
	exOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if opts.Insecure {
		exOpts = append(exOpts, otlpmetrichttp.WithInsecure())
	}

	exp, err := otlpmetrichttp.New(ctx, exOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(opts.MetricInterval))),
		sdkmetric.WithResource(res),
	), nil
}
