package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the process-wide trace provider.
type ProviderConfig struct {
	ServiceName  string
	OTLPEndpoint string // empty disables export; spans are created but immediately dropped
}

// Shutdown flushes and releases the installed trace provider.
type Shutdown func(ctx context.Context) error

// InstallProvider registers global OTel Tracer and Meter providers, exporting
// to OTLPEndpoint over HTTP when set, grounded on
// station/internal/telemetry/otel_plugin.go's OTLP-over-HTTP setup
// (generalized from Genkit's span-processor registration to a plain
// global TracerProvider, since this module has no Genkit runtime to hook)
// and stacklok-toolhive/pkg/telemetry/providers/otlp's
// exporter-wrapped-in-a-periodic-reader pattern for the MeterProvider, so
// telemetry.New()'s counters and histograms actually record somewhere
// instead of against the no-op global default.
func InstallProvider(ctx context.Context, cfg ProviderConfig) (Shutdown, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	if cfg.OTLPEndpoint == "" {
		tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		otel.SetTracerProvider(tp)

		mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		otel.SetMeterProvider(mp)

		return shutdownBoth(tp, mp), nil
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating otlp trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating otlp metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	otel.SetMeterProvider(mp)

	return shutdownBoth(tp, mp), nil
}

func shutdownBoth(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) Shutdown {
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
}
