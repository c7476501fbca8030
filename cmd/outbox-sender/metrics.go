package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"github.com/velmie/txoutbox"
	"github.com/velmie/txoutbox/otelmetrics"
)

const metricsShutdownTimeout = 5 * time.Second

// newMetrics exports sender metrics over OTLP gRPC. Without an endpoint metrics are discarded.
// The returned function flushes and stops the exporter.
func newMetrics(ctx context.Context, cfg Config, logger outbox.Logger) (outbox.Metrics, func(), error) {
	if cfg.Metrics.Endpoint == "" {
		return outbox.NopMetrics{}, func() {}, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Metrics.Endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create metric exporter: %w", err)
	}

	provider := newMeterProvider(cfg.Metrics, sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(cfg.Metrics.Interval),
	))
	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown failed", "err", err)
		}
	}

	metrics, err := otelmetrics.New(
		otelmetrics.WithMeterProvider(provider),
		otelmetrics.WithAttributes(attribute.String("outbox.table", cfg.Table)),
	)
	if err != nil {
		shutdown()

		return nil, nil, fmt.Errorf("init metrics: %w", err)
	}

	return metrics, shutdown, nil
}

func newMeterProvider(cfg MetricsConfig, reader sdkmetric.Reader) *sdkmetric.MeterProvider {
	res := sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	)

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
}
