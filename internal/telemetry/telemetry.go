// Package telemetry configures OTLP metric export for the counters the
// gates and the memory manager register on the global meter provider.
// Export failures degrade to logging; they never block the workflow.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/config"
)

const serviceName = "thesisd"

// Telemetry owns the meter provider lifecycle. The zero value (and a
// disabled config) is a no-op.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	logger   *zap.Logger
}

// Setup builds the OTLP metric pipeline and installs it as the global
// meter provider. A disabled config returns a no-op instance and the
// instrument registrations elsewhere silently go nowhere.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string, logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Telemetry{logger: logger}, nil
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	)

	// Cumulative temporality keeps Prometheus-compatible backends happy.
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithTemporalitySelector(func(sdkmetric.InstrumentKind) metricdata.Temporality {
			return metricdata.CumulativeTemporality
		}),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(cfg.ExportInterval.Duration()))),
	)
	otel.SetMeterProvider(provider)

	logger.Info("telemetry enabled", zap.String("endpoint", cfg.Endpoint))
	return &Telemetry{provider: provider, logger: logger}, nil
}

// Shutdown flushes pending metrics. An unreachable collector is logged,
// not surfaced; the workflow result does not depend on export.
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t == nil || t.provider == nil {
		return
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		t.logger.Warn("telemetry shutdown incomplete", zap.Error(err))
	}
}
