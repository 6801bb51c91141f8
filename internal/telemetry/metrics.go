package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/multierr"

	"github.com/hamed0406/urlchecker/internal/config"
)

// Metrics records check counts, durations and probe failures.
// It satisfies probe.Recorder.
type Metrics struct {
	checks        metric.Int64Counter
	checkDuration metric.Float64Histogram
	probeFailures metric.Int64Counter
	batchSize     metric.Int64Histogram
	provider      *sdkmetric.MeterProvider
}

// Setup exports over OTLP/HTTP when telemetry is enabled. When it is not,
// instruments come from the global (no-op) provider.
func Setup(ctx context.Context, cfg config.Config) (*Metrics, error) {
	var provider *sdkmetric.MeterProvider
	if cfg.TelemetryEnabled {
		res, err := newResource(cfg)
		if err != nil {
			return nil, fmt.Errorf("telemetry resource: %w", err)
		}
		exporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(cfg.TelemetryCollectorURL),
			otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("telemetry exporter: %w", err)
		}
		provider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(provider)
	}

	m, err := New(otel.Meter(cfg.ServiceName))
	if err != nil {
		return nil, err
	}
	m.provider = provider
	return m, nil
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err, e error

	m.checks, e = meter.Int64Counter("urlchecker.checks",
		metric.WithDescription("URLs checked, by outcome"),
		metric.WithUnit("{urls}"))
	err = multierr.Append(err, e)
	m.checkDuration, e = meter.Float64Histogram("urlchecker.check.duration",
		metric.WithDescription("Wall time of one URL check including all probes"),
		metric.WithUnit("ms"))
	err = multierr.Append(err, e)
	m.probeFailures, e = meter.Int64Counter("urlchecker.probe.failures",
		metric.WithDescription("Probe failures, by probe"),
		metric.WithUnit("{failures}"))
	err = multierr.Append(err, e)
	m.batchSize, e = meter.Int64Histogram("urlchecker.batch.size",
		metric.WithDescription("URLs per batch request"),
		metric.WithUnit("{urls}"))
	err = multierr.Append(err, e)

	if err != nil {
		return nil, fmt.Errorf("create instruments: %w", err)
	}
	return &m, nil
}

func (m *Metrics) RecordCheck(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.checks.Add(ctx, 1, attrs)
	m.checkDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

func (m *Metrics) RecordProbeFailure(ctx context.Context, probe string) {
	m.probeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("probe", probe)))
}

func (m *Metrics) RecordBatch(ctx context.Context, size int) {
	m.batchSize.Record(ctx, int64(size))
}

// Close flushes and stops the exporter, if any.
func (m *Metrics) Close(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func newResource(cfg config.Config) (*resource.Resource, error) {
	return resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Env),
			semconv.ServiceInstanceID(uuid.New().String()),
		))
}
