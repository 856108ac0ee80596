// Package metrics collects per-operation counters and latency sums through
// OpenTelemetry, exposed via a manual reader for the /v1/metrics endpoint.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Registry owns the meter provider and the instruments shared by every
// table.
type Registry struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider

	ops     metric.Int64Counter
	errors  metric.Int64Counter
	latency metric.Float64Counter
}

// NewRegistry builds a registry with an in-process manual reader.
func NewRegistry() (*Registry, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("github.com/reajuria/bindb")

	ops, err := meter.Int64Counter("bindb.ops",
		metric.WithDescription("Completed table operations"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("bindb.op_errors",
		metric.WithDescription("Failed table operations"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Counter("bindb.op_latency_ms",
		metric.WithDescription("Summed operation latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Registry{
		reader:   reader,
		provider: provider,
		ops:      ops,
		errors:   errs,
		latency:  latency,
	}, nil
}

// Record registers one completed operation with its latency and outcome.
func (r *Registry) Record(table, op string, d time.Duration, err error) {
	if r == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("op", op),
	)
	r.ops.Add(ctx, 1, attrs)
	r.latency.Add(ctx, float64(d)/float64(time.Millisecond), attrs)
	if err != nil {
		r.errors.Add(ctx, 1, attrs)
	}
}

// Snapshot collects the current metric state.
func (r *Registry) Snapshot(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := r.reader.Collect(ctx, &rm)
	return rm, err
}

// Shutdown flushes and stops the provider.
func (r *Registry) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
