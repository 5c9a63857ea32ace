// Package observability provides an OpenTelemetry-based metrics hook for
// certflow. Register Metrics on the pipeline's hook registry to record
// run counts, per-record render/dispatch/failure counters, and run
// duration. If no MeterProvider is configured, the hook degrades to noop
// instruments.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ekansh09/certflow"
	"github.com/ekansh09/certflow/hook"
	"github.com/ekansh09/certflow/progress"
	"github.com/ekansh09/certflow/record"
)

// meterName is the instrumentation scope name for certflow metrics.
const meterName = "github.com/ekansh09/certflow"

// Compile-time interface checks.
var (
	_ hook.Hook             = (*Metrics)(nil)
	_ hook.RunStarted       = (*Metrics)(nil)
	_ hook.RunFinished      = (*Metrics)(nil)
	_ hook.RecordRendered   = (*Metrics)(nil)
	_ hook.RecordDispatched = (*Metrics)(nil)
	_ hook.RecordFailed     = (*Metrics)(nil)
)

// Metrics records run lifecycle metrics.
//
// Instruments:
//   - certflow.run.started (Int64Counter): runs begun, by mode
//   - certflow.run.finished (Int64Counter): runs ended, by mode and outcome
//   - certflow.run.duration (Float64Histogram): run wall time in seconds
//   - certflow.record.rendered (Int64Counter): artifacts written
//   - certflow.record.dispatched (Int64Counter): artifacts delivered
//   - certflow.record.failed (Int64Counter): records failed terminally
type Metrics struct {
	runsStarted  metric.Int64Counter
	runsFinished metric.Int64Counter
	runDuration  metric.Float64Histogram
	rendered     metric.Int64Counter
	dispatched   metric.Int64Counter
	failed       metric.Int64Counter

	mode certflow.Mode
}

// NewMetrics creates a Metrics hook using the global OTel MeterProvider.
func NewMetrics() *Metrics {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates a Metrics hook with the provided meter.
// This variant allows injecting a specific MeterProvider for testing.
func NewMetricsWithMeter(meter metric.Meter) *Metrics {
	// Create instruments once at construction time. OTel instruments are
	// safe for concurrent use. On error, the API returns noop instruments
	// so the hook degrades gracefully.
	m := &Metrics{}
	m.runsStarted, _ = meter.Int64Counter(
		"certflow.run.started",
		metric.WithDescription("Total number of runs begun"),
		metric.WithUnit("{run}"),
	)
	m.runsFinished, _ = meter.Int64Counter(
		"certflow.run.finished",
		metric.WithDescription("Total number of runs ended"),
		metric.WithUnit("{run}"),
	)
	m.runDuration, _ = meter.Float64Histogram(
		"certflow.run.duration",
		metric.WithDescription("Run wall time in seconds"),
		metric.WithUnit("s"),
	)
	m.rendered, _ = meter.Int64Counter(
		"certflow.record.rendered",
		metric.WithDescription("Total number of artifacts written"),
		metric.WithUnit("{record}"),
	)
	m.dispatched, _ = meter.Int64Counter(
		"certflow.record.dispatched",
		metric.WithDescription("Total number of artifacts delivered"),
		metric.WithUnit("{record}"),
	)
	m.failed, _ = meter.Int64Counter(
		"certflow.record.failed",
		metric.WithDescription("Total number of records failed terminally"),
		metric.WithUnit("{record}"),
	)
	return m
}

// Name implements hook.Hook.
func (m *Metrics) Name() string { return "observability-metrics" }

// OnRunStarted implements hook.RunStarted.
func (m *Metrics) OnRunStarted(ctx context.Context, _ string, mode certflow.Mode, _ int) error {
	m.mode = mode
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", string(mode)),
	))
	return nil
}

// OnRunFinished implements hook.RunFinished.
func (m *Metrics) OnRunFinished(ctx context.Context, _ string, final progress.Phase, elapsed time.Duration) error {
	attrs := metric.WithAttributes(
		attribute.String("mode", string(m.mode)),
		attribute.String("outcome", string(final)),
	)
	m.runsFinished.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnRecordRendered implements hook.RecordRendered.
func (m *Metrics) OnRecordRendered(ctx context.Context, _ string, _ int, _ string) error {
	m.rendered.Add(ctx, 1)
	return nil
}

// OnRecordDispatched implements hook.RecordDispatched.
func (m *Metrics) OnRecordDispatched(ctx context.Context, _ string, _ string) error {
	m.dispatched.Add(ctx, 1)
	return nil
}

// OnRecordFailed implements hook.RecordFailed.
func (m *Metrics) OnRecordFailed(ctx context.Context, _ string, _ record.Failure) error {
	m.failed.Add(ctx, 1)
	return nil
}
