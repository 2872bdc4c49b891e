package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/george-itf/amazon-listing-helper-sub000/ext"
	"github.com/george-itf/amazon-listing-helper-sub000/id"
	"github.com/george-itf/amazon-listing-helper-sub000/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.JobEnqueued    = (*MetricsExtension)(nil)
	_ ext.JobCompleted   = (*MetricsExtension)(nil)
	_ ext.JobFailed      = (*MetricsExtension)(nil)
	_ ext.JobRetrying    = (*MetricsExtension)(nil)
	_ ext.JobDLQ         = (*MetricsExtension)(nil)
	_ ext.CycleStarted   = (*MetricsExtension)(nil)
	_ ext.CycleCompleted = (*MetricsExtension)(nil)
	_ ext.CronFired      = (*MetricsExtension)(nil)
)

const meterName = "github.com/george-itf/amazon-listing-helper-sub000/observability"

// MetricsExtension records system-wide lifecycle counters via an
// OpenTelemetry Meter. Register it as an extension to automatically
// track enqueue rates, completion counts, failure rates, retry counts,
// DLQ entries, ingestion cycle outcomes, and cron fires.
type MetricsExtension struct {
	jobEnqueued    metric.Int64Counter
	jobCompleted   metric.Int64Counter
	jobFailed      metric.Int64Counter
	jobRetried     metric.Int64Counter
	jobDLQ         metric.Int64Counter
	cycleStarted   metric.Int64Counter
	cycleCompleted metric.Int64Counter
	cycleDuration  metric.Float64Histogram
	cronFired      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider. If none is configured the noop provider makes every
// hook free.
func NewMetricsExtension() (*MetricsExtension, error) {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific
// MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) (*MetricsExtension, error) {
	var (
		m   MetricsExtension
		err error
	)
	if m.jobEnqueued, err = meter.Int64Counter("marketsync.job.enqueued"); err != nil {
		return nil, err
	}
	if m.jobCompleted, err = meter.Int64Counter("marketsync.job.completed"); err != nil {
		return nil, err
	}
	if m.jobFailed, err = meter.Int64Counter("marketsync.job.failed"); err != nil {
		return nil, err
	}
	if m.jobRetried, err = meter.Int64Counter("marketsync.job.retried"); err != nil {
		return nil, err
	}
	if m.jobDLQ, err = meter.Int64Counter("marketsync.job.dlq"); err != nil {
		return nil, err
	}
	if m.cycleStarted, err = meter.Int64Counter("marketsync.cycle.started"); err != nil {
		return nil, err
	}
	if m.cycleCompleted, err = meter.Int64Counter("marketsync.cycle.completed"); err != nil {
		return nil, err
	}
	if m.cycleDuration, err = meter.Float64Histogram("marketsync.cycle.duration",
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.cronFired, err = meter.Int64Counter("marketsync.cron.fired"); err != nil {
		return nil, err
	}
	return &m, nil
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", string(j.Type)))
}

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.jobEnqueued.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.jobCompleted.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.jobFailed.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.jobRetried.Add(ctx, 1, typeAttr(j))
	return nil
}

// OnJobDLQ implements ext.JobDLQ.
func (m *MetricsExtension) OnJobDLQ(ctx context.Context, j *job.Job, _ error) error {
	m.jobDLQ.Add(ctx, 1, typeAttr(j))
	return nil
}

// ── Ingestion cycle hooks ───────────────────────────

// OnCycleStarted implements ext.CycleStarted.
func (m *MetricsExtension) OnCycleStarted(ctx context.Context, _ id.CycleID, _ int) error {
	m.cycleStarted.Add(ctx, 1)
	return nil
}

// OnCycleCompleted implements ext.CycleCompleted.
func (m *MetricsExtension) OnCycleCompleted(ctx context.Context, _ id.CycleID, status string, _, _ int, elapsed time.Duration) error {
	m.cycleCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.cycleDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
	return nil
}

// ── Cron lifecycle hooks ────────────────────────────

// OnCronFired implements ext.CronFired.
func (m *MetricsExtension) OnCronFired(ctx context.Context, _ string, _ id.JobID) error {
	m.cronFired.Add(ctx, 1)
	return nil
}
