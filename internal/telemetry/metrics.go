package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "docvault/ingest"

// PipelineMetrics records job outcomes and stage latency.
// Instruments fall back to no-ops when creation fails.
type PipelineMetrics struct {
	jobs          metric.Int64Counter
	jobDuration   metric.Float64Histogram
	stageDuration metric.Float64Histogram
	publishErrors metric.Int64Counter
}

func NewPipelineMetrics() *PipelineMetrics {
	meter := otel.Meter(instrumentationName)
	m := &PipelineMetrics{}

	var err error
	if m.jobs, err = meter.Int64Counter("ingest.jobs.total",
		metric.WithDescription("Ingestion jobs by outcome")); err != nil {
		m.jobs = nil
	}
	if m.jobDuration, err = meter.Float64Histogram("ingest.job.duration",
		metric.WithDescription("Ingestion job duration in seconds"),
		metric.WithUnit("s")); err != nil {
		m.jobDuration = nil
	}
	if m.stageDuration, err = meter.Float64Histogram("ingest.stage.duration",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s")); err != nil {
		m.stageDuration = nil
	}
	if m.publishErrors, err = meter.Int64Counter("ingest.status.publish_errors",
		metric.WithDescription("Progress events that could not be published")); err != nil {
		m.publishErrors = nil
	}
	return m
}

func (m *PipelineMetrics) RecordJob(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.jobs != nil {
		m.jobs.Add(ctx, 1, attrs)
	}
	if m.jobDuration != nil {
		m.jobDuration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, d time.Duration, failed bool) {
	if m == nil || m.stageDuration == nil {
		return
	}
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("failed", failed),
	))
}

func (m *PipelineMetrics) RecordPublishError(ctx context.Context) {
	if m == nil || m.publishErrors == nil {
		return
	}
	m.publishErrors.Add(ctx, 1)
}
