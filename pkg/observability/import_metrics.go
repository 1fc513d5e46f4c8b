package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCommitsTotal  = "gitgraft.import.commits.total"
	metricBatchesTotal  = "gitgraft.import.batches.total"
	metricStageDuration = "gitgraft.import.stage.duration.seconds"
	metricStageFailures = "gitgraft.import.stage.failures.total"

	attrStage = "stage"
)

// ImportMetrics holds OTel instruments for import pipeline progress.
// A nil *ImportMetrics records nothing.
type ImportMetrics struct {
	commitsTotal  metric.Int64Counter
	batchesTotal  metric.Int64Counter
	stageDuration metric.Float64Histogram
	stageFailures metric.Int64Counter
}

// NewImportMetrics creates import metric instruments from the given meter.
func NewImportMetrics(mt metric.Meter) (*ImportMetrics, error) {
	in := &instruments{meter: mt}

	im := &ImportMetrics{
		commitsTotal:  in.counter(metricCommitsTotal, "Commits processed, by stage", "{commit}"),
		batchesTotal:  in.counter(metricBatchesTotal, "Batches checkpointed, by stage", "{batch}"),
		stageDuration: in.seconds(metricStageDuration, "Stage handler duration in seconds"),
		stageFailures: in.counter(metricStageFailures, "Stage handler failures", "{failure}"),
	}

	err := in.err()
	if err != nil {
		return nil, err
	}

	return im, nil
}

// RecordBatch records one checkpointed batch of commits.
func (im *ImportMetrics) RecordBatch(ctx context.Context, stage string, commits int) {
	if im == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStage, stage))
	im.commitsTotal.Add(ctx, int64(commits), attrs)
	im.batchesTotal.Add(ctx, 1, attrs)
}

// RecordStage records a finished stage handler run; a non-nil err counts as a failure.
func (im *ImportMetrics) RecordStage(ctx context.Context, stage string, duration time.Duration, err error) {
	if im == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStage, stage))
	im.stageDuration.Record(ctx, duration.Seconds(), attrs)

	if err != nil {
		im.stageFailures.Add(ctx, 1, attrs)
	}
}
