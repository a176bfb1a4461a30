package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lingodeck/hub/internal/models"
)

// EmbeddingMetrics records embedding pipeline and search metrics.
// Methods accept ctx for future exemplar support.
type EmbeddingMetrics interface {
	RecordBatchOutcomes(ctx context.Context, summary *models.BatchSummary)
	RecordItemError(ctx context.Context, variant string)
	RecordSearch(ctx context.Context, duration time.Duration, hits int)
	RecordJobsEnqueued(ctx context.Context, count int64)
	RecordJobOutcome(ctx context.Context, status string)
	RecordJobDuration(ctx context.Context, duration time.Duration, status string)
}

// embeddingMetrics implements EmbeddingMetrics.
type embeddingMetrics struct {
	items          metric.Int64Counter
	itemErrors     metric.Int64Counter
	jobsEnqueued   metric.Int64Counter
	jobOutcomes    metric.Int64Counter
	jobDuration    metric.Float64Histogram
	searchDuration metric.Float64Histogram
	searchHits     metric.Int64Counter
}

// NewEmbeddingMetrics creates EmbeddingMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEmbeddingMetrics(meter metric.Meter) (EmbeddingMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	items, err := meter.Int64Counter(
		MetricNameEmbeddingItems,
		metric.WithDescription("Total batch embedding items by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding items counter: %w", err)
	}

	itemErrors, err := meter.Int64Counter(
		MetricNameEmbeddingErrors,
		metric.WithDescription("Total failed embedding items by variant"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding errors counter: %w", err)
	}

	jobsEnqueued, err := meter.Int64Counter(
		MetricNameEmbeddingJobs,
		metric.WithDescription("Total embedding jobs enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding jobs counter: %w", err)
	}

	jobOutcomes, err := meter.Int64Counter(
		MetricNameEmbeddingJobStatus,
		metric.WithDescription("Total embedding job outcomes by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create job outcomes counter: %w", err)
	}

	jobDuration, err := meter.Float64Histogram(
		MetricNameJobDuration,
		metric.WithDescription("Embedding job duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create job duration histogram: %w", err)
	}

	searchDuration, err := meter.Float64Histogram(
		MetricNameSearchDuration,
		metric.WithDescription("Semantic search duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search duration histogram: %w", err)
	}

	searchHits, err := meter.Int64Counter(
		MetricNameSearchHits,
		metric.WithDescription("Total semantic search hits returned"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search hits counter: %w", err)
	}

	return &embeddingMetrics{
		items:          items,
		itemErrors:     itemErrors,
		jobsEnqueued:   jobsEnqueued,
		jobOutcomes:    jobOutcomes,
		jobDuration:    jobDuration,
		searchDuration: searchDuration,
		searchHits:     searchHits,
	}, nil
}

func (m *embeddingMetrics) RecordBatchOutcomes(ctx context.Context, summary *models.BatchSummary) {
	record := func(status models.ItemStatus, count int) {
		if count == 0 {
			return
		}

		m.items.Add(ctx, int64(count),
			metric.WithAttributes(attribute.String(AttrStatus, string(status))))
	}

	record(models.ItemSuccessful, summary.Successful)
	record(models.ItemSkipped, summary.Skipped)
	record(models.ItemFailed, summary.Failed)
}

func (m *embeddingMetrics) RecordItemError(ctx context.Context, variant string) {
	m.itemErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrVariant, variant)))
}

func (m *embeddingMetrics) RecordSearch(ctx context.Context, duration time.Duration, hits int) {
	m.searchDuration.Record(ctx, duration.Seconds())
	m.searchHits.Add(ctx, int64(hits))
}

func (m *embeddingMetrics) RecordJobsEnqueued(ctx context.Context, count int64) {
	m.jobsEnqueued.Add(ctx, count)
}

func (m *embeddingMetrics) RecordJobOutcome(ctx context.Context, status string) {
	m.jobOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrStatus, status)))
}

func (m *embeddingMetrics) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	m.jobDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String(AttrStatus, status)))
}
