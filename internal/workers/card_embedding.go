// Package workers provides River job workers (e.g. card embedding generation).
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"golang.org/x/time/rate"

	"github.com/lingodeck/hub/internal/datatypes"
	"github.com/lingodeck/hub/internal/models"
	"github.com/lingodeck/hub/internal/observability"
	"github.com/lingodeck/hub/internal/service"
)

// CardEmbeddingWorker generates and stores embeddings for one card across the
// configured variants.
type CardEmbeddingWorker struct {
	river.WorkerDefaults[service.CardEmbeddingArgs]

	pipeline cardPipeline
	limiter  *rate.Limiter
	metrics  observability.EmbeddingMetrics
}

// cardPipeline is the minimal pipeline interface needed by the worker.
type cardPipeline interface {
	ProcessCardIDs(ctx context.Context, ids []uuid.UUID, variants []datatypes.Variant, forceRegenerate bool) (*models.BatchSummary, error)
}

// NewCardEmbeddingWorker creates a worker that runs the embedding pipeline for
// one card per job. limiter and metrics may be nil.
func NewCardEmbeddingWorker(
	pipeline cardPipeline,
	limiter *rate.Limiter,
	metrics observability.EmbeddingMetrics,
) *CardEmbeddingWorker {
	return &CardEmbeddingWorker{
		pipeline: pipeline,
		limiter:  limiter,
		metrics:  metrics,
	}
}

const cardEmbeddingTimeout = 60 * time.Second

// Timeout limits how long a single embedding job can run.
func (w *CardEmbeddingWorker) Timeout(*river.Job[service.CardEmbeddingArgs]) time.Duration {
	return cardEmbeddingTimeout
}

// Work runs the pipeline for the job's card. Failed items retry via River;
// a card deleted before the job ran completes without retry.
func (w *CardEmbeddingWorker) Work(ctx context.Context, job *river.Job[service.CardEmbeddingArgs]) error {
	args := job.Args
	start := time.Now()

	ctx = context.WithValue(ctx, observability.CardIDKey, args.CardID.String())

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	summary, err := w.pipeline.ProcessCardIDs(ctx, []uuid.UUID{args.CardID}, nil, args.Force)
	if err != nil {
		if service.IsConfigurationError(err) {
			w.recordOutcome(ctx, "failed_final", start)

			slog.ErrorContext(ctx, "embedding job: configuration error, not retrying",
				"job_id", job.ID,
				"error", err,
			)

			return nil
		}

		w.recordOutcome(ctx, w.retryOutcome(job), start)

		slog.ErrorContext(ctx, "embedding job: pipeline failed",
			"job_id", job.ID,
			"error", err,
		)

		return fmt.Errorf("process card: %w", err)
	}

	if summary.Failed > 0 {
		// Unknown card IDs surface as failed items with a not-found reason.
		// Retrying cannot bring a deleted card back, so complete the job.
		if w.cardMissing(summary) {
			w.recordOutcome(ctx, "skipped", start)

			slog.InfoContext(ctx, "embedding job: card deleted before job ran",
				"job_id", job.ID,
			)

			return nil
		}

		w.recordOutcome(ctx, w.retryOutcome(job), start)

		slog.WarnContext(ctx, "embedding job: some variants failed",
			"job_id", job.ID,
			"failed", summary.Failed,
			"successful", summary.Successful,
		)

		return fmt.Errorf("%d of %d variants failed", summary.Failed, summary.Total())
	}

	w.recordOutcome(ctx, "success", start)

	slog.InfoContext(ctx, "embedding job: done",
		"job_id", job.ID,
		"successful", summary.Successful,
		"skipped", summary.Skipped,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// cardMissing reports whether every item failed because the card was not found.
func (w *CardEmbeddingWorker) cardMissing(summary *models.BatchSummary) bool {
	if summary.Failed == 0 || summary.Failed != summary.Total() {
		return false
	}

	for _, item := range summary.Items {
		if item.Reason != models.ReasonCardNotFound {
			return false
		}
	}

	return true
}

func (w *CardEmbeddingWorker) retryOutcome(job *river.Job[service.CardEmbeddingArgs]) string {
	if job.Attempt >= job.MaxAttempts {
		return "failed_final"
	}

	return "retry"
}

func (w *CardEmbeddingWorker) recordOutcome(ctx context.Context, status string, start time.Time) {
	if w.metrics == nil {
		return
	}

	w.metrics.RecordJobOutcome(ctx, status)
	w.metrics.RecordJobDuration(ctx, time.Since(start), status)
}
