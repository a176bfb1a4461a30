package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/lingodeck/hub/internal/observability"
)

// EmbeddingEnqueuer enqueues one card_embedding River job per card. The Anki
// sync service calls it after each upsert; the backfill command calls it for
// every card missing a vector.
type EmbeddingEnqueuer struct {
	inserter    CardEmbeddingInserter
	queueName   string
	maxAttempts int
	metrics     observability.EmbeddingMetrics
}

// EnqueuerParams holds dependencies for NewEmbeddingEnqueuer.
// Metrics may be nil when metrics are disabled.
type EnqueuerParams struct {
	Inserter    CardEmbeddingInserter
	QueueName   string
	MaxAttempts int
	Metrics     observability.EmbeddingMetrics
}

// NewEmbeddingEnqueuer creates an enqueuer for card_embedding jobs.
func NewEmbeddingEnqueuer(params EnqueuerParams) *EmbeddingEnqueuer {
	queueName := params.QueueName
	if queueName == "" {
		queueName = EmbeddingsQueueName
	}

	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &EmbeddingEnqueuer{
		inserter:    params.Inserter,
		queueName:   queueName,
		maxAttempts: maxAttempts,
		metrics:     params.Metrics,
	}
}

// EnqueueCard inserts one embedding job for the card. Duplicate pending jobs
// for the same card coalesce via River uniqueness.
func (e *EmbeddingEnqueuer) EnqueueCard(ctx context.Context, cardID uuid.UUID, force bool) error {
	opts := &river.InsertOpts{
		Queue:       e.queueName,
		MaxAttempts: e.maxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}

	_, err := e.inserter.Insert(ctx, CardEmbeddingArgs{CardID: cardID, Force: force}, opts)
	if err != nil {
		slog.ErrorContext(ctx, "embedding: enqueue failed",
			"card_id", cardID,
			"error", err,
		)

		return err
	}

	if e.metrics != nil {
		e.metrics.RecordJobsEnqueued(ctx, 1)
	}

	return nil
}

// EnqueueCards inserts one job per card and returns the number enqueued.
// Individual insert failures are logged and skipped so one bad card does not
// abort a sync; the first error is returned after all inserts are attempted.
func (e *EmbeddingEnqueuer) EnqueueCards(ctx context.Context, cardIDs []uuid.UUID, force bool) (int, error) {
	var firstErr error
	enqueued := 0

	for _, id := range cardIDs {
		if err := e.EnqueueCard(ctx, id, force); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		enqueued++
	}

	return enqueued, firstErr
}
