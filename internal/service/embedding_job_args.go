package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const (
	cardEmbeddingKind = "card_embedding"
	// EmbeddingsQueueName is the River queue used for card embedding jobs.
	EmbeddingsQueueName = "embeddings"
)

// CardEmbeddingInserter inserts embedding jobs (e.g. River client). Used by
// the enqueuer and the backfill flow.
type CardEmbeddingInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// CardEmbeddingArgs is the job payload for generating and storing embeddings
// for one card across the configured variants. Uniqueness is by CardID so
// duplicate sync events for the same card do not create duplicate jobs; Force
// is excluded from uniqueness so a forced regeneration coalesces with a
// pending normal job rather than queueing twice.
type CardEmbeddingArgs struct {
	CardID uuid.UUID `json:"card_id" river:"unique"`
	Force  bool      `json:"force"`
}

// Kind returns the River job kind.
func (CardEmbeddingArgs) Kind() string { return cardEmbeddingKind }

var _ river.JobArgs = CardEmbeddingArgs{}
