package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type insertedJob struct {
	args river.JobArgs
	opts *river.InsertOpts
}

type mockInserter struct {
	insertFunc func(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
	inserted   []insertedJob
}

func (m *mockInserter) Insert(
	ctx context.Context, args river.JobArgs, opts *river.InsertOpts,
) (*rivertype.JobInsertResult, error) {
	m.inserted = append(m.inserted, insertedJob{args: args, opts: opts})

	if m.insertFunc != nil {
		return m.insertFunc(ctx, args, opts)
	}
	return &rivertype.JobInsertResult{}, nil
}

func TestEmbeddingEnqueuer_EnqueueCard(t *testing.T) {
	ctx := context.Background()
	cardID := uuid.Must(uuid.NewV7())

	t.Run("inserts with queue, attempts, and uniqueness", func(t *testing.T) {
		inserter := &mockInserter{}
		enqueuer := NewEmbeddingEnqueuer(EnqueuerParams{Inserter: inserter, MaxAttempts: 5})

		err := enqueuer.EnqueueCard(ctx, cardID, true)
		require.NoError(t, err)
		require.Len(t, inserter.inserted, 1)

		job := inserter.inserted[0]
		args, ok := job.args.(CardEmbeddingArgs)
		require.True(t, ok)
		assert.Equal(t, cardID, args.CardID)
		assert.True(t, args.Force)

		require.NotNil(t, job.opts)
		assert.Equal(t, EmbeddingsQueueName, job.opts.Queue)
		assert.Equal(t, 5, job.opts.MaxAttempts)
		assert.True(t, job.opts.UniqueOpts.ByArgs)
	})

	t.Run("defaults queue name and max attempts", func(t *testing.T) {
		inserter := &mockInserter{}
		enqueuer := NewEmbeddingEnqueuer(EnqueuerParams{Inserter: inserter})

		err := enqueuer.EnqueueCard(ctx, cardID, false)
		require.NoError(t, err)

		job := inserter.inserted[0]
		assert.Equal(t, EmbeddingsQueueName, job.opts.Queue)
		assert.Equal(t, 3, job.opts.MaxAttempts)
	})

	t.Run("returns insert error", func(t *testing.T) {
		inserter := &mockInserter{
			insertFunc: func(context.Context, river.JobArgs, *river.InsertOpts) (*rivertype.JobInsertResult, error) {
				return nil, errors.New("queue unavailable")
			},
		}
		enqueuer := NewEmbeddingEnqueuer(EnqueuerParams{Inserter: inserter})

		err := enqueuer.EnqueueCard(ctx, cardID, false)
		assert.Error(t, err)
	})
}

func TestEmbeddingEnqueuer_EnqueueCards(t *testing.T) {
	ctx := context.Background()
	ids := []uuid.UUID{uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())}

	t.Run("enqueues every card", func(t *testing.T) {
		inserter := &mockInserter{}
		enqueuer := NewEmbeddingEnqueuer(EnqueuerParams{Inserter: inserter})

		enqueued, err := enqueuer.EnqueueCards(ctx, ids, false)
		require.NoError(t, err)
		assert.Equal(t, 3, enqueued)
		assert.Len(t, inserter.inserted, 3)
	})

	t.Run("one failure does not stop the rest", func(t *testing.T) {
		failID := ids[1]
		inserter := &mockInserter{
			insertFunc: func(_ context.Context, args river.JobArgs, _ *river.InsertOpts) (*rivertype.JobInsertResult, error) {
				if args.(CardEmbeddingArgs).CardID == failID {
					return nil, errors.New("insert failed")
				}
				return &rivertype.JobInsertResult{}, nil
			},
		}
		enqueuer := NewEmbeddingEnqueuer(EnqueuerParams{Inserter: inserter})

		enqueued, err := enqueuer.EnqueueCards(ctx, ids, false)
		assert.Error(t, err)
		assert.Equal(t, 2, enqueued)
		assert.Len(t, inserter.inserted, 3, "all inserts must be attempted")
	})
}
