package anki

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingodeck/hub/internal/models"
)

type mockNoteSource struct {
	versionFunc   func(ctx context.Context) (int, error)
	deckNamesFunc func(ctx context.Context) ([]string, error)
	findFunc      func(ctx context.Context, deckName string) ([]int64, error)
	notesFunc     func(ctx context.Context, noteIDs []int64) ([]NoteInfo, error)
}

func (m *mockNoteSource) Version(ctx context.Context) (int, error) {
	if m.versionFunc != nil {
		return m.versionFunc(ctx)
	}
	return apiVersion, nil
}

func (m *mockNoteSource) DeckNames(ctx context.Context) ([]string, error) {
	if m.deckNamesFunc != nil {
		return m.deckNamesFunc(ctx)
	}
	return nil, nil
}

func (m *mockNoteSource) FindNotesInDeck(ctx context.Context, deckName string) ([]int64, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, deckName)
	}
	return nil, nil
}

func (m *mockNoteSource) NotesInfo(ctx context.Context, noteIDs []int64) ([]NoteInfo, error) {
	if m.notesFunc != nil {
		return m.notesFunc(ctx, noteIDs)
	}
	return nil, nil
}

type mockUpserter struct {
	upsertFunc func(ctx context.Context, req *models.UpsertCardRequest) (*models.Card, error)
	requests   []*models.UpsertCardRequest
}

func (m *mockUpserter) Upsert(ctx context.Context, req *models.UpsertCardRequest) (*models.Card, error) {
	m.requests = append(m.requests, req)

	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, req)
	}
	return &models.Card{ID: uuid.Must(uuid.NewV7()), DeckName: req.DeckName}, nil
}

type mockEnqueuer struct {
	enqueueFunc func(ctx context.Context, cardID uuid.UUID, force bool) error
	enqueued    []uuid.UUID
}

func (m *mockEnqueuer) EnqueueCard(ctx context.Context, cardID uuid.UUID, force bool) error {
	if m.enqueueFunc != nil {
		if err := m.enqueueFunc(ctx, cardID, force); err != nil {
			return err
		}
	}

	m.enqueued = append(m.enqueued, cardID)
	return nil
}

func thaiNote(id int64, front, back string) NoteInfo {
	return NoteInfo{
		NoteID:    id,
		ModelName: "Basic",
		Fields: map[string]NoteField{
			"Front": {Value: front, Order: 0},
			"Back":  {Value: back, Order: 1},
		},
	}
}

func TestSyncService_SyncDeck(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts and enqueues every note", func(t *testing.T) {
		notes := &mockNoteSource{
			findFunc: func(_ context.Context, _ string) ([]int64, error) {
				return []int64{1, 2}, nil
			},
			notesFunc: func(_ context.Context, ids []int64) ([]NoteInfo, error) {
				return []NoteInfo{
					thaiNote(1, "hello", "สวัสดี"),
					thaiNote(2, "thanks", "ขอบคุณ"),
				}, nil
			},
		}
		upserter := &mockUpserter{}
		enqueuer := &mockEnqueuer{}
		svc := NewSyncService(SyncParams{Notes: notes, Cards: upserter, Enqueuer: enqueuer})

		result, err := svc.SyncDeck(ctx, "Thai Vocab")
		require.NoError(t, err)

		assert.Equal(t, 2, result.NotesFound)
		assert.Equal(t, 2, result.Synced)
		assert.Equal(t, 2, result.Enqueued)
		assert.Equal(t, 0, result.Failed)

		require.Len(t, upserter.requests, 2)
		assert.Equal(t, "Thai Vocab", upserter.requests[0].DeckName)
		require.NotNil(t, upserter.requests[0].AnkiNoteID)
		assert.Equal(t, int64(1), *upserter.requests[0].AnkiNoteID)
		assert.Len(t, enqueuer.enqueued, 2)
	})

	t.Run("one bad note does not abort the deck", func(t *testing.T) {
		notes := &mockNoteSource{
			findFunc: func(_ context.Context, _ string) ([]int64, error) {
				return []int64{1, 2}, nil
			},
			notesFunc: func(_ context.Context, _ []int64) ([]NoteInfo, error) {
				return []NoteInfo{
					thaiNote(1, "hello", "สวัสดี"),
					thaiNote(2, "thanks", "ขอบคุณ"),
				}, nil
			},
		}
		upserter := &mockUpserter{
			upsertFunc: func(_ context.Context, req *models.UpsertCardRequest) (*models.Card, error) {
				if *req.AnkiNoteID == 1 {
					return nil, errors.New("constraint violation")
				}
				return &models.Card{ID: uuid.Must(uuid.NewV7())}, nil
			},
		}
		svc := NewSyncService(SyncParams{Notes: notes, Cards: upserter, Enqueuer: &mockEnqueuer{}})

		result, err := svc.SyncDeck(ctx, "Thai Vocab")
		require.NoError(t, err)

		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 1, result.Failed)
	})

	t.Run("enqueue failure still counts the card as synced", func(t *testing.T) {
		notes := &mockNoteSource{
			findFunc: func(_ context.Context, _ string) ([]int64, error) {
				return []int64{1}, nil
			},
			notesFunc: func(_ context.Context, _ []int64) ([]NoteInfo, error) {
				return []NoteInfo{thaiNote(1, "hello", "สวัสดี")}, nil
			},
		}
		enqueuer := &mockEnqueuer{
			enqueueFunc: func(context.Context, uuid.UUID, bool) error {
				return errors.New("queue down")
			},
		}
		svc := NewSyncService(SyncParams{Notes: notes, Cards: &mockUpserter{}, Enqueuer: enqueuer})

		result, err := svc.SyncDeck(ctx, "Thai Vocab")
		require.NoError(t, err)

		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 0, result.Enqueued)
	})

	t.Run("nil enqueuer syncs without scheduling", func(t *testing.T) {
		notes := &mockNoteSource{
			findFunc: func(_ context.Context, _ string) ([]int64, error) {
				return []int64{1}, nil
			},
			notesFunc: func(_ context.Context, _ []int64) ([]NoteInfo, error) {
				return []NoteInfo{thaiNote(1, "hello", "สวัสดี")}, nil
			},
		}
		svc := NewSyncService(SyncParams{Notes: notes, Cards: &mockUpserter{}})

		result, err := svc.SyncDeck(ctx, "Thai Vocab")
		require.NoError(t, err)
		assert.Equal(t, 1, result.Synced)
		assert.Equal(t, 0, result.Enqueued)
	})

	t.Run("large decks are fetched in batches", func(t *testing.T) {
		ids := make([]int64, notesInfoBatchSize+5)
		for i := range ids {
			ids[i] = int64(i + 1)
		}

		var batchSizes []int
		notes := &mockNoteSource{
			findFunc: func(_ context.Context, _ string) ([]int64, error) {
				return ids, nil
			},
			notesFunc: func(_ context.Context, batch []int64) ([]NoteInfo, error) {
				batchSizes = append(batchSizes, len(batch))
				out := make([]NoteInfo, len(batch))
				for i, id := range batch {
					out[i] = thaiNote(id, "f", "b")
				}
				return out, nil
			},
		}
		svc := NewSyncService(SyncParams{Notes: notes, Cards: &mockUpserter{}})

		result, err := svc.SyncDeck(ctx, "Thai Vocab")
		require.NoError(t, err)

		assert.Equal(t, []int{notesInfoBatchSize, 5}, batchSizes)
		assert.Equal(t, notesInfoBatchSize+5, result.Synced)
	})
}

func TestSyncService_SyncAll(t *testing.T) {
	notes := &mockNoteSource{
		deckNamesFunc: func(context.Context) ([]string, error) {
			return []string{"Thai Vocab", "Thai Grammar"}, nil
		},
		findFunc: func(_ context.Context, deckName string) ([]int64, error) {
			if deckName == "Thai Vocab" {
				return []int64{1}, nil
			}
			return []int64{2}, nil
		},
		notesFunc: func(_ context.Context, ids []int64) ([]NoteInfo, error) {
			return []NoteInfo{thaiNote(ids[0], "f", "b")}, nil
		},
	}
	svc := NewSyncService(SyncParams{Notes: notes, Cards: &mockUpserter{}})

	results, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Thai Vocab", results[0].DeckName)
	assert.Equal(t, "Thai Grammar", results[1].DeckName)
}

func TestSyncService_Ping(t *testing.T) {
	t.Run("ok on current version", func(t *testing.T) {
		svc := NewSyncService(SyncParams{Notes: &mockNoteSource{}, Cards: &mockUpserter{}})
		assert.NoError(t, svc.Ping(context.Background()))
	})

	t.Run("rejects stale protocol version", func(t *testing.T) {
		notes := &mockNoteSource{versionFunc: func(context.Context) (int, error) { return 4, nil }}
		svc := NewSyncService(SyncParams{Notes: notes, Cards: &mockUpserter{}})
		assert.Error(t, svc.Ping(context.Background()))
	})

	t.Run("propagates connectivity error", func(t *testing.T) {
		notes := &mockNoteSource{versionFunc: func(context.Context) (int, error) {
			return 0, errors.New("connection refused")
		}}
		svc := NewSyncService(SyncParams{Notes: notes, Cards: &mockUpserter{}})
		assert.Error(t, svc.Ping(context.Background()))
	})
}

func TestSyncService_GetCards(t *testing.T) {
	notes := &mockNoteSource{
		deckNamesFunc: func(context.Context) ([]string, error) {
			return []string{"Thai Vocab"}, nil
		},
		findFunc: func(_ context.Context, _ string) ([]int64, error) {
			return []int64{7}, nil
		},
		notesFunc: func(_ context.Context, _ []int64) ([]NoteInfo, error) {
			return []NoteInfo{thaiNote(7, "hello", "สวัสดี")}, nil
		},
	}
	svc := NewSyncService(SyncParams{Notes: notes, Cards: &mockUpserter{}})

	cards, err := svc.GetCards(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, cards, 1)

	assert.Equal(t, "Thai Vocab", cards[0].DeckName)
	assert.Equal(t, "hello", cards[0].FrontText)
	assert.Equal(t, "สวัสดี", cards[0].BackText)
	require.NotNil(t, cards[0].AnkiNoteID)
	assert.Equal(t, int64(7), *cards[0].AnkiNoteID)
}
