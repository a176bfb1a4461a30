package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingodeck/hub/internal/datatypes"
	"github.com/lingodeck/hub/internal/models"
	"github.com/lingodeck/hub/internal/repository"
)

type mockNearestIndex struct {
	nearestFunc func(ctx context.Context, queryEmbedding []float32, k int, filters repository.NearestFilters) ([]repository.NearestHit, error)
	statsFunc   func(ctx context.Context) ([]models.VariantStats, error)
	countFunc   func(ctx context.Context) (int64, error)
}

func (m *mockNearestIndex) QueryNearest(
	ctx context.Context, queryEmbedding []float32, k int, filters repository.NearestFilters,
) ([]repository.NearestHit, error) {
	if m.nearestFunc != nil {
		return m.nearestFunc(ctx, queryEmbedding, k, filters)
	}
	return nil, nil
}

func (m *mockNearestIndex) StatsByVariant(ctx context.Context) ([]models.VariantStats, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}
	return nil, nil
}

func (m *mockNearestIndex) CountDistinctCards(ctx context.Context) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

type mockCardResolver struct {
	cards     []models.Card
	countFunc func(ctx context.Context) (int64, error)
	listErr   error
}

func (m *mockCardResolver) ListByIDs(_ context.Context, ids []uuid.UUID) ([]models.Card, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}

	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	var out []models.Card
	for _, card := range m.cards {
		if want[card.ID] {
			out = append(out, card)
		}
	}
	return out, nil
}

func (m *mockCardResolver) Count(ctx context.Context) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return int64(len(m.cards)), nil
}

type staticCacheStats struct {
	hits, misses uint64
}

func (s staticCacheStats) CacheStats() (uint64, uint64) { return s.hits, s.misses }

func newTestSearchService(index *mockNearestIndex, cards *mockCardResolver) *SearchService {
	return NewSearchService(SearchParams{
		Encoder: &mockEncoder{},
		Index:   index,
		Cards:   cards,
		Model:   "test-model",
	})
}

func TestSearchService_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query returns ErrEmptyQuery", func(t *testing.T) {
		svc := newTestSearchService(&mockNearestIndex{}, &mockCardResolver{})

		results, err := svc.Search(ctx, "   ", 10, SearchFilters{}, 0)
		assert.Nil(t, results)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("markup-only query returns ErrEmptyQuery", func(t *testing.T) {
		svc := newTestSearchService(&mockNearestIndex{}, &mockCardResolver{})

		results, err := svc.Search(ctx, "<br><div></div>", 10, SearchFilters{}, 0)
		assert.Nil(t, results)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("results ranked by ascending distance with clamped scores", func(t *testing.T) {
		near := testCard("hello", "สวัสดี")
		far := testCard("unrelated", "x")

		index := &mockNearestIndex{
			nearestFunc: func(_ context.Context, _ []float32, _ int, _ repository.NearestFilters) ([]repository.NearestHit, error) {
				return []repository.NearestHit{
					{CardID: near.ID, Variant: datatypes.VariantCombined, Distance: 0.1},
					{CardID: far.ID, Variant: datatypes.VariantCombined, Distance: 1.4},
				}, nil
			},
		}
		svc := newTestSearchService(index, &mockCardResolver{cards: []models.Card{near, far}})

		results, err := svc.Search(ctx, "hello", 10, SearchFilters{}, 0)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, near.ID, results[0].Card.ID)
		assert.InDelta(t, 0.9, results[0].Score, 1e-9)
		assert.Equal(t, 0.0, results[1].Score, "distance > 1 clamps to score 0")
	})

	t.Run("minScore drops weak hits", func(t *testing.T) {
		strong := testCard("hello", "สวัสดี")
		weak := testCard("meh", "x")

		index := &mockNearestIndex{
			nearestFunc: func(_ context.Context, _ []float32, _ int, _ repository.NearestFilters) ([]repository.NearestHit, error) {
				return []repository.NearestHit{
					{CardID: strong.ID, Variant: datatypes.VariantFront, Distance: 0.2},
					{CardID: weak.ID, Variant: datatypes.VariantFront, Distance: 0.9},
				}, nil
			},
		}
		svc := newTestSearchService(index, &mockCardResolver{cards: []models.Card{strong, weak}})

		results, err := svc.Search(ctx, "hello", 10, SearchFilters{}, 0.5)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, strong.ID, results[0].Card.ID)
	})

	t.Run("empty index returns empty result", func(t *testing.T) {
		svc := newTestSearchService(&mockNearestIndex{}, &mockCardResolver{})

		results, err := svc.Search(ctx, "hello", 10, SearchFilters{}, 0)
		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("hits for deleted cards are dropped", func(t *testing.T) {
		alive := testCard("hello", "สวัสดี")
		deleted := uuid.Must(uuid.NewV7())

		index := &mockNearestIndex{
			nearestFunc: func(_ context.Context, _ []float32, _ int, _ repository.NearestFilters) ([]repository.NearestHit, error) {
				return []repository.NearestHit{
					{CardID: deleted, Variant: datatypes.VariantFront, Distance: 0.1},
					{CardID: alive.ID, Variant: datatypes.VariantFront, Distance: 0.3},
				}, nil
			},
		}
		svc := newTestSearchService(index, &mockCardResolver{cards: []models.Card{alive}})

		results, err := svc.Search(ctx, "hello", 10, SearchFilters{}, 0)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, alive.ID, results[0].Card.ID)
	})

	t.Run("filters are passed through to the index", func(t *testing.T) {
		deck := "Thai Vocab"
		variant := datatypes.VariantBack

		var got repository.NearestFilters
		index := &mockNearestIndex{
			nearestFunc: func(_ context.Context, _ []float32, _ int, filters repository.NearestFilters) ([]repository.NearestHit, error) {
				got = filters
				return nil, nil
			},
		}
		svc := newTestSearchService(index, &mockCardResolver{})

		_, err := svc.Search(ctx, "hello", 10, SearchFilters{DeckName: &deck, Variant: &variant}, 0)
		require.NoError(t, err)

		require.NotNil(t, got.DeckName)
		assert.Equal(t, deck, *got.DeckName)
		require.NotNil(t, got.Variant)
		assert.Equal(t, variant, *got.Variant)
	})

	t.Run("index error is surfaced, not an empty result", func(t *testing.T) {
		index := &mockNearestIndex{
			nearestFunc: func(_ context.Context, _ []float32, _ int, _ repository.NearestFilters) ([]repository.NearestHit, error) {
				return nil, errors.New("connection refused")
			},
		}
		svc := newTestSearchService(index, &mockCardResolver{})

		results, err := svc.Search(ctx, "hello", 10, SearchFilters{}, 0)
		assert.Nil(t, results)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query nearest")
	})

	t.Run("encoder error is surfaced", func(t *testing.T) {
		encoder := &mockEncoder{
			embedFunc: func(context.Context, string) ([]float32, error) {
				return nil, errors.New("model unavailable")
			},
		}
		svc := NewSearchService(SearchParams{
			Encoder: encoder,
			Index:   &mockNearestIndex{},
			Cards:   &mockCardResolver{},
		})

		results, err := svc.Search(ctx, "hello", 10, SearchFilters{}, 0)
		assert.Nil(t, results)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embed query")
	})
}

func TestSearchService_Stats(t *testing.T) {
	ctx := context.Background()

	index := &mockNearestIndex{
		statsFunc: func(context.Context) ([]models.VariantStats, error) {
			return []models.VariantStats{
				{Variant: datatypes.VariantFront, Count: 10},
				{Variant: datatypes.VariantCombined, Count: 8},
			}, nil
		},
		countFunc: func(context.Context) (int64, error) { return 10, nil },
	}
	cards := &mockCardResolver{countFunc: func(context.Context) (int64, error) { return 12, nil }}

	svc := NewSearchService(SearchParams{
		Encoder:    &mockEncoder{},
		Index:      index,
		Cards:      cards,
		CacheStats: staticCacheStats{hits: 40, misses: 5},
		Model:      "test-model",
	})

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(12), stats.TotalCards)
	assert.Equal(t, int64(10), stats.CardsWithVectors)
	assert.Len(t, stats.CountsByVariant, 2)
	assert.Equal(t, "test-model", stats.Model)
	assert.Equal(t, testDimension, stats.Dimension)
	assert.Equal(t, uint64(40), stats.CacheHits)
	assert.Equal(t, uint64(5), stats.CacheMisses)
}
