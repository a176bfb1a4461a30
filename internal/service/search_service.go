package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lingodeck/hub/internal/datatypes"
	"github.com/lingodeck/hub/internal/embeddings"
	"github.com/lingodeck/hub/internal/models"
	"github.com/lingodeck/hub/internal/normalizer"
	"github.com/lingodeck/hub/internal/observability"
	"github.com/lingodeck/hub/internal/repository"
)

// Sentinel errors for search (used by handlers for status mapping).
var (
	ErrEmptyQuery = errors.New("query is required and must be non-empty")
)

// NearestIndex provides the vector index reads needed for semantic search.
type NearestIndex interface {
	QueryNearest(ctx context.Context, queryEmbedding []float32, k int, filters repository.NearestFilters) ([]repository.NearestHit, error)
	StatsByVariant(ctx context.Context) ([]models.VariantStats, error)
	CountDistinctCards(ctx context.Context) (int64, error)
}

// CardResolver resolves index hits back to cards for display.
type CardResolver interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Card, error)
	Count(ctx context.Context) (int64, error)
}

// CacheStatsSource exposes content-hash cache counters for the stats endpoint.
type CacheStatsSource interface {
	CacheStats() (hits, misses uint64)
}

// SearchService performs semantic search over stored card vectors. The query
// is normalized and embedded through exactly the same path as card text, or
// similarity against stored vectors would be meaningless.
type SearchService struct {
	encoder    embeddings.Client
	index      NearestIndex
	cards      CardResolver
	cacheStats CacheStatsSource
	model      string
	metrics    observability.EmbeddingMetrics
	logger     *slog.Logger
}

// SearchParams configures SearchService. CacheStats and Metrics may be nil.
type SearchParams struct {
	Encoder    embeddings.Client
	Index      NearestIndex
	Cards      CardResolver
	CacheStats CacheStatsSource
	Model      string
	Metrics    observability.EmbeddingMetrics
	Logger     *slog.Logger
}

// NewSearchService creates a SearchService.
func NewSearchService(p SearchParams) *SearchService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchService{
		encoder:    p.Encoder,
		index:      p.Index,
		cards:      p.Cards,
		cacheStats: p.CacheStats,
		model:      p.Model,
		metrics:    p.Metrics,
		logger:     logger,
	}
}

// SearchFilters restricts a search to a deck and/or a variant.
type SearchFilters struct {
	DeckName *string
	Variant  *datatypes.Variant
}

// Search embeds the query and returns up to topK cards ranked by descending
// similarity score (1 - cosine distance, clamped to [0, 1]). Hits below
// minScore are dropped. Fewer than topK matches returns all that qualify; an
// empty index returns an empty result, not an error. Storage failures return
// an explicit error so callers can tell "no matches" from "search broken".
func (s *SearchService) Search(
	ctx context.Context, query string, topK int, filters SearchFilters, minScore float64,
) ([]models.CardWithScore, error) {
	start := time.Now()

	normalized := normalizer.CleanMarkup(query)
	if normalized == "" {
		return nil, ErrEmptyQuery
	}

	queryVec, err := s.encoder.Embed(ctx, normalized)
	if err != nil {
		s.logger.Error("search: embed query failed", "error", err, "model", s.model)

		return nil, fmt.Errorf("embed query: %w", err)
	}

	repoFilters := repository.NearestFilters{DeckName: filters.DeckName, Variant: filters.Variant}

	hits, err := s.index.QueryNearest(ctx, queryVec, topK, repoFilters)
	if err != nil {
		s.logger.Error("search: nearest query failed", "error", err, "model", s.model)

		return nil, fmt.Errorf("query nearest: %w", err)
	}

	results, err := s.resolveHits(ctx, hits, minScore)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search finished",
		"top_k", topK,
		"hits", len(results),
		"duration", time.Since(start),
	)

	if s.metrics != nil {
		s.metrics.RecordSearch(ctx, time.Since(start), len(results))
	}

	return results, nil
}

// resolveHits joins index hits back to their cards and converts distances to
// clamped similarity scores. Hits are already in ascending-distance order,
// which is the same as descending similarity.
func (s *SearchService) resolveHits(
	ctx context.Context, hits []repository.NearestHit, minScore float64,
) ([]models.CardWithScore, error) {
	if len(hits) == 0 {
		return []models.CardWithScore{}, nil
	}

	ids := make([]uuid.UUID, 0, len(hits))
	seen := make(map[uuid.UUID]bool, len(hits))

	for _, hit := range hits {
		if !seen[hit.CardID] {
			seen[hit.CardID] = true
			ids = append(ids, hit.CardID)
		}
	}

	cards, err := s.cards.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve cards: %w", err)
	}

	byID := make(map[uuid.UUID]models.Card, len(cards))
	for _, card := range cards {
		byID[card.ID] = card
	}

	results := make([]models.CardWithScore, 0, len(hits))

	for _, hit := range hits {
		card, ok := byID[hit.CardID]
		if !ok {
			// Card deleted between index read and resolution; drop the hit.
			s.logger.Debug("search: dropping hit for missing card", "card_id", hit.CardID)
			continue
		}

		score := clampScore(1 - hit.Distance)
		if score < minScore {
			continue
		}

		results = append(results, models.CardWithScore{
			Card:     card,
			Variant:  hit.Variant,
			Score:    score,
			Distance: hit.Distance,
		})
	}

	return results, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}

	if score > 1 {
		return 1
	}

	return score
}

// Stats summarizes stored embeddings: per-variant counts, coverage, model
// info, and content-hash cache effectiveness.
func (s *SearchService) Stats(ctx context.Context) (*models.EmbeddingStats, error) {
	byVariant, err := s.index.StatsByVariant(ctx)
	if err != nil {
		return nil, fmt.Errorf("variant stats: %w", err)
	}

	embedded, err := s.index.CountDistinctCards(ctx)
	if err != nil {
		return nil, fmt.Errorf("count embedded cards: %w", err)
	}

	total, err := s.cards.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count cards: %w", err)
	}

	stats := &models.EmbeddingStats{
		TotalCards:       total,
		CardsWithVectors: embedded,
		CountsByVariant:  byVariant,
		Model:            s.model,
		Dimension:        s.encoder.Dimension(),
	}

	if s.cacheStats != nil {
		stats.CacheHits, stats.CacheMisses = s.cacheStats.CacheStats()
	}

	return stats, nil
}
