// Package service implements the embedding pipeline and semantic search over
// stored card vectors.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lingodeck/hub/internal/apperrors"
	"github.com/lingodeck/hub/internal/datatypes"
	"github.com/lingodeck/hub/internal/embeddings"
	"github.com/lingodeck/hub/internal/models"
	"github.com/lingodeck/hub/internal/normalizer"
	"github.com/lingodeck/hub/internal/observability"
)

// VectorStore is the dual-store surface the pipeline writes through.
type VectorStore interface {
	Upsert(ctx context.Context, cardID uuid.UUID, variant datatypes.Variant, embedding []float32, contentHash string) error
	Exists(ctx context.Context, cardID uuid.UUID, variant datatypes.Variant, contentHash string) (bool, error)
}

// CardReader is the card access the pipeline needs for deck and id runs.
type CardReader interface {
	ListByDeck(ctx context.Context, deckName string) ([]models.Card, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Card, error)
	ListAll(ctx context.Context) ([]models.Card, error)
}

// EmbeddingPipeline turns card text into stored vectors: normalize, check
// staleness, embed through the caching client, and write both stores
// atomically. Per-item failures never abort sibling items.
type EmbeddingPipeline struct {
	encoder       embeddings.Client
	store         VectorStore
	cards         CardReader
	variants      []datatypes.Variant
	maxConcurrent int
	metrics       observability.EmbeddingMetrics
	logger        *slog.Logger
}

// PipelineParams configures EmbeddingPipeline. Metrics may be nil when
// metrics are disabled; Logger defaults to slog.Default().
type PipelineParams struct {
	Encoder       embeddings.Client
	Store         VectorStore
	Cards         CardReader
	Variants      []datatypes.Variant
	MaxConcurrent int
	Metrics       observability.EmbeddingMetrics
	Logger        *slog.Logger
}

const defaultMaxConcurrent = 4

// NewEmbeddingPipeline creates an EmbeddingPipeline.
func NewEmbeddingPipeline(p PipelineParams) *EmbeddingPipeline {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	variants := p.Variants
	if len(variants) == 0 {
		variants = datatypes.AllVariants()
	}

	maxConcurrent := p.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	return &EmbeddingPipeline{
		encoder:       p.Encoder,
		store:         p.Store,
		cards:         p.Cards,
		variants:      variants,
		maxConcurrent: maxConcurrent,
		metrics:       p.Metrics,
		logger:        logger,
	}
}

// Variants returns the variants this pipeline generates by default.
func (p *EmbeddingPipeline) Variants() []datatypes.Variant {
	return p.variants
}

// pair is one (card, variant) work unit of a batch run.
type pair struct {
	card    models.Card
	variant datatypes.Variant
}

// Process generates embeddings for every (card, variant) combination.
// Passing no variants uses the pipeline's configured set. With
// forceRegenerate false, pairs whose stored content hash still matches the
// card's current text are skipped. The returned summary always accounts for
// every requested pair: successful + failed + skipped == len(cards)*len(variants).
func (p *EmbeddingPipeline) Process(
	ctx context.Context, cards []models.Card, variants []datatypes.Variant, forceRegenerate bool,
) (*models.BatchSummary, error) {
	if len(variants) == 0 {
		variants = p.variants
	}

	pairs := make([]pair, 0, len(cards)*len(variants))
	for _, card := range cards {
		for _, variant := range variants {
			pairs = append(pairs, pair{card: card, variant: variant})
		}
	}

	summary := &models.BatchSummary{Items: make([]models.ItemResult, len(pairs))}

	if len(pairs) == 0 {
		return summary, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.maxConcurrent) // bounds concurrent item processing
	)

	cancelled := false

	for i, pr := range pairs {
		// Cooperative cancellation between items: already dispatched items
		// run to completion and stay committed; the rest are accounted as
		// failed so the summary still sums to the requested total.
		if err := ctx.Err(); err != nil {
			cancelled = true
			summary.Items[i] = models.ItemResult{
				CardID:  pr.card.ID,
				Variant: pr.variant,
				Status:  models.ItemFailed,
				Reason:  "batch cancelled before item started",
			}

			continue
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(i int, pr pair) {
			defer wg.Done()
			defer func() { <-sem }()

			result := p.processPair(ctx, pr, forceRegenerate)

			mu.Lock()
			summary.Items[i] = result
			mu.Unlock()
		}(i, pr)
	}

	wg.Wait()

	for _, item := range summary.Items {
		switch item.Status {
		case models.ItemSuccessful:
			summary.Successful++
		case models.ItemSkipped:
			summary.Skipped++
		case models.ItemFailed:
			summary.Failed++
		}
	}

	p.logger.Info("batch embedding run finished",
		"requested", len(pairs),
		"successful", summary.Successful,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"cancelled", cancelled,
	)

	if p.metrics != nil {
		p.metrics.RecordBatchOutcomes(ctx, summary)
	}

	return summary, nil
}

// processPair handles one (card, variant): skip check, normalize, embed,
// dual-store write. Every failure path is caught here and reported as the
// item's result, never propagated to the batch.
func (p *EmbeddingPipeline) processPair(ctx context.Context, pr pair, forceRegenerate bool) (result models.ItemResult) {
	start := time.Now()

	defer func() { result.Duration = time.Since(start) }()

	result = models.ItemResult{CardID: pr.card.ID, Variant: pr.variant}

	text := normalizer.ExtractText(&pr.card, pr.variant)
	contentHash := normalizer.ContentHash(text)

	if !forceRegenerate {
		exists, err := p.store.Exists(ctx, pr.card.ID, pr.variant, contentHash)
		if err != nil {
			return p.failItem(ctx, result, fmt.Errorf("staleness check: %w", err))
		}

		if exists {
			result.Status = models.ItemSkipped
			return result
		}
	}

	vector, err := p.embedText(ctx, text)
	if err != nil {
		return p.failItem(ctx, result, err)
	}

	if err := p.store.Upsert(ctx, pr.card.ID, pr.variant, vector, contentHash); err != nil {
		return p.failItem(ctx, result, fmt.Errorf("store embedding: %w", err))
	}

	result.Status = models.ItemSuccessful

	return result
}

// embedText maps empty text to the reproducible zero vector without touching
// the encoder; everything else goes through the caching encoder.
func (p *EmbeddingPipeline) embedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return embeddings.ZeroVector(p.encoder.Dimension()), nil
	}

	vector, err := p.encoder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	if len(vector) != p.encoder.Dimension() {
		return nil, fmt.Errorf("%w: got %d, expected %d",
			embeddings.ErrDimensionMismatch, len(vector), p.encoder.Dimension())
	}

	return vector, nil
}

func (p *EmbeddingPipeline) failItem(ctx context.Context, result models.ItemResult, err error) models.ItemResult {
	result.Status = models.ItemFailed
	result.Reason = err.Error()

	p.logger.Error("embedding item failed",
		"card_id", result.CardID,
		"variant", result.Variant.String(),
		"error", err,
	)

	if p.metrics != nil {
		p.metrics.RecordItemError(ctx, result.Variant.String())
	}

	return result
}

// ProcessDeck embeds every card in the deck.
func (p *EmbeddingPipeline) ProcessDeck(
	ctx context.Context, deckName string, variants []datatypes.Variant, forceRegenerate bool,
) (*models.BatchSummary, error) {
	if deckName == "" {
		return nil, apperrors.NewValidationError("deck_name", "deck_name is required")
	}

	cards, err := p.cards.ListByDeck(ctx, deckName)
	if err != nil {
		return nil, fmt.Errorf("list deck cards: %w", err)
	}

	return p.Process(ctx, cards, variants, forceRegenerate)
}

// ProcessCardIDs embeds the given cards. Unknown IDs are reported as failed
// items for every requested variant so the caller sees them by identity.
func (p *EmbeddingPipeline) ProcessCardIDs(
	ctx context.Context, ids []uuid.UUID, variants []datatypes.Variant, forceRegenerate bool,
) (*models.BatchSummary, error) {
	cards, err := p.cards.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	summary, err := p.Process(ctx, cards, variants, forceRegenerate)
	if err != nil {
		return nil, err
	}

	if len(cards) < len(ids) {
		found := make(map[uuid.UUID]bool, len(cards))
		for _, card := range cards {
			found[card.ID] = true
		}

		if len(variants) == 0 {
			variants = p.variants
		}

		for _, id := range ids {
			if found[id] {
				continue
			}

			for _, variant := range variants {
				summary.Failed++
				summary.Items = append(summary.Items, models.ItemResult{
					CardID:  id,
					Variant: variant,
					Status:  models.ItemFailed,
					Reason:  models.ReasonCardNotFound,
				})
			}
		}
	}

	return summary, nil
}

// ProcessAll embeds the entire corpus.
func (p *EmbeddingPipeline) ProcessAll(
	ctx context.Context, variants []datatypes.Variant, forceRegenerate bool,
) (*models.BatchSummary, error) {
	cards, err := p.cards.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}

	return p.Process(ctx, cards, variants, forceRegenerate)
}

// IsConfigurationError reports whether err belongs to the fatal startup
// class (dimension mismatch, unloadable model) rather than a per-item failure.
func IsConfigurationError(err error) bool {
	return errors.Is(err, apperrors.ErrConfiguration) || errors.Is(err, embeddings.ErrDimensionMismatch)
}
