package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/lingodeck/hub/internal/datatypes"
)

// EmbeddingRecord represents one embedding row: one vector per card per variant.
// ContentHash is the sha256 of the normalized text the vector was computed from;
// it is what staleness checks compare against the card's current text.
type EmbeddingRecord struct {
	ID          uuid.UUID         `json:"id"`
	CardID      uuid.UUID         `json:"card_id"`
	Variant     datatypes.Variant `json:"variant"`
	Embedding   []float32         `json:"embedding"`
	Dimension   int               `json:"dimension"`
	ContentHash string            `json:"content_hash"`
	CreatedAt   time.Time         `json:"created_at"`
}

// CardWithScore is one semantic search hit: the card, which variant matched,
// and the cosine similarity score (0..1) plus raw cosine distance.
type CardWithScore struct {
	Card     Card              `json:"card"`
	Variant  datatypes.Variant `json:"variant"`
	Score    float64           `json:"score"`
	Distance float64           `json:"distance"`
}

// VariantStats holds per-variant embedding counts for the stats endpoint.
type VariantStats struct {
	Variant datatypes.Variant `json:"variant"`
	Count   int64             `json:"count"`
}

// EmbeddingStats summarizes stored embeddings across the corpus.
type EmbeddingStats struct {
	TotalCards       int64          `json:"total_cards"`
	CardsWithVectors int64          `json:"cards_with_vectors"`
	CountsByVariant  []VariantStats `json:"counts_by_variant"`
	Model            string         `json:"model"`
	Dimension        int            `json:"dimension"`
	CacheHits        uint64         `json:"cache_hits"`
	CacheMisses      uint64         `json:"cache_misses"`
}
