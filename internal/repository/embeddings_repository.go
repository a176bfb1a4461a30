package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/lingodeck/hub/internal/datatypes"
	"github.com/lingodeck/hub/internal/models"
)

// ErrEmbeddingNotFound is returned when no embedding row exists for the given card and variant.
var ErrEmbeddingNotFound = errors.New("embedding not found for card and variant")

// EmbeddingsRepository handles data access for the dual vector store: the
// embeddings record table (inspection/auditing) and the card_vectors table
// the nearest-neighbor index lives on. The two are only ever written inside
// one transaction, so a (card, variant) pair is either fully present in both
// or absent from both.
type EmbeddingsRepository struct {
	db *pgxpool.Pool
}

// NewEmbeddingsRepository creates a new embeddings repository.
func NewEmbeddingsRepository(db *pgxpool.Pool) *EmbeddingsRepository {
	return &EmbeddingsRepository{db: db}
}

// Upsert atomically replaces the embedding record and index entry for
// (card_id, variant). The old pair is discarded and a fresh pair inserted in
// one transaction; a failure of either write rolls back both.
func (r *EmbeddingsRepository) Upsert(
	ctx context.Context, cardID uuid.UUID, variant datatypes.Variant, embedding []float32, contentHash string,
) error {
	vec := pgvector.NewHalfVector(embedding)
	now := time.Now()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin embeddings upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Delete-then-insert rather than ON CONFLICT: regeneration replaces the
	// pair, and the fresh seq keeps tie-breaks ordered by actual insertion.
	_, err = tx.Exec(ctx,
		`DELETE FROM embeddings WHERE card_id = $1 AND variant = $2`,
		cardID, variant.String(),
	)
	if err != nil {
		return fmt.Errorf("discard stale embedding record: %w", err)
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM card_vectors WHERE card_id = $1 AND variant = $2`,
		cardID, variant.String(),
	)
	if err != nil {
		return fmt.Errorf("discard stale index entry: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO embeddings (id, card_id, variant, embedding, dimension, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), cardID, variant.String(), vec, len(embedding), contentHash, now,
	)
	if err != nil {
		return fmt.Errorf("insert embedding record: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO card_vectors (card_id, variant, embedding)
		VALUES ($1, $2, $3)`,
		cardID, variant.String(), vec,
	)
	if err != nil {
		return fmt.Errorf("insert index entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit embeddings upsert: %w", err)
	}

	return nil
}

// Exists reports whether a non-stale record already matches: same card,
// same variant, and a stored content hash equal to contentHash computed from
// the card's current text. Staleness is always recomputed by the caller from
// current card state, never cached.
func (r *EmbeddingsRepository) Exists(
	ctx context.Context, cardID uuid.UUID, variant datatypes.Variant, contentHash string,
) (bool, error) {
	var exists bool

	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM embeddings
			WHERE card_id = $1 AND variant = $2 AND content_hash = $3
		)`,
		cardID, variant.String(), contentHash,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("embedding exists: %w", err)
	}

	return exists, nil
}

// GetVector returns the stored embedding for the given card and variant.
// Returns ErrEmbeddingNotFound when no row exists.
func (r *EmbeddingsRepository) GetVector(
	ctx context.Context, cardID uuid.UUID, variant datatypes.Variant,
) ([]float32, error) {
	var vec pgvector.HalfVector

	err := r.db.QueryRow(ctx,
		`SELECT embedding FROM embeddings WHERE card_id = $1 AND variant = $2`,
		cardID, variant.String(),
	).Scan(&vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmbeddingNotFound
		}

		return nil, fmt.Errorf("get embedding: %w", err)
	}

	return vec.Slice(), nil
}

// NearestFilters restricts a nearest-neighbor query.
type NearestFilters struct {
	DeckName *string
	Variant  *datatypes.Variant
}

// NearestHit is one raw index hit before card resolution in the service layer.
type NearestHit struct {
	CardID   uuid.UUID
	Variant  datatypes.Variant
	Distance float64
}

// QueryNearest returns up to k hits ordered by ascending cosine distance
// (<=>), restricted by the optional filters. Equal distances are broken by
// insertion order (seq), so results are deterministic.
func (r *EmbeddingsRepository) QueryNearest(
	ctx context.Context, queryEmbedding []float32, k int, filters NearestFilters,
) ([]NearestHit, error) {
	queryVec := pgvector.NewHalfVector(queryEmbedding)

	query := `
		SELECT v.card_id, v.variant, (v.embedding <=> $1) AS distance
		FROM card_vectors v
		INNER JOIN cards c ON c.id = v.card_id`

	args := []any{queryVec}
	where := ""

	if filters.Variant != nil {
		args = append(args, filters.Variant.String())
		where += fmt.Sprintf(" AND v.variant = $%d", len(args))
	}

	if filters.DeckName != nil {
		args = append(args, *filters.DeckName)
		where += fmt.Sprintf(" AND c.deck_name = $%d", len(args))
	}

	if where != "" {
		query += " WHERE" + where[4:] // drop the leading " AND"
	}

	args = append(args, k)
	query += fmt.Sprintf(" ORDER BY v.embedding <=> $1, v.seq LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nearest: %w", err)
	}
	defer rows.Close()

	var hits []NearestHit

	for rows.Next() {
		var (
			hit        NearestHit
			variantStr string
		)

		if err := rows.Scan(&hit.CardID, &variantStr, &hit.Distance); err != nil {
			return nil, fmt.Errorf("scan nearest hit: %w", err)
		}

		variant, ok := datatypes.ParseVariant(variantStr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", datatypes.ErrInvalidVariant, variantStr)
		}

		hit.Variant = variant
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest: %w", err)
	}

	return hits, nil
}

// StatsByVariant returns embedding counts per variant.
func (r *EmbeddingsRepository) StatsByVariant(ctx context.Context) ([]models.VariantStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT variant, COUNT(*) FROM embeddings GROUP BY variant ORDER BY variant`)
	if err != nil {
		return nil, fmt.Errorf("embedding stats: %w", err)
	}
	defer rows.Close()

	var stats []models.VariantStats

	for rows.Next() {
		var (
			variantStr string
			count      int64
		)

		if err := rows.Scan(&variantStr, &count); err != nil {
			return nil, fmt.Errorf("scan variant stats: %w", err)
		}

		variant, ok := datatypes.ParseVariant(variantStr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", datatypes.ErrInvalidVariant, variantStr)
		}

		stats = append(stats, models.VariantStats{Variant: variant, Count: count})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating variant stats: %w", err)
	}

	return stats, nil
}

// CountDistinctCards returns how many cards have at least one embedding.
func (r *EmbeddingsRepository) CountDistinctCards(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.QueryRow(ctx, `SELECT COUNT(DISTINCT card_id) FROM embeddings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count embedded cards: %w", err)
	}

	return count, nil
}

// StoredDimensions returns the distinct vector dimensions present in the
// record table. Used by the startup check: anything other than the configured
// dimension means the deployment and the store disagree, which is fatal.
func (r *EmbeddingsRepository) StoredDimensions(ctx context.Context) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT dimension FROM embeddings ORDER BY dimension`)
	if err != nil {
		return nil, fmt.Errorf("stored dimensions: %w", err)
	}
	defer rows.Close()

	var dims []int

	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan dimension: %w", err)
		}

		dims = append(dims, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dimensions: %w", err)
	}

	return dims, nil
}

// ListCardIDsMissingVariant returns IDs of cards with no embedding row for
// the given variant (so they need a backfill job for it).
func (r *EmbeddingsRepository) ListCardIDsMissingVariant(
	ctx context.Context, variant datatypes.Variant,
) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id FROM cards c
		WHERE NOT EXISTS (
			SELECT 1 FROM embeddings e
			WHERE e.card_id = c.id AND e.variant = $1
		)`, variant.String())
	if err != nil {
		return nil, fmt.Errorf("list cards missing variant: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan card id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating backfill ids: %w", err)
	}

	return ids, nil
}
