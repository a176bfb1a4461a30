// Package repository handles data access for cards and embeddings.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingodeck/hub/internal/apperrors"
	"github.com/lingodeck/hub/internal/models"
)

// CardsRepository handles data access for the cards table.
type CardsRepository struct {
	db *pgxpool.Pool
}

// NewCardsRepository creates a new cards repository.
func NewCardsRepository(db *pgxpool.Pool) *CardsRepository {
	return &CardsRepository{db: db}
}

const cardColumns = `id, anki_note_id, deck_name, model_name, front_text, back_text, tags, created_at, updated_at`

func scanCard(row pgx.Row) (*models.Card, error) {
	var (
		card     models.Card
		front    *string
		back     *string
		tagsJSON []byte
	)

	err := row.Scan(&card.ID, &card.AnkiNoteID, &card.DeckName, &card.ModelName,
		&front, &back, &tagsJSON, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if front != nil {
		card.FrontText = *front
	}

	if back != nil {
		card.BackText = *back
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &card.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}

	return &card, nil
}

// Get returns one card by ID. Returns a NotFoundError when no row exists.
func (r *CardsRepository) Get(ctx context.Context, id uuid.UUID) (*models.Card, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`, id)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("card", fmt.Sprintf("card %s not found", id))
		}

		return nil, fmt.Errorf("get card: %w", err)
	}

	return card, nil
}

// ListByDeck returns all cards in the given deck ordered by creation time.
func (r *CardsRepository) ListByDeck(ctx context.Context, deckName string) ([]models.Card, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE deck_name = $1 ORDER BY created_at, id`, deckName)
	if err != nil {
		return nil, fmt.Errorf("list cards by deck: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

// ListByIDs returns the cards with the given IDs. Missing IDs are silently
// absent from the result; callers that need per-ID errors compare lengths.
func (r *CardsRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("list cards by ids: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

// ListAll returns every card ordered by creation time.
func (r *CardsRepository) ListAll(ctx context.Context) ([]models.Card, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+cardColumns+` FROM cards ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	return collectCards(rows)
}

func collectCards(rows pgx.Rows) ([]models.Card, error) {
	var cards []models.Card

	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}

		cards = append(cards, *card)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cards: %w", err)
	}

	return cards, nil
}

// DeckNames returns the distinct deck names present in the cards table.
func (r *CardsRepository) DeckNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT deck_name FROM cards ORDER BY deck_name`)
	if err != nil {
		return nil, fmt.Errorf("list deck names: %w", err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan deck name: %w", err)
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating deck names: %w", err)
	}

	return names, nil
}

// Count returns the total number of cards.
func (r *CardsRepository) Count(ctx context.Context) (int64, error) {
	var count int64

	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM cards`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cards: %w", err)
	}

	return count, nil
}

// Upsert inserts or updates a card matched on anki_note_id (the stable key
// the sync subsystem provides). Returns the stored card.
func (r *CardsRepository) Upsert(ctx context.Context, req *models.UpsertCardRequest) (*models.Card, error) {
	if req.DeckName == "" {
		return nil, apperrors.NewValidationError("deck_name", "deck_name is required")
	}

	tagsJSON, err := json.Marshal(req.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	now := time.Now()

	row := r.db.QueryRow(ctx, `
		INSERT INTO cards (id, anki_note_id, deck_name, model_name, front_text, back_text, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (anki_note_id)
		DO UPDATE SET deck_name = EXCLUDED.deck_name, model_name = EXCLUDED.model_name,
			front_text = EXCLUDED.front_text, back_text = EXCLUDED.back_text,
			tags = EXCLUDED.tags, updated_at = $8
		RETURNING `+cardColumns,
		uuid.New(), req.AnkiNoteID, req.DeckName, req.ModelName, req.FrontText, req.BackText, tagsJSON, now,
	)

	card, err := scanCard(row)
	if err != nil {
		return nil, fmt.Errorf("upsert card: %w", err)
	}

	return card, nil
}

// Delete removes a card. Embedding records cascade via FK; the index entries
// are removed in the same transaction so the dual store stays one unit.
func (r *CardsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete card: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM card_vectors WHERE card_id = $1`, id); err != nil {
		return fmt.Errorf("delete card vectors: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("card", fmt.Sprintf("card %s not found", id))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete card: %w", err)
	}

	return nil
}
