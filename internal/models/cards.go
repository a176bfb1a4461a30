package models

import (
	"time"

	"github.com/google/uuid"
)

// Card represents a flashcard synced from the external review application.
// The embedding pipeline only reads it; the sync subsystem owns writes.
type Card struct {
	ID         uuid.UUID `json:"id"`
	AnkiNoteID *int64    `json:"anki_note_id,omitempty"`
	DeckName   string    `json:"deck_name"`
	ModelName  *string   `json:"model_name,omitempty"`
	FrontText  string    `json:"front_text"`
	BackText   string    `json:"back_text"`
	Tags       []string  `json:"tags,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UpsertCardRequest is the payload the sync subsystem writes cards with.
// Cards are matched on AnkiNoteID when set.
type UpsertCardRequest struct {
	AnkiNoteID *int64   `json:"anki_note_id,omitempty"`
	DeckName   string   `json:"deck_name"`
	ModelName  *string  `json:"model_name,omitempty"`
	FrontText  string   `json:"front_text"`
	BackText   string   `json:"back_text"`
	Tags       []string `json:"tags,omitempty"`
}
