package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/lingodeck/hub/internal/api/response"
	"github.com/lingodeck/hub/internal/api/validation"
	"github.com/lingodeck/hub/internal/apperrors"
	"github.com/lingodeck/hub/internal/models"
)

// CardStore is the card persistence surface the cards handler needs.
type CardStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Card, error)
	ListAll(ctx context.Context) ([]models.Card, error)
	ListByDeck(ctx context.Context, deckName string) ([]models.Card, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CardsHandler handles HTTP requests for card retrieval and deletion.
type CardsHandler struct {
	store CardStore
}

// NewCardsHandler creates a new cards handler.
func NewCardsHandler(store CardStore) *CardsHandler {
	return &CardsHandler{store: store}
}

// CardsResponse is the response for GET /v1/cards.
type CardsResponse struct {
	Cards []models.Card `json:"cards"`
	Count int           `json:"count"`
}

// listCardsQuery are the query parameters for GET /v1/cards.
type listCardsQuery struct {
	Deck string `form:"deck" validate:"omitempty,no_null_bytes"`
}

// List handles GET /v1/cards. An optional ?deck= query parameter restricts
// the listing to one deck.
func (h *CardsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.RespondError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "GET required")

		return
	}

	var query listCardsQuery
	if err := validation.ValidateAndDecodeQueryParams(r, &query); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	var (
		cards []models.Card
		err   error
	)

	if query.Deck != "" {
		cards, err = h.store.ListByDeck(r.Context(), query.Deck)
	} else {
		cards, err = h.store.ListAll(r.Context())
	}

	if err != nil {
		response.RespondInternalServerError(w, "Failed to list cards")

		return
	}

	if cards == nil {
		cards = []models.Card{}
	}

	response.RespondJSON(w, http.StatusOK, CardsResponse{Cards: cards, Count: len(cards)})
}

// Get handles GET /v1/cards/{id}.
func (h *CardsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.RespondError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "GET required")

		return
	}

	id, ok := cardIDFromPath(w, r)
	if !ok {
		return
	}

	card, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Card not found")

			return
		}

		response.RespondInternalServerError(w, "Failed to get card")

		return
	}

	response.RespondJSON(w, http.StatusOK, card)
}

// Delete handles DELETE /v1/cards/{id}. Embeddings and index entries for the
// card are removed with it.
func (h *CardsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		response.RespondError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "DELETE required")

		return
	}

	id, ok := cardIDFromPath(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			response.RespondNotFound(w, "Card not found")

			return
		}

		response.RespondInternalServerError(w, "Failed to delete card")

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// cardIDFromPath parses the {id} path value, writing a 400 response on failure.
func cardIDFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		response.RespondBadRequest(w, "Card ID is required")

		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		response.RespondBadRequest(w, "Invalid card ID")

		return uuid.Nil, false
	}

	return id, true
}
