package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/lingodeck/hub/internal/anki"
	"github.com/lingodeck/hub/internal/api/response"
)

// DeckSyncer pulls cards from the external review application.
type DeckSyncer interface {
	Ping(ctx context.Context) error
	SyncDeck(ctx context.Context, deckName string) (*anki.DeckSyncResult, error)
	SyncAll(ctx context.Context) ([]anki.DeckSyncResult, error)
}

// SyncHandler handles HTTP requests for AnkiConnect deck synchronization.
type SyncHandler struct {
	syncer DeckSyncer
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncer DeckSyncer) *SyncHandler {
	return &SyncHandler{syncer: syncer}
}

// SyncRequest is the body for POST /v1/sync. An empty deckName syncs every
// deck. API contract uses camelCase.
type SyncRequest struct {
	DeckName string `json:"deckName"` //nolint:tagliatelle // API contract
}

// SyncResponse is the response for POST /v1/sync.
type SyncResponse struct {
	Decks []anki.DeckSyncResult `json:"decks"`
}

// Sync handles POST /v1/sync.
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.RespondError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "POST required")

		return
	}

	var req SyncRequest

	// An empty body means "sync everything".
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if err := h.syncer.Ping(r.Context()); err != nil {
		response.RespondServiceUnavailable(w, "AnkiConnect is unreachable")

		return
	}

	var (
		decks []anki.DeckSyncResult
		err   error
	)

	if req.DeckName != "" {
		var result *anki.DeckSyncResult

		result, err = h.syncer.SyncDeck(r.Context(), req.DeckName)
		if result != nil {
			decks = []anki.DeckSyncResult{*result}
		}
	} else {
		decks, err = h.syncer.SyncAll(r.Context())
	}

	if err != nil {
		response.RespondInternalServerError(w, "Sync failed")

		return
	}

	if decks == nil {
		decks = []anki.DeckSyncResult{}
	}

	response.RespondJSON(w, http.StatusOK, SyncResponse{Decks: decks})
}
