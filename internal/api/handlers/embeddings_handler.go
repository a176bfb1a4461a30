package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/lingodeck/hub/internal/api/response"
	"github.com/lingodeck/hub/internal/apperrors"
	"github.com/lingodeck/hub/internal/datatypes"
	"github.com/lingodeck/hub/internal/models"
	"github.com/lingodeck/hub/internal/service"
)

// EmbeddingService runs batch embedding generation.
type EmbeddingService interface {
	ProcessDeck(ctx context.Context, deckName string, variants []datatypes.Variant, forceRegenerate bool) (*models.BatchSummary, error)
	ProcessCardIDs(ctx context.Context, ids []uuid.UUID, variants []datatypes.Variant, forceRegenerate bool) (*models.BatchSummary, error)
	ProcessAll(ctx context.Context, variants []datatypes.Variant, forceRegenerate bool) (*models.BatchSummary, error)
}

// StatsService reports corpus-wide embedding statistics.
type StatsService interface {
	Stats(ctx context.Context) (*models.EmbeddingStats, error)
}

// EmbeddingsHandler handles HTTP requests for embedding generation and stats.
type EmbeddingsHandler struct {
	pipeline EmbeddingService
	stats    StatsService
}

// NewEmbeddingsHandler creates a new embeddings handler.
func NewEmbeddingsHandler(pipeline EmbeddingService, stats StatsService) *EmbeddingsHandler {
	return &EmbeddingsHandler{pipeline: pipeline, stats: stats}
}

// GenerateRequest is the body for POST /v1/embeddings/generate.
// API contract uses camelCase (deckName, cardIds).
// deckName and cardIds are mutually exclusive; with neither set the whole
// corpus is processed.
type GenerateRequest struct {
	DeckName string      `json:"deckName"` //nolint:tagliatelle // API contract
	CardIDs  []uuid.UUID `json:"cardIds"`  //nolint:tagliatelle // API contract
	Variants []string    `json:"variants"`
	Force    bool        `json:"force"`
}

// Generate handles POST /v1/embeddings/generate.
func (h *EmbeddingsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.RespondError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "POST required")

		return
	}

	var req GenerateRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if req.DeckName != "" && len(req.CardIDs) > 0 {
		response.RespondBadRequest(w, "deckName and cardIds are mutually exclusive")

		return
	}

	variants, err := parseRequestVariants(req.Variants)
	if err != nil {
		response.RespondBadRequest(w, err.Error())

		return
	}

	var summary *models.BatchSummary

	switch {
	case req.DeckName != "":
		summary, err = h.pipeline.ProcessDeck(r.Context(), req.DeckName, variants, req.Force)
	case len(req.CardIDs) > 0:
		summary, err = h.pipeline.ProcessCardIDs(r.Context(), req.CardIDs, variants, req.Force)
	default:
		summary, err = h.pipeline.ProcessAll(r.Context(), variants, req.Force)
	}

	if err != nil {
		var validationErr *apperrors.ValidationError
		if errors.As(err, &validationErr) {
			response.RespondBadRequest(w, validationErr.Error())

			return
		}

		if service.IsConfigurationError(err) {
			response.RespondServiceUnavailable(w, "Embedding backend is misconfigured")

			return
		}

		response.RespondInternalServerError(w, "Embedding generation failed")

		return
	}

	response.RespondJSON(w, http.StatusOK, summary)
}

// Stats handles GET /v1/embeddings/stats.
func (h *EmbeddingsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.RespondError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "GET required")

		return
	}

	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		response.RespondInternalServerError(w, "Failed to compute embedding stats")

		return
	}

	response.RespondJSON(w, http.StatusOK, stats)
}

// parseRequestVariants converts the request's variant names; an empty list
// means the service's configured default variants.
func parseRequestVariants(names []string) ([]datatypes.Variant, error) {
	if len(names) == 0 {
		return nil, nil
	}

	return datatypes.ParseVariants(names)
}
