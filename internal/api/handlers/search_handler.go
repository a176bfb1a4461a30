package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/lingodeck/hub/internal/api/response"
	"github.com/lingodeck/hub/internal/api/validation"
	"github.com/lingodeck/hub/internal/datatypes"
	"github.com/lingodeck/hub/internal/models"
	"github.com/lingodeck/hub/internal/service"
)

// Searcher runs semantic queries against the vector index.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, filters service.SearchFilters, minScore float64) (
		[]models.CardWithScore, error)
}

// SearchHandler handles HTTP requests for semantic card search.
type SearchHandler struct {
	service Searcher
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(service Searcher) *SearchHandler {
	return &SearchHandler{service: service}
}

// SemanticSearchRequest is the body for POST /v1/cards/search/semantic.
// API contract uses camelCase (topK, minScore).
type SemanticSearchRequest struct {
	Query    string  `json:"query"    validate:"required,no_null_bytes"`
	TopK     int     `json:"topK"     validate:"omitempty,min=1"` //nolint:tagliatelle // API contract
	Deck     string  `json:"deck"     validate:"omitempty,no_null_bytes"`
	Variant  string  `json:"variant"  validate:"omitempty,variant"`
	MinScore float64 `json:"minScore" validate:"omitempty,min=0,max=1"` //nolint:tagliatelle // API contract
}

// SemanticSearchResponse is the response for semantic search.
type SemanticSearchResponse struct {
	Results []SemanticSearchResultItem `json:"results"`
}

// SemanticSearchResultItem is one search hit with the card, the matched
// variant, and the similarity score.
type SemanticSearchResultItem struct {
	CardID    uuid.UUID         `json:"cardId"`    //nolint:tagliatelle // API contract
	DeckName  string            `json:"deckName"`  //nolint:tagliatelle // API contract
	FrontText string            `json:"frontText"` //nolint:tagliatelle // API contract
	BackText  string            `json:"backText"`  //nolint:tagliatelle // API contract
	Tags      []string          `json:"tags,omitempty"`
	Variant   datatypes.Variant `json:"variant"`
	Score     float64           `json:"score"`
	Distance  float64           `json:"distance"`
}

// SemanticSearch handles POST /v1/cards/search/semantic.
func (h *SearchHandler) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.RespondError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "POST required")

		return
	}

	var req SemanticSearchRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&req); err != nil {
		response.RespondBadRequest(w, "Invalid request body")

		return
	}

	if err := validation.ValidateStruct(&req); err != nil {
		validation.RespondValidationError(w, err)

		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	const maxTopK = 100
	if topK > maxTopK {
		topK = maxTopK
	}

	minScore := req.MinScore
	if minScore < 0 {
		minScore = 0
	}

	if minScore > 1 {
		minScore = 1
	}

	filters := service.SearchFilters{}
	if req.Deck != "" {
		filters.DeckName = &req.Deck
	}

	if req.Variant != "" {
		variant, ok := datatypes.ParseVariant(req.Variant)
		if !ok {
			response.RespondBadRequest(w, "variant must be one of front, back, combined")

			return
		}

		filters.Variant = &variant
	}

	results, err := h.service.Search(r.Context(), req.Query, topK, filters, minScore)
	if err != nil {
		if errors.Is(err, service.ErrEmptyQuery) {
			response.RespondBadRequest(w, "query is required and must be non-empty")

			return
		}

		response.RespondInternalServerError(w, "Search failed")

		return
	}

	response.RespondJSON(w, http.StatusOK, SemanticSearchResponse{
		Results: toResultItems(results),
	})
}

func toResultItems(results []models.CardWithScore) []SemanticSearchResultItem {
	items := make([]SemanticSearchResultItem, len(results))
	for i := range results {
		items[i] = SemanticSearchResultItem{
			CardID:    results[i].Card.ID,
			DeckName:  results[i].Card.DeckName,
			FrontText: results[i].Card.FrontText,
			BackText:  results[i].Card.BackText,
			Tags:      results[i].Card.Tags,
			Variant:   results[i].Variant,
			Score:     results[i].Score,
			Distance:  results[i].Distance,
		}
	}

	return items
}
