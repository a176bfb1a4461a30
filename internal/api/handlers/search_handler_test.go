package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingodeck/hub/internal/datatypes"
	"github.com/lingodeck/hub/internal/models"
	"github.com/lingodeck/hub/internal/service"
)

type mockSearcher struct {
	searchFunc func(ctx context.Context, query string, topK int, filters service.SearchFilters, minScore float64) (
		[]models.CardWithScore, error)
}

func (m *mockSearcher) Search(
	ctx context.Context, query string, topK int, filters service.SearchFilters, minScore float64,
) ([]models.CardWithScore, error) {
	if m.searchFunc != nil {
		return m.searchFunc(ctx, query, topK, filters, minScore)
	}

	return nil, nil
}

func TestSearchHandler_SemanticSearch(t *testing.T) {
	t.Run("empty query returns 400", func(t *testing.T) {
		called := false
		mock := &mockSearcher{
			searchFunc: func(_ context.Context, _ string, _ int, _ service.SearchFilters, _ float64) (
				[]models.CardWithScore, error,
			) {
				called = true

				return nil, service.ErrEmptyQuery
			},
		}
		handler := NewSearchHandler(mock)
		body := []byte(`{"query":"  ","topK":10}`)
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/cards/search/semantic", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		require.True(t, called)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid variant returns 400 without calling service", func(t *testing.T) {
		called := false
		mock := &mockSearcher{
			searchFunc: func(_ context.Context, _ string, _ int, _ service.SearchFilters, _ float64) (
				[]models.CardWithScore, error,
			) {
				called = true

				return nil, nil
			},
		}
		handler := NewSearchHandler(mock)
		body := []byte(`{"query":"water","variant":"sideways"}`)
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/cards/search/semantic", bytes.NewReader(body))

		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		assert.False(t, called)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown body field returns 400", func(t *testing.T) {
		handler := NewSearchHandler(&mockSearcher{})
		body := []byte(`{"query":"water","top_k":5}`)
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/cards/search/semantic", bytes.NewReader(body))

		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("success returns 200 with ranked results", func(t *testing.T) {
		id1 := uuid.MustParse("018e1234-5678-9abc-def0-111111111111")
		id2 := uuid.MustParse("018e1234-5678-9abc-def0-222222222222")
		mock := &mockSearcher{
			searchFunc: func(_ context.Context, query string, topK int, filters service.SearchFilters, minScore float64) (
				[]models.CardWithScore, error,
			) {
				assert.Equal(t, "water", query)
				assert.Equal(t, 10, topK)
				assert.Nil(t, filters.DeckName)
				assert.Nil(t, filters.Variant)
				assert.InDelta(t, 0, minScore, 1e-9)

				return []models.CardWithScore{
					{
						Card:    models.Card{ID: id1, DeckName: "Thai Vocab", FrontText: "น้ำ", BackText: "water"},
						Variant: datatypes.VariantCombined,
						Score:   0.92, Distance: 0.08,
					},
					{
						Card:    models.Card{ID: id2, DeckName: "Thai Vocab", FrontText: "ฝน", BackText: "rain"},
						Variant: datatypes.VariantBack,
						Score:   0.61, Distance: 0.39,
					},
				}, nil
			},
		}
		handler := NewSearchHandler(mock)
		body := []byte(`{"query":"water"}`)
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/cards/search/semantic", bytes.NewReader(body))

		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		// Variants go over the wire as their string names.
		assert.Contains(t, rec.Body.String(), `"variant":"combined"`)
		assert.Contains(t, rec.Body.String(), `"variant":"back"`)

		var resp SemanticSearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Results, 2)
		assert.Equal(t, id1, resp.Results[0].CardID)
		assert.Equal(t, datatypes.VariantCombined, resp.Results[0].Variant)
		assert.Equal(t, "water", resp.Results[0].BackText)
		assert.InDelta(t, 0.92, resp.Results[0].Score, 1e-9)
		assert.Equal(t, id2, resp.Results[1].CardID)
	})

	t.Run("filters and bounds are forwarded", func(t *testing.T) {
		mock := &mockSearcher{
			searchFunc: func(_ context.Context, _ string, topK int, filters service.SearchFilters, minScore float64) (
				[]models.CardWithScore, error,
			) {
				assert.Equal(t, 100, topK) // clamped from 500
				require.NotNil(t, filters.DeckName)
				assert.Equal(t, "Thai Vocab", *filters.DeckName)
				require.NotNil(t, filters.Variant)
				assert.Equal(t, datatypes.VariantFront, *filters.Variant)
				assert.InDelta(t, 0.5, minScore, 1e-9)

				return []models.CardWithScore{}, nil
			},
		}
		handler := NewSearchHandler(mock)
		body := []byte(`{"query":"water","topK":500,"deck":"Thai Vocab","variant":"front","minScore":0.5}`)
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/cards/search/semantic", bytes.NewReader(body))

		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp SemanticSearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Empty(t, resp.Results)
		assert.NotNil(t, resp.Results)
	})

	t.Run("service failure returns 500", func(t *testing.T) {
		mock := &mockSearcher{
			searchFunc: func(_ context.Context, _ string, _ int, _ service.SearchFilters, _ float64) (
				[]models.CardWithScore, error,
			) {
				return nil, errors.New("index down")
			},
		}
		handler := NewSearchHandler(mock)
		body := []byte(`{"query":"water"}`)
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/cards/search/semantic", bytes.NewReader(body))

		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("GET returns 405", func(t *testing.T) {
		handler := NewSearchHandler(&mockSearcher{})
		req := httptest.NewRequest(http.MethodGet, "http://test/v1/cards/search/semantic", nil)

		rec := httptest.NewRecorder()

		handler.SemanticSearch(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
