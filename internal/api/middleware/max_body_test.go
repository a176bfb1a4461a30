package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBodyTooLargeRecorder struct {
	count int
}

func (m *mockBodyTooLargeRecorder) RecordRequestBodyTooLarge(_ context.Context) {
	m.count++
}

func TestMaxBody(t *testing.T) {
	readAll := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	t.Run("passes bodies under the limit through", func(t *testing.T) {
		handler := MaxBody(64, nil)(readAll)
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/sync", bytes.NewReader([]byte(`{"deckName":"Thai"}`)))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("rejects oversized bodies with 413 naming the limit", func(t *testing.T) {
		recorder := &mockBodyTooLargeRecorder{}
		handler := MaxBody(8, recorder)(readAll)
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/sync", bytes.NewReader(bytes.Repeat([]byte("a"), 64)))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, rec.Body.String(), "8 byte limit")
		assert.Equal(t, 1, recorder.count)
	})

	t.Run("zero limit disables the middleware", func(t *testing.T) {
		handler := MaxBody(0, nil)(readAll)
		req := httptest.NewRequest(http.MethodPost, "http://test/v1/sync", bytes.NewReader(bytes.Repeat([]byte("a"), 1<<16)))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
