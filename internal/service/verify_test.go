package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingodeck/hub/internal/apperrors"
)

type mockDimensionSource struct {
	dims []int
	err  error
}

func (m *mockDimensionSource) StoredDimensions(_ context.Context) ([]int, error) {
	return m.dims, m.err
}

func TestVerifyEmbeddingSetup(t *testing.T) {
	ctx := context.Background()

	t.Run("passes when encoder and storage match", func(t *testing.T) {
		err := VerifyEmbeddingSetup(ctx, testDimension, &mockEncoder{}, &mockDimensionSource{dims: []int{testDimension}})
		assert.NoError(t, err)
	})

	t.Run("passes on empty storage", func(t *testing.T) {
		err := VerifyEmbeddingSetup(ctx, testDimension, &mockEncoder{}, &mockDimensionSource{})
		assert.NoError(t, err)
	})

	t.Run("fails when stored vectors have a different dimension", func(t *testing.T) {
		err := VerifyEmbeddingSetup(ctx, testDimension, &mockEncoder{}, &mockDimensionSource{dims: []int{512}})
		require.Error(t, err)

		var cfgErr *apperrors.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "512")
	})

	t.Run("fails when encoder dimension disagrees with config", func(t *testing.T) {
		err := VerifyEmbeddingSetup(ctx, testDimension+1, &mockEncoder{}, &mockDimensionSource{})
		require.Error(t, err)

		var cfgErr *apperrors.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("fails when the probe embed errors", func(t *testing.T) {
		encoder := &mockEncoder{
			embedFunc: func(_ context.Context, _ string) ([]float32, error) {
				return nil, errors.New("backend down")
			},
		}

		err := VerifyEmbeddingSetup(ctx, testDimension, encoder, &mockDimensionSource{})
		require.Error(t, err)

		var cfgErr *apperrors.ConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Contains(t, err.Error(), "backend down")
	})

	t.Run("fails when the probe vector has the wrong dimension", func(t *testing.T) {
		encoder := &mockEncoder{
			embedFunc: func(_ context.Context, _ string) ([]float32, error) {
				return make([]float32, testDimension/2), nil
			},
		}

		err := VerifyEmbeddingSetup(ctx, testDimension, encoder, &mockDimensionSource{})
		require.Error(t, err)

		var cfgErr *apperrors.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("propagates storage read errors", func(t *testing.T) {
		readErr := errors.New("connection reset")

		err := VerifyEmbeddingSetup(ctx, testDimension, &mockEncoder{}, &mockDimensionSource{err: readErr})
		require.Error(t, err)
		assert.ErrorIs(t, err, readErr)
	})
}
