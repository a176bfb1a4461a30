package service

import (
	"context"
	"fmt"

	"github.com/lingodeck/hub/internal/apperrors"
	"github.com/lingodeck/hub/internal/embeddings"
)

// StoredDimensionsSource reports the distinct vector dimensions present in
// storage.
type StoredDimensionsSource interface {
	StoredDimensions(ctx context.Context) ([]int, error)
}

// VerifyEmbeddingSetup refuses startup when the encoder or the stored
// vectors disagree with the configured dimension. Serving with a mismatch
// would silently produce meaningless similarity scores, so callers treat the
// returned configuration error as fatal. The probe embed also proves the
// backend is actually usable before any request arrives.
func VerifyEmbeddingSetup(
	ctx context.Context, dimension int, encoder embeddings.Client, stored StoredDimensionsSource,
) error {
	if got := encoder.Dimension(); got != dimension {
		return apperrors.NewConfigurationError("encoder",
			fmt.Sprintf("encoder produces %d-dimensional vectors, EMBEDDING_DIMENSION is %d", got, dimension))
	}

	probe, err := encoder.Embed(ctx, "startup probe")
	if err != nil {
		return apperrors.NewConfigurationError("encoder",
			fmt.Sprintf("embedding backend is not usable: %v", err))
	}

	if len(probe) != dimension {
		return apperrors.NewConfigurationError("encoder",
			fmt.Sprintf("probe embedding has dimension %d, EMBEDDING_DIMENSION is %d", len(probe), dimension))
	}

	dims, err := stored.StoredDimensions(ctx)
	if err != nil {
		return fmt.Errorf("read stored dimensions: %w", err)
	}

	for _, dim := range dims {
		if dim != dimension {
			return apperrors.NewConfigurationError("index",
				fmt.Sprintf("stored vectors have dimension %d, EMBEDDING_DIMENSION is %d; "+
					"regenerate embeddings or fix the configuration", dim, dimension))
		}
	}

	return nil
}
