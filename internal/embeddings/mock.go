package embeddings

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	vecmath "github.com/lingodeck/hub/pkg/embeddings"
)

// MockClient implements the Client interface for testing and offline use.
// It generates deterministic unit vectors seeded by the input text hash, so
// identical texts always map to identical embeddings and distinct texts
// almost always differ.
type MockClient struct {
	dimension int
}

// Ensure MockClient implements Client interface.
var _ Client = (*MockClient)(nil)

// NewMockClient creates a mock embedding client with the given dimension.
func NewMockClient(dimension int) *MockClient {
	return &MockClient{dimension: dimension}
}

// Dimension reports the configured output width.
func (c *MockClient) Dimension() int {
	return c.dimension
}

// Embed generates a deterministic embedding based on the text hash.
func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	return c.deterministicEmbedding(text), nil
}

// EmbedBatch generates embeddings for multiple texts.
// Returns an error if any text is empty.
func (c *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: index %d", ErrEmptyInput, i)
		}

		vectors[i] = c.deterministicEmbedding(text)
	}

	return vectors, nil
}

// deterministicEmbedding creates a normalized embedding vector from the text hash.
// Hash bytes are re-hashed per 32-value block so dimensions above 32 do not
// just repeat the same pattern.
func (c *MockClient) deterministicEmbedding(text string) []float32 {
	vec := make([]float32, c.dimension)
	block := sha256.Sum256([]byte(text))

	for i := 0; i < c.dimension; i++ {
		if i > 0 && i%len(block) == 0 {
			block = sha256.Sum256(block[:])
		}

		// Map byte to [-1, 1].
		vec[i] = (float32(block[i%len(block)]) / 127.5) - 1.0
	}

	vecmath.NormalizeL2(vec)

	return vec
}
