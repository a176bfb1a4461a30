package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	vecmath "github.com/lingodeck/hub/pkg/embeddings"
)

var (
	// ErrEmptyInput is returned when Embed is called with empty input.
	ErrEmptyInput = errors.New("embeddings: input text is empty")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("embeddings: no embedding in response")
	// ErrDimensionMismatch is returned when a response embedding length does not match the configured dimension.
	ErrDimensionMismatch = errors.New("embeddings: embedding dimension mismatch")
)

const defaultDimension = 1536

// OpenAIClient calls the OpenAI embeddings API via the official SDK.
type OpenAIClient struct {
	sdk       openaisdk.Client
	model     string
	dimension int
}

// Ensure OpenAIClient implements Client interface.
var _ Client = (*OpenAIClient)(nil)

// OpenAIOption configures the OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithDimension sets the requested embedding dimension (must match the vector column width).
func WithDimension(dim int) OpenAIOption {
	return func(c *OpenAIClient) {
		c.dimension = dim
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.model = model
	}
}

// NewOpenAIClient creates an OpenAI embeddings client.
// Uses text-embedding-3-small (1536 dimensions) unless overridden.
// Panics if apiKey is empty.
func NewOpenAIClient(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	if apiKey == "" {
		panic("embeddings: OpenAI API key cannot be empty")
	}

	client := &OpenAIClient{
		sdk:       openaisdk.NewClient(option.WithAPIKey(apiKey)),
		model:     string(openaisdk.EmbeddingModelTextEmbedding3Small),
		dimension: defaultDimension,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Dimension reports the configured output width.
func (c *OpenAIClient) Dimension() int {
	return c.dimension
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
		Model:      openaisdk.EmbeddingModel(c.model),
		Dimensions: param.NewOpt(int64(c.dimension)),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	return c.toVector(resp.Data[0].Embedding)
}

// EmbedBatch generates embedding vectors for multiple texts in a batch.
// Returns an error if any text in the input is empty.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: index %d", ErrEmptyInput, i)
		}
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:      openaisdk.EmbeddingModel(c.model),
		Dimensions: param.NewOpt(int64(c.dimension)),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings returned: got %d, expected %d",
			len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		vec, convErr := c.toVector(data.Embedding)
		if convErr != nil {
			return nil, convErr
		}

		// The API may return data out of order; Index is authoritative.
		vectors[data.Index] = vec
	}

	return vectors, nil
}

// toVector converts the SDK's float64 payload, validates the width, and
// normalizes to unit length.
func (c *OpenAIClient) toVector(raw []float64) ([]float32, error) {
	if len(raw) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(raw), c.dimension)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}

	vecmath.NormalizeL2(vec)

	return vec, nil
}
