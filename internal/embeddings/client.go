// Package embeddings wraps the sentence-embedding model behind a Client
// interface, with a deterministic mock, a bounded inference pool, and a
// content-hash cache layered on top.
package embeddings

import "context"

// Client defines the interface for generating text embeddings.
// Implementations must return unit-length (L2-normalized) vectors of exactly
// Dimension() values so downstream cosine comparisons stay consistent.
type Client interface {
	// Embed generates an embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embedding vectors for multiple texts in a batch.
	// Output length equals input length and order is preserved.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the fixed output width of this client's model.
	Dimension() int
}

// ZeroVector returns the designated embedding for empty text: all zeros at
// the given dimension. Empty-input cards map to this reproducibly instead of
// invoking the model, so the policy is identical across deployments.
func ZeroVector(dimension int) []float32 {
	return make([]float32, dimension)
}
