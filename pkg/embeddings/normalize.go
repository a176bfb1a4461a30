// Package embeddings provides utilities for embedding vectors (e.g. L2 normalization).
package embeddings

import (
	"math"
)

// NormalizeL2 takes a raw embedding vector and normalizes it to a length of 1.
// It modifies the slice in-place to save allocations during batch generation runs.
func NormalizeL2(vector []float32) {
	sumSquares := Dot(vector, vector)

	// Avoid division by zero; the all-zero vector is the designated empty-text
	// embedding and must stay all-zero.
	if sumSquares == 0 {
		return
	}

	magnitude := math.Sqrt(sumSquares)

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / magnitude)
	}
}

// Dot returns the dot product of two equal-length vectors. For unit-normalized
// vectors this equals the cosine similarity.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}

	return sum
}
