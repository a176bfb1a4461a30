package embeddings

import (
	"context"
	"fmt"

	"github.com/lingodeck/hub/internal/normalizer"
	"github.com/lingodeck/hub/pkg/cache"
)

// cacheEntries caps the content-hash cache. Vectors are small (a few KB) and
// a process handles one deployment's corpus, so the bound mostly exists to
// satisfy the LRU constructor; it is sized well above any realistic corpus.
const cacheEntries = 100_000

// CachingClient wraps a Client with a content-hash cache: texts are keyed by
// the full sha256 of their normalized form, so a repeated text never reaches
// the model twice. Concurrent misses on the same text are coalesced for
// single embeds and may race for batches; both computing the identical
// vector makes last-write-wins harmless.
type CachingClient struct {
	inner Client
	cache *cache.LoaderCache[string, []float32]
}

// Ensure CachingClient implements Client interface.
var _ Client = (*CachingClient)(nil)

// NewCachingClient wraps inner with a process-wide content-hash cache.
func NewCachingClient(inner Client) (*CachingClient, error) {
	c, err := cache.NewLoaderCache[string, []float32](cacheEntries, func(k string) string { return k })
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &CachingClient{inner: inner, cache: c}, nil
}

// Dimension reports the wrapped client's output width.
func (c *CachingClient) Dimension() int {
	return c.inner.Dimension()
}

// Embed returns the cached vector for the text's content hash, computing and
// storing it on miss.
func (c *CachingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := normalizer.ContentHash(text)

	vec, err := c.cache.Get(ctx, key, func(ctx context.Context, _ string) ([]float32, error) {
		return c.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed %q: %w", key[:12], err)
	}

	return vec, nil
}

// EmbedBatch serves cached texts from the cache and sends only the misses to
// the model in one batch, preserving input order in the result.
func (c *CachingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, len(texts))

	var (
		missTexts []string
		missIdx   []int
	)

	for i, text := range texts {
		if vec, ok := c.cache.Peek(normalizer.ContentHash(text)); ok {
			out[i] = vec
			continue
		}

		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, vec := range vecs {
		out[missIdx[j]] = vec
		c.cache.Add(normalizer.ContentHash(missTexts[j]), vec)
	}

	return out, nil
}

// CacheStats returns cumulative cache hit and miss counts for the stats endpoint.
func (c *CachingClient) CacheStats() (hits, misses uint64) {
	return c.cache.Stats()
}
