package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrQueueFull is returned when the inference queue is saturated; callers
// should treat it as a transient per-item failure, not retry-storm the pool.
var ErrQueueFull = errors.New("embeddings: inference queue is full")

// PoolConfig sizes the bounded inference pool.
type PoolConfig struct {
	// Workers is the number of concurrent inference calls, sized to the
	// available compute units.
	Workers int
	// QueueDepth caps how many batches may wait for a worker beyond the ones
	// running. Zero means no waiting: a busy pool rejects immediately.
	QueueDepth int
	// BatchSize is the maximum number of texts per inference call; larger
	// inputs are split and the results reassembled in order.
	BatchSize int
	// BatchTimeout bounds one inference call. A timed-out batch is treated
	// exactly like a failed batch: retried once, then surfaced.
	BatchTimeout time.Duration
	// RetryBackoff is the wait before the single retry of a failed batch.
	RetryBackoff time.Duration
}

const (
	defaultWorkers      = 2
	defaultQueueDepth   = 32
	defaultBatchSize    = 32
	defaultBatchTimeout = 30 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
)

// PooledClient wraps a Client with a bounded worker pool so inference never
// starves the orchestration layer: at most Workers calls run concurrently,
// at most Workers+QueueDepth are admitted at all, and each call carries a
// timeout plus a single backoff retry.
type PooledClient struct {
	inner   Client
	cfg     PoolConfig
	workers chan struct{} // limits running inference calls
	queue   chan struct{} // limits admitted (running + waiting) calls
}

// Ensure PooledClient implements Client interface.
var _ Client = (*PooledClient)(nil)

// NewPooledClient wraps inner with a bounded pool. Zero config fields fall
// back to defaults.
func NewPooledClient(inner Client, cfg PoolConfig) *PooledClient {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueDepth < 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}

	return &PooledClient{
		inner:   inner,
		cfg:     cfg,
		workers: make(chan struct{}, cfg.Workers),
		queue:   make(chan struct{}, cfg.Workers+cfg.QueueDepth),
	}
}

// Dimension reports the wrapped client's output width.
func (p *PooledClient) Dimension() int {
	return p.inner.Dimension()
}

// Embed runs a single-text inference through the pool.
func (p *PooledClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vecs[0], nil
}

// EmbedBatch splits texts into batches of at most BatchSize, runs them on the
// pool, and reassembles the vectors in input order.
func (p *PooledClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(texts))
		batch := texts[start:end]
		offset := start

		g.Go(func() error {
			vecs, err := p.runBatch(gctx, batch)
			if err != nil {
				return err
			}

			copy(out[offset:], vecs)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// runBatch admits one batch to the pool, executes it with a timeout, and
// retries once with backoff on failure.
func (p *PooledClient) runBatch(ctx context.Context, batch []string) ([][]float32, error) {
	select {
	case p.queue <- struct{}{}:
		defer func() { <-p.queue }()
	default:
		return nil, ErrQueueFull
	}

	select {
	case p.workers <- struct{}{}:
		defer func() { <-p.workers }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vecs, err := p.callOnce(ctx, batch)
	if err == nil {
		return vecs, nil
	}

	// The parent being cancelled is not a transient inference failure.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	select {
	case <-time.After(p.cfg.RetryBackoff):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	vecs, retryErr := p.callOnce(ctx, batch)
	if retryErr != nil {
		return nil, fmt.Errorf("batch failed after retry: %w", retryErr)
	}

	return vecs, nil
}

func (p *PooledClient) callOnce(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
	defer cancel()

	return p.inner.EmbedBatch(callCtx, batch)
}
