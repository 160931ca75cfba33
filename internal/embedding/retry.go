package embedding

import (
	"context"
	"time"

	"codeintel/internal/logging"

	"github.com/cenkalti/backoff/v4"
)

// RetryingEngine wraps an EmbeddingEngine with exponential-backoff retry,
// covering transient failures against a local Ollama server or the GenAI
// API (rate limits, connection resets, cold-start timeouts).
type RetryingEngine struct {
	inner      EmbeddingEngine
	maxElapsed time.Duration
}

// NewRetryingEngine wraps inner with retry behavior. maxElapsed bounds the
// total time spent retrying a single Embed/EmbedBatch call before giving up.
func NewRetryingEngine(inner EmbeddingEngine, maxElapsed time.Duration) *RetryingEngine {
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	return &RetryingEngine{inner: inner, maxElapsed: maxElapsed}
}

func (r *RetryingEngine) backoffFor(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = r.maxElapsed
	return backoff.WithContext(b, ctx)
}

// Embed retries the wrapped engine's Embed call on error.
func (r *RetryingEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32
	attempt := 0

	op := func() error {
		attempt++
		vec, err := r.inner.Embed(ctx, text)
		if err != nil {
			logging.EmbeddingWarn("Embed attempt %d failed: %v", attempt, err)
			return err
		}
		result = vec
		return nil
	}

	if err := backoff.Retry(op, r.backoffFor(ctx)); err != nil {
		logging.Get(logging.CategoryEmbedding).Error("Embed failed after %d attempts: %v", attempt, err)
		return nil, err
	}
	return result, nil
}

// EmbedBatch retries the wrapped engine's EmbedBatch call on error.
func (r *RetryingEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	attempt := 0

	op := func() error {
		attempt++
		vecs, err := r.inner.EmbedBatch(ctx, texts)
		if err != nil {
			logging.EmbeddingWarn("EmbedBatch attempt %d failed: %v", attempt, err)
			return err
		}
		result = vecs
		return nil
	}

	if err := backoff.Retry(op, r.backoffFor(ctx)); err != nil {
		logging.Get(logging.CategoryEmbedding).Error("EmbedBatch failed after %d attempts: %v", attempt, err)
		return nil, err
	}
	return result, nil
}

// Dimensions delegates to the wrapped engine.
func (r *RetryingEngine) Dimensions() int { return r.inner.Dimensions() }

// Name delegates to the wrapped engine, tagging it as retry-wrapped.
func (r *RetryingEngine) Name() string { return r.inner.Name() + "+retry" }
