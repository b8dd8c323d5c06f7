package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/rs/zerolog/log"
)

// NewEmbedder builds the OpenAI embedder used by every index backend.
func NewEmbedder(ctx context.Context, apiKey, model, baseURL string) (embedding.Embedder, error) {
	embedder, err := openaiembed.NewEmbedder(ctx, &openaiembed.EmbeddingConfig{
		APIKey:  apiKey,
		Model:   model,
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &retryEmbedder{inner: embedder}, nil
}

// retryEmbedder adds exponential back-off around transient provider errors.
type retryEmbedder struct {
	inner embedding.Embedder
}

func (r *retryEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 60 * time.Second

	var vectors [][]float64
	operation := func() error {
		start := time.Now()
		out, err := r.inner.EmbedStrings(ctx, texts, opts...)
		if err != nil {
			log.Warn().Err(err).Msg("embedding call failed, retrying")
			return err
		}
		log.Debug().Dur("latency", time.Since(start)).Int("texts", len(texts)).Msg("embedded")
		vectors = out
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("embedding failed after retries: %w", err)
	}
	return vectors, nil
}
