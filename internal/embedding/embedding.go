// Package embedding turns text into vectors through a hosted model so that
// article text and image metadata can be compared by cosine similarity.
//
// Backends implement langchaingo's embeddings.EmbedderClient. New wraps the
// configured backend in a circuit breaker and then in a langchaingo Embedder,
// which handles batching and newline stripping.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"

	"imageselector/internal/config"
)

const batchSize = 16

var ErrEmbeddingFailed = errors.New("embedding failed")

// Backend is the configured embedder together with the breaker guarding it.
type Backend struct {
	embeddings.Embedder
	breaker *Breaker
}

// CircuitState is the breaker state: closed, half-open or open.
func (b *Backend) CircuitState() string {
	return b.breaker.State().String()
}

// New builds the embedder selected by cfg. It returns nil when no provider is
// configured, in which case callers rank by word overlap only.
func New(ctx context.Context, cfg *config.Config) (*Backend, error) {
	httpClient := &http.Client{Timeout: cfg.EmbeddingTimeout}

	var (
		client embeddings.EmbedderClient
		err    error
	)
	switch cfg.EmbeddingProvider() {
	case config.ProviderGemini:
		client, err = NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, WithGeminiHTTPClient(httpClient))
	case config.ProviderHuggingFace:
		client = NewHuggingFaceClient(cfg.HuggingFaceKey, cfg.HuggingFaceModel,
			WithHuggingFaceBaseURL(cfg.HuggingFaceURL),
			WithHuggingFaceClient(httpClient),
		)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	breaker := NewBreaker(client, BreakerSettings{Name: cfg.EmbeddingProvider()})
	e, err := Wrap(breaker)
	if err != nil {
		return nil, err
	}
	return &Backend{Embedder: e, breaker: breaker}, nil
}

// Wrap turns a backend client into a langchaingo Embedder.
func Wrap(client embeddings.EmbedderClient) (embeddings.Embedder, error) {
	e, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(batchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("new embedder: %w", err)
	}
	return e, nil
}
