package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/tmc/langchaingo/embeddings"

	"imageselector/internal/logger"
)

const (
	defaultBreakerMaxFailures uint32 = 3
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

type BreakerSettings struct {
	Name string
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a probe is let through.
	Timeout time.Duration
	// Interval clears failure counts while closed.
	Interval time.Duration
}

// Breaker fails fast while the embedding backend keeps erroring, so requests
// drop to word-overlap ranking without waiting on a dead upstream.
type Breaker struct {
	inner embeddings.EmbedderClient
	cb    *gobreaker.CircuitBreaker[[][]float32]
	log   zerolog.Logger
}

func NewBreaker(inner embeddings.EmbedderClient, s BreakerSettings) *Breaker {
	if s.MaxFailures == 0 {
		s.MaxFailures = defaultBreakerMaxFailures
	}
	if s.Timeout == 0 {
		s.Timeout = defaultBreakerTimeout
	}
	if s.Interval == 0 {
		s.Interval = defaultBreakerInterval
	}

	b := &Breaker{inner: inner, log: logger.New("embedding")}
	b.cb = gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        "embedding:" + s.Name,
		MaxRequests: 1,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
		// a cancelled request says nothing about the backend
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return b
}

// CreateEmbedding implements embeddings.EmbedderClient.
func (b *Breaker) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := b.cb.Execute(func() ([][]float32, error) {
		vecs, err := b.inner.CreateEmbedding(ctx, texts)
		// backends are not required to keep the context error in the chain
		if err != nil && errors.Is(ctx.Err(), context.Canceled) && !errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %w", err, context.Canceled)
		}
		return vecs, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit open: %v", ErrEmbeddingFailed, err)
	}
	return vecs, err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
