package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/embeddings"

	"book-reader/internal/models"
)

// breakerEmbedder fails fast once the wrapped provider keeps failing.
type breakerEmbedder struct {
	next    embeddings.Embedder
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker wraps e in a circuit breaker. Every error it returns wraps
// models.ErrEmbedding.
func WithBreaker(name string, e embeddings.Embedder) embeddings.Embedder {
	return &breakerEmbedder{
		next: e,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Embedding circuit breaker changed state")
			},
		}),
	}
}

func (b *breakerEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.EmbedDocuments(ctx, texts)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return res.([][]float32), nil
}

func (b *breakerEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, b.wrap(err)
	}
	return res.([]float32), nil
}

func (b *breakerEmbedder) Close() error {
	return Close(b.next)
}

func (b *breakerEmbedder) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s provider unavailable: %v", models.ErrEmbedding, b.breaker.Name(), err)
	}
	if errors.Is(err, models.ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrEmbedding, err)
}
