package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"book-reader/internal/config"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Resolve builds the embedding model named by cfg.Provider. When
// cfg.FallbackLocal is set, a remote provider must also answer one embedding
// request; if it cannot be built or does not answer, the local hashing
// embedder is returned instead.
func Resolve(ctx context.Context, cfg config.LLMConfig) (embeddings.Embedder, error) {
	var (
		embedder embeddings.Embedder
		err      error
	)
	switch cfg.Provider {
	case "local", "":
		return NewHashingEmbedder(cfg.Dimension), nil
	case "ollama":
		embedder, err = NewOllamaEmbedder(&cfg)
	case "openai":
		embedder, err = NewOpenAIEmbedder(&cfg)
	case "gemini":
		embedder, err = NewGeminiEmbedder(ctx, &cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err == nil && cfg.FallbackLocal {
		if err = ping(ctx, embedder); err != nil {
			Close(embedder)
		}
	}
	if err != nil {
		if cfg.FallbackLocal {
			log.Warn().Err(err).Str("provider", cfg.Provider).Msg("Embedding provider unavailable, using local embedder")
			return NewHashingEmbedder(cfg.Dimension), nil
		}
		return nil, err
	}

	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Resolved embedder")
	return WithBreaker(cfg.Provider, embedder), nil
}

// NewOpenAIEmbedder creates an embedder for an OpenAI compatible endpoint.
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	key := strings.TrimPrefix(cfg.APIKey(), "Bearer ")
	if key == "" {
		return nil, errors.New("openai embedder: missing API key")
	}
	opts := []openai.Option{
		openai.WithToken(key),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(httpClient(cfg)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing openai client: %v", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("error creating embedder: %v", err)
	}
	return embedder, nil
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	if cfg.Model == "" {
		return nil, errors.New("ollama embedder: model is required")
	}
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(httpClient(cfg)),
	)
	if err != nil {
		return nil, fmt.Errorf("error initializing ollama client: %v", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("error creating embedder: %v", err)
	}
	return embedder, nil
}

const pingTimeout = 10 * time.Second

// ping embeds a short text to check that the provider is reachable.
func ping(ctx context.Context, e embeddings.Embedder) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	v, err := e.EmbedQuery(ctx, "ping")
	if err != nil {
		return fmt.Errorf("embedding check failed: %v", err)
	}
	if len(v) == 0 {
		return errors.New("embedding check returned an empty vector")
	}
	return nil
}

// Close releases the resources held by e, if any.
func Close(e embeddings.Embedder) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func httpClient(cfg *config.LLMConfig) *http.Client {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
