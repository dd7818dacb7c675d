package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"book-reader/internal/config"
	"book-reader/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

var thinkTag = regexp.MustCompile(models.ThinkTag)

// Client holds a chat model created once per process.
type Client struct {
	model llms.Model
	name  string
}

// New creates the chat model named by cfg.Provider, ollama or openai.
func New(cfg *config.LLMConfig) (*Client, error) {
	log.Debug().Interface("llmConfig", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Creating llm client")

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "ollama":
		model, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(httpClient),
		)
	case "openai":
		key := strings.TrimPrefix(cfg.APIKey(), "Bearer ")
		if key == "" {
			return nil, errors.New("openai llm: missing API key")
		}
		opts := []openai.Option{
			openai.WithToken(key),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(httpClient),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("error initializing llm: %v", err)
	}
	return &Client{model: model, name: cfg.Provider + "/" + cfg.Model}, nil
}

// call llm
func (c *Client) GenerateContent(ctx context.Context, messages []llms.MessageContent) (*llms.ContentResponse, error) {
	return c.model.GenerateContent(ctx, messages, llms.WithTemperature(0))
}

// Complete sends prompt as a single human message and returns the reply with
// any <think> blocks removed.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	msgContent := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
	start := time.Now()
	res, err := c.GenerateContent(ctx, msgContent)
	if err != nil {
		return "", fmt.Errorf("%s: %v", c.name, err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response", c.name)
	}
	log.Debug().Str("model", c.name).Dur("took", time.Since(start)).Msg("Generated content")
	return StripThinking(res.Choices[0].Content), nil
}

// StripThinking removes reasoning blocks some models emit before the answer.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkTag.ReplaceAllString(s, ""))
}
