package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"book-reader/internal/models"
)

// Completer sends a prompt to a language model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMReader asks a language model to copy the answer span out of the
// context. Spans that are not literal substrings of the context get zero
// confidence.
type LLMReader struct {
	llm Completer
}

func NewLLMReader(llm Completer) *LLMReader {
	return &LLMReader{llm: llm}
}

type llmReply struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

func (r *LLMReader) Extract(ctx context.Context, question, text string) (Span, error) {
	prompt := fmt.Sprintf(models.ExtractPromptTemplate, text, question)
	out, err := r.llm.Complete(ctx, prompt)
	if err != nil {
		return Span{}, err
	}

	reply, err := parseReply(out)
	if err != nil {
		log.Warn().Err(err).Str("reply", out).Msg("Unparseable reader reply")
		return Span{}, nil
	}
	answer := strings.TrimSpace(reply.Answer)
	if answer == "" {
		return Span{}, nil
	}

	start := strings.Index(text, answer)
	if start < 0 {
		// lowercasing keeps byte offsets only when lengths agree
		lower, lowerAnswer := strings.ToLower(text), strings.ToLower(answer)
		if len(lower) == len(text) && len(lowerAnswer) == len(answer) {
			start = strings.Index(lower, lowerAnswer)
		}
	}
	if start < 0 {
		log.Debug().Str("answer", answer).Msg("Reader answer is not a span of the context")
		return Span{}, nil
	}
	return Span{Start: start, End: start + len(answer), Confidence: clamp(reply.Confidence)}, nil
}

// parseReply reads the first JSON object in out.
func parseReply(out string) (llmReply, error) {
	var reply llmReply
	begin, end := strings.Index(out, "{"), strings.LastIndex(out, "}")
	if begin < 0 || end < begin {
		return reply, fmt.Errorf("no JSON object in reply")
	}
	if err := json.Unmarshal([]byte(out[begin:end+1]), &reply); err != nil {
		return reply, err
	}
	return reply, nil
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
