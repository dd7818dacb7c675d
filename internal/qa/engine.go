package qa

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"book-reader/internal/models"
)

// Span is a byte range of the reader context with the reader's confidence.
type Span struct {
	Start      int
	End        int
	Confidence float64
}

// Reader extracts an answer span for question from context.
type Reader interface {
	Extract(ctx context.Context, question, context string) (Span, error)
}

// Engine turns retrieved chunks into an extractive answer.
type Engine struct {
	reader          Reader
	threshold       float64
	maxContextChars int
}

func NewEngine(reader Reader, threshold float64, maxContextChars int) *Engine {
	return &Engine{reader: reader, threshold: threshold, maxContextChars: maxContextChars}
}

// part is a chunk's byte range inside the assembled context.
type part struct {
	hit        models.SearchHit
	start, end int
}

// buildContext joins hit texts nearest first with the context separator.
// Chunks that would exceed maxChars runes are dropped, except the first,
// which is truncated.
func buildContext(hits []models.SearchHit, maxChars int) (string, []part) {
	var sb strings.Builder
	var parts []part
	used := 0
	sepLen := utf8.RuneCountInString(models.ContextSeparator)
	for _, h := range hits {
		text := h.Record.Chunk.Text
		n := utf8.RuneCountInString(text)
		if len(parts) > 0 {
			if maxChars > 0 && used+sepLen+n > maxChars {
				continue
			}
			sb.WriteString(models.ContextSeparator)
			used += sepLen
		} else if maxChars > 0 && n > maxChars {
			text = string([]rune(text)[:maxChars])
			n = maxChars
		}
		start := sb.Len()
		sb.WriteString(text)
		used += n
		parts = append(parts, part{hit: h, start: start, end: sb.Len()})
	}
	return sb.String(), parts
}

// Answer runs the reader once over the retrieved context and returns the span
// with its citation. A missing or low-confidence span is ErrNoAnswerFound.
func (e *Engine) Answer(ctx context.Context, question string, hits []models.SearchHit) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", models.ErrInvalidQuery)
	}
	if len(hits) == 0 {
		return nil, fmt.Errorf("%w: no context retrieved", models.ErrNoAnswerFound)
	}

	text, parts := buildContext(hits, e.maxContextChars)
	span, err := e.reader.Extract(ctx, question, text)
	if err != nil {
		return nil, fmt.Errorf("reader: %v", err)
	}
	log.Debug().Int("start", span.Start).Int("end", span.End).Float64("confidence", span.Confidence).Msg("Reader span")

	if span.Start < 0 || span.End > len(text) || span.Start >= span.End {
		return nil, fmt.Errorf("%w: reader found no span", models.ErrNoAnswerFound)
	}
	if span.Confidence < e.threshold {
		return nil, fmt.Errorf("%w: confidence %.2f below threshold %.2f", models.ErrNoAnswerFound, span.Confidence, e.threshold)
	}

	var cited *part
	for i := range parts {
		if span.Start >= parts[i].start && span.Start < parts[i].end {
			cited = &parts[i]
			break
		}
	}
	if cited == nil {
		return nil, fmt.Errorf("%w: span lies in a separator", models.ErrNoAnswerFound)
	}
	start, end := span.Start, min(span.End, cited.end)
	for start < end {
		r, size := utf8.DecodeRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	for end > start {
		r, size := utf8.DecodeLastRuneInString(text[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	if start == end {
		return nil, fmt.Errorf("%w: blank span", models.ErrNoAnswerFound)
	}

	answer := &models.Answer{
		Question:   question,
		Text:       text[start:end],
		Confidence: span.Confidence,
		Citation: models.Citation{
			Chunk:    cited.hit.Record.Chunk,
			Distance: cited.hit.Distance,
			Start:    start - cited.start,
			End:      end - cited.start,
		},
	}
	for _, h := range hits {
		answer.Candidates = append(answer.Candidates, models.Candidate{Chunk: h.Record.Chunk, Distance: h.Distance})
	}
	return answer, nil
}
