package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"book-reader/internal/models"
)

func hit(book string, pos int, dist float64, text string) models.SearchHit {
	return models.SearchHit{
		Record:   models.EmbeddingRecord{ID: models.RecordID(book, pos), Chunk: models.Chunk{BookID: book, Position: pos, Text: text}},
		Distance: dist,
	}
}

type spanReader struct {
	calls   int
	context string
	find    string
	conf    float64
	err     error
}

func (r *spanReader) Extract(_ context.Context, _, text string) (Span, error) {
	r.calls++
	r.context = text
	if r.err != nil {
		return Span{}, r.err
	}
	i := strings.Index(text, r.find)
	if r.find == "" || i < 0 {
		return Span{}, nil
	}
	return Span{Start: i, End: i + len(r.find), Confidence: r.conf}, nil
}

func TestAnswer_CitesChunkOfSpan(t *testing.T) {
	hits := []models.SearchHit{
		hit("a.txt", 0, 0.1, "Rivers of Europe."),
		hit("b.txt", 3, 0.2, "The capital of France is Paris."),
	}
	reader := &spanReader{find: "Paris", conf: 0.9}
	e := NewEngine(reader, 0.2, 4000)

	ans, err := e.Answer(context.Background(), "  What is the capital of France? ", hits)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if reader.calls != 1 {
		t.Fatalf("reader called %d times", reader.calls)
	}
	if reader.context != "Rivers of Europe.\n---\nThe capital of France is Paris." {
		t.Fatalf("context = %q", reader.context)
	}
	if ans.Text != "Paris" || ans.Confidence != 0.9 {
		t.Fatalf("answer = %+v", ans)
	}
	if ans.Citation.Chunk.BookID != "b.txt" || ans.Citation.Chunk.Position != 3 || ans.Citation.Distance != 0.2 {
		t.Fatalf("citation = %+v", ans.Citation)
	}
	if got := ans.Citation.Chunk.Text[ans.Citation.Start:ans.Citation.End]; got != "Paris" {
		t.Fatalf("citation offsets select %q", got)
	}
	if len(ans.Candidates) != 2 || ans.Candidates[0].Chunk.BookID != "a.txt" {
		t.Fatalf("candidates = %+v", ans.Candidates)
	}
	if ans.Question != "What is the capital of France?" {
		t.Fatalf("question = %q", ans.Question)
	}
}

func TestAnswer_Errors(t *testing.T) {
	hits := []models.SearchHit{hit("a.txt", 0, 0.1, "The capital of France is Paris.")}
	tests := []struct {
		name     string
		question string
		hits     []models.SearchHit
		reader   *spanReader
		want     error
	}{
		{"empty question", "  ", hits, &spanReader{find: "Paris", conf: 1}, models.ErrInvalidQuery},
		{"no hits", "capital?", nil, &spanReader{find: "Paris", conf: 1}, models.ErrNoAnswerFound},
		{"no span", "capital?", hits, &spanReader{}, models.ErrNoAnswerFound},
		{"low confidence", "capital?", hits, &spanReader{find: "Paris", conf: 0.1}, models.ErrNoAnswerFound},
		{"blank span", "capital?", hits, &spanReader{find: " ", conf: 1}, models.ErrNoAnswerFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.reader, 0.2, 4000).Answer(context.Background(), tt.question, tt.hits)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	failing := &spanReader{err: errors.New("model crashed")}
	if _, err := NewEngine(failing, 0.2, 4000).Answer(context.Background(), "q?", hits); err == nil {
		t.Fatal("reader error should propagate")
	}
}

func TestBuildContext_Limit(t *testing.T) {
	hits := []models.SearchHit{
		hit("a", 0, 0.1, "0123456789"),
		hit("a", 1, 0.2, "abcdefghijklmnop"),
		hit("a", 2, 0.3, "xyz"),
	}
	text, parts := buildContext(hits, 20)
	if text != "0123456789\n---\nxyz" {
		t.Fatalf("context = %q", text)
	}
	if len(parts) != 2 || parts[1].hit.Record.Chunk.Position != 2 || text[parts[1].start:parts[1].end] != "xyz" {
		t.Fatalf("parts = %+v", parts)
	}

	text, parts = buildContext(hits[:1], 4)
	if text != "0123" || len(parts) != 1 {
		t.Fatalf("truncated context = %q", text)
	}
}

func TestAnswer_WithLexicalReader(t *testing.T) {
	hits := []models.SearchHit{
		hit("geo.txt", 0, 0.05, "The capital of France is Paris. The Seine flows through it."),
		hit("geo.txt", 1, 0.4, "Berlin is the capital of Germany."),
	}
	ans, err := NewEngine(NewLexicalReader(), 0.2, 4000).Answer(context.Background(), "What is the capital of France?", hits)
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if ans.Text != "Paris" {
		t.Fatalf("answer = %q", ans.Text)
	}
	if ans.Confidence < 0.99 {
		t.Fatalf("confidence = %v", ans.Confidence)
	}
	if ans.Citation.Chunk.Position != 0 {
		t.Fatalf("cited chunk %d", ans.Citation.Chunk.Position)
	}
}
