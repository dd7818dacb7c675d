package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"book-reader/internal/models"
)

// Unit selects what a window is measured in.
type Unit string

const (
	UnitChars Unit = "chars"
	UnitWords Unit = "words"
)

// Chunker splits text into fixed-size windows where consecutive windows
// share exactly Overlap units.
type Chunker struct {
	Size    int
	Overlap int
	Unit    Unit
}

func New(size, overlap int, unit string) (*Chunker, error) {
	u := Unit(unit)
	if u == "" {
		u = UnitChars
	}
	if u != UnitChars && u != UnitWords {
		return nil, fmt.Errorf("%w: unknown unit %q", models.ErrInvalidChunking, unit)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", models.ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", models.ErrInvalidChunking, size, overlap)
	}
	return &Chunker{Size: size, Overlap: overlap, Unit: u}, nil
}

// Split returns the chunks of text in order. Start and End of each chunk are
// rune offsets into text.
func (c *Chunker) Split(bookID, text string) []models.Chunk {
	if c.Unit == UnitWords {
		return c.splitWords(bookID, text)
	}
	return c.splitChars(bookID, text)
}

func (c *Chunker) splitChars(bookID, text string) []models.Chunk {
	runes := []rune(text)
	var chunks []models.Chunk
	for _, w := range c.windows(len(runes)) {
		chunks = append(chunks, models.Chunk{
			BookID:   bookID,
			Position: len(chunks),
			Text:     string(runes[w[0]:w[1]]),
			Start:    w[0],
			End:      w[1],
		})
	}
	return chunks
}

func (c *Chunker) splitWords(bookID, text string) []models.Chunk {
	runes := []rune(text)
	spans := wordSpans(runes)
	var chunks []models.Chunk
	for _, w := range c.windows(len(spans)) {
		start, end := spans[w[0]][0], spans[w[1]-1][1]
		chunks = append(chunks, models.Chunk{
			BookID:   bookID,
			Position: len(chunks),
			Text:     string(runes[start:end]),
			Start:    start,
			End:      end,
		})
	}
	return chunks
}

// windows returns [start, end) unit ranges covering n units.
// Only the last window may be shorter than Size.
func (c *Chunker) windows(n int) [][2]int {
	if n == 0 {
		return nil
	}
	step := c.Size - c.Overlap
	var out [][2]int
	for start := 0; ; start += step {
		end := min(start+c.Size, n)
		out = append(out, [2]int{start, end})
		if end == n {
			break
		}
	}
	return out
}

func wordSpans(runes []rune) [][2]int {
	var spans [][2]int
	start := -1
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, [2]int{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, [2]int{start, len(runes)})
	}
	return spans
}

// Reassemble undoes Split by dropping the overlapping prefix of every chunk
// after the first. In words mode the words are joined by single spaces.
func (c *Chunker) Reassemble(chunks []models.Chunk) string {
	var sb strings.Builder
	for i, chunk := range chunks {
		if c.Unit == UnitWords {
			words := strings.Fields(chunk.Text)
			if i > 0 {
				words = words[min(c.Overlap, len(words)):]
			}
			for _, w := range words {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(w)
			}
			continue
		}
		runes := []rune(chunk.Text)
		if i > 0 {
			runes = runes[min(c.Overlap, len(runes)):]
		}
		sb.WriteString(string(runes))
	}
	return sb.String()
}
