package models

import (
	"strconv"
	"time"
)

// Format is a supported document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatTXT  Format = "txt"
	FormatDOCX Format = "docx"
)

// Document is the normalized text of a loaded file.
type Document struct {
	Path   string
	Format Format
	Text   string
}

// Book is an ingested document as recorded in the store catalog.
type Book struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Path     string    `json:"path" yaml:"path"`
	Format   Format    `json:"format" yaml:"format"`
	Checksum string    `json:"checksum" yaml:"checksum"`
	Chunks   int       `json:"chunks" yaml:"chunks"`
	AddedAt  time.Time `json:"added_at" yaml:"added_at"`
}

// Chunk represents a window of a book's normalized text.
// Start and End are rune offsets into that text.
type Chunk struct {
	BookID   string `json:"book_id"`
	Position int    `json:"position"`
	Text     string `json:"text"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
}

// EmbeddingRecord is one chunk together with its vector.
type EmbeddingRecord struct {
	ID     string
	Chunk  Chunk
	Vector []float32
	Seq    int64
}

// SearchHit is a record returned by a similarity search.
// Distance is cosine distance, smaller is nearer.
type SearchHit struct {
	Record   EmbeddingRecord
	Distance float64
}

// Query is a question with the number of chunks to retrieve.
type Query struct {
	Question string
	TopK     int
}

// Answer is an extracted span with its supporting chunk.
type Answer struct {
	Question   string      `json:"question"`
	Text       string      `json:"answer"`
	Confidence float64     `json:"confidence"`
	Citation   Citation    `json:"citation"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Citation points to the chunk an answer was extracted from.
// Start and End are byte offsets of the answer inside the chunk text.
type Citation struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
	Start    int     `json:"start"`
	End      int     `json:"end"`
}

// Candidate is a retrieved context shown alongside an answer.
type Candidate struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// RecordID returns the store-wide id of a chunk.
func RecordID(bookID string, position int) string {
	return bookID + "#" + strconv.Itoa(position)
}
