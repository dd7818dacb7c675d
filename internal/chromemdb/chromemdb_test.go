package chromemdb

import (
	"context"
	"path/filepath"
	"testing"

	"book-reader/internal/config"
	"book-reader/internal/models"
)

func record(book string, pos int, seq int64, vec ...float32) models.EmbeddingRecord {
	return models.EmbeddingRecord{
		ID:     models.RecordID(book, pos),
		Chunk:  models.Chunk{BookID: book, Position: pos, Text: book + " text", Start: pos * 10, End: pos*10 + 9},
		Vector: vec,
		Seq:    seq,
	}
}

func newMemoryManager(t *testing.T) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(config.VectorDBConfig{InMemory: true, Collection: "books", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("NewVectorDBManager failed: %v", err)
	}
	return m
}

func TestSearch_OrdersByDistanceThenSeq(t *testing.T) {
	ctx := context.Background()
	m := newMemoryManager(t)
	err := m.CreateDocs(ctx, []models.EmbeddingRecord{
		record("a.txt", 0, 1, 0, 1),
		record("a.txt", 1, 2, 1, 0),
		record("b.txt", 0, 3, 1, 0),
		record("b.txt", 1, 4, 1, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	if m.Count() != 4 {
		t.Fatalf("Count = %d", m.Count())
	}

	hits, err := m.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 4 {
		t.Fatalf("got %d hits, want all 4", len(hits))
	}
	wantIDs := []string{"a.txt#1", "b.txt#0", "b.txt#1", "a.txt#0"}
	for i, want := range wantIDs {
		if hits[i].Record.ID != want {
			t.Fatalf("hit %d = %s, want %s", i, hits[i].Record.ID, want)
		}
	}
	if hits[0].Distance > 1e-6 {
		t.Fatalf("exact match distance = %v", hits[0].Distance)
	}
	got := hits[1].Record.Chunk
	if got.BookID != "b.txt" || got.Position != 0 || got.Start != 0 || got.End != 9 || got.Text != "b.txt text" {
		t.Fatalf("chunk round trip = %+v", got)
	}
}

func TestSearch_TiesAtCutoffKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	m := newMemoryManager(t)
	var records []models.EmbeddingRecord
	for i := 0; i < 40; i++ {
		records = append(records, record("b.txt", i, int64(i+1), 1, 1))
	}
	records = append(records, record("c.txt", 0, 41, 1, 0))
	if err := m.CreateDocs(ctx, records); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		query   []float32
		n       int
		wantSeq []int64
	}{
		{[]float32{1, 1}, 1, []int64{1}},
		{[]float32{1, 1}, 3, []int64{1, 2, 3}},
		{[]float32{1, 0}, 2, []int64{41, 1}},
		{[]float32{1, 0}, 4, []int64{41, 1, 2, 3}},
	}
	for _, tt := range tests {
		for run := 0; run < 20; run++ {
			hits, err := m.Search(ctx, tt.query, tt.n)
			if err != nil {
				t.Fatal(err)
			}
			if len(hits) != len(tt.wantSeq) {
				t.Fatalf("query %v n=%d: got %d hits", tt.query, tt.n, len(hits))
			}
			for i, want := range tt.wantSeq {
				if hits[i].Record.Seq != want {
					t.Fatalf("query %v n=%d run %d: hit %d has seq %d, want %d", tt.query, tt.n, run, i, hits[i].Record.Seq, want)
				}
			}
		}
	}
}

func TestDeleteBookAndReset(t *testing.T) {
	ctx := context.Background()
	m := newMemoryManager(t)
	if err := m.CreateDocs(ctx, []models.EmbeddingRecord{
		record("a.txt", 0, 1, 1, 0),
		record("b.txt", 0, 2, 0, 1),
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteBook(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	hits, err := m.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Record.Chunk.BookID != "b.txt" {
		t.Fatalf("hits after delete = %+v", hits)
	}
	if err := m.Reset(); err != nil {
		t.Fatal(err)
	}
	if m.Count() != 0 {
		t.Fatalf("Count after reset = %d", m.Count())
	}
	hits, err = m.Search(ctx, []float32{1, 0}, 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("Search on empty collection = %v, %v", hits, err)
	}
}

func TestPersistentReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.VectorDBConfig{Path: filepath.Join(t.TempDir(), "db"), Collection: "books"}
	m, err := NewVectorDBManager(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.CreateDocs(ctx, []models.EmbeddingRecord{record("a.txt", 0, 1, 1, 0)}); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewVectorDBManager(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Count() != 1 {
		t.Fatalf("Count after reopen = %d", reopened.Count())
	}
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	key := "0123456789abcdef0123456789abcdef"
	dir := t.TempDir()
	src, err := NewVectorDBManager(config.VectorDBConfig{InMemory: true, Path: dir, Collection: "books", EncryptionKey: key})
	if err != nil {
		t.Fatal(err)
	}
	if err := src.CreateDocs(ctx, []models.EmbeddingRecord{record("a.txt", 0, 1, 1, 0), record("a.txt", 1, 2, 0, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := src.Export(""); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst, err := NewVectorDBManager(config.VectorDBConfig{InMemory: true, Path: dir, Collection: "books", EncryptionKey: key})
	if err != nil {
		t.Fatal(err)
	}
	if err := dst.Import(""); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if dst.Count() != 2 {
		t.Fatalf("Count after import = %d", dst.Count())
	}

	noKey, _ := NewVectorDBManager(config.VectorDBConfig{InMemory: true, Path: dir, Collection: "books"})
	if err := noKey.Export(""); err == nil {
		t.Fatal("Export without key should fail")
	}
}
