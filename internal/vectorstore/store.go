package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"book-reader/internal/embedding"
	"book-reader/internal/models"
)

// Store embeds chunks with a single embedding model and keeps them in an
// Index. Writes are serialized; searches may run concurrently.
type Store struct {
	mu       sync.RWMutex
	index    Index
	embedder embeddings.Embedder
}

func New(index Index, embedder embeddings.Embedder) *Store {
	return &Store{index: index, embedder: embedder}
}

// Add embeds chunks and stores them under book. The returned book carries the
// chunk count and insertion time.
func (s *Store) Add(ctx context.Context, book models.Book, chunks []models.Chunk) (models.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.index.Book(ctx, book.ID)
	if err != nil {
		return book, err
	}
	if existing != nil {
		return book, fmt.Errorf("%w: %s", models.ErrDuplicateBook, book.ID)
	}
	book, records, err := s.prepare(ctx, book, chunks)
	if err != nil {
		return book, err
	}
	if err := s.index.Insert(ctx, book, records); err != nil {
		return book, fmt.Errorf("insert %s: %v", book.ID, err)
	}
	return book, nil
}

// Replace stores book in place of an indexed book with the same id, or adds
// it when there is none. The previous version is only removed once the new
// chunks are embedded, so a failed embedding leaves it untouched.
func (s *Store) Replace(ctx context.Context, book models.Book, chunks []models.Chunk) (models.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.index.Book(ctx, book.ID)
	if err != nil {
		return book, false, err
	}
	book, records, err := s.prepare(ctx, book, chunks)
	if err != nil {
		return book, false, err
	}
	replaced := false
	if existing != nil {
		if replaced, err = s.index.DeleteBook(ctx, book.ID); err != nil {
			return book, false, err
		}
	}
	if err := s.index.Insert(ctx, book, records); err != nil {
		return book, replaced, fmt.Errorf("insert %s: %v", book.ID, err)
	}
	return book, replaced, nil
}

// prepare embeds chunks and builds their records. Nothing is written.
func (s *Store) prepare(ctx context.Context, book models.Book, chunks []models.Chunk) (models.Book, []models.EmbeddingRecord, error) {
	if len(chunks) == 0 {
		return book, nil, fmt.Errorf("%w: book %s has no chunks", models.ErrRead, book.ID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	start := time.Now()
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return book, nil, embeddingError(err)
	}
	if len(vectors) != len(chunks) {
		return book, nil, fmt.Errorf("%w: got %d vectors for %d chunks", models.ErrEmbedding, len(vectors), len(chunks))
	}
	dim, err := s.index.Dimension(ctx)
	if err != nil {
		return book, nil, err
	}
	if dim == 0 {
		dim = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return book, nil, fmt.Errorf("%w: empty vector for chunk %d", models.ErrEmbedding, i)
		}
		if len(v) != dim {
			return book, nil, fmt.Errorf("%w: chunk %d has dimension %d, store uses %d", models.ErrEmbedding, i, len(v), dim)
		}
	}
	log.Debug().Str("book", book.ID).Int("chunks", len(chunks)).Dur("took", time.Since(start)).Msg("Embedded chunks")

	seq, err := s.index.MaxSeq(ctx)
	if err != nil {
		return book, nil, err
	}
	records := make([]models.EmbeddingRecord, len(chunks))
	for i, c := range chunks {
		seq++
		records[i] = models.EmbeddingRecord{
			ID:     models.RecordID(book.ID, c.Position),
			Chunk:  c,
			Vector: vectors[i],
			Seq:    seq,
		}
	}

	book.Chunks = len(chunks)
	if book.AddedAt.IsZero() {
		book.AddedAt = time.Now().UTC()
	}
	return book, records, nil
}

// Search returns the min(topK, Count) records nearest to queryText.
func (s *Store) Search(ctx context.Context, queryText string, topK int) ([]models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, err := s.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, models.ErrEmptyIndex
	}
	if topK < 1 {
		topK = 1
	}

	vector, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil {
		return nil, embeddingError(err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", models.ErrEmbedding)
	}
	dim, err := s.index.Dimension(ctx)
	if err != nil {
		return nil, err
	}
	if dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has dimension %d, store uses %d", models.ErrEmbedding, len(vector), dim)
	}

	hits, err := s.index.Search(ctx, vector, min(topK, count))
	if err != nil {
		return nil, fmt.Errorf("search: %v", err)
	}
	return hits, nil
}

func (s *Store) Books(ctx context.Context) ([]models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Books(ctx)
}

func (s *Store) Book(ctx context.Context, id string) (*models.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Book(ctx, id)
}

func (s *Store) RemoveBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := s.index.DeleteBook(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", models.ErrBookNotFound, id)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Reset(ctx)
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Count(ctx)
}

// Backup saves the index to path when the backend supports it.
func (s *Store) Backup(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.index.(Backuper)
	if !ok {
		return errors.New("vector backend does not support backup")
	}
	return b.Backup(path)
}

func (s *Store) Restore(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.index.(Backuper)
	if !ok {
		return errors.New("vector backend does not support restore")
	}
	return b.Restore(path)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.index.Close(), embedding.Close(s.embedder))
}

func embeddingError(err error) error {
	if errors.Is(err, models.ErrEmbedding) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrEmbedding, err)
}
