package vectorstore

import (
	"context"
	"fmt"

	"book-reader/internal/config"
	"book-reader/internal/models"
)

// Index is a similarity index over embedding records together with the
// catalog of the books they belong to.
type Index interface {
	Insert(ctx context.Context, book models.Book, records []models.EmbeddingRecord) error
	// Search returns up to topK hits ordered by ascending distance, ties by Seq.
	Search(ctx context.Context, vector []float32, topK int) ([]models.SearchHit, error)
	Count(ctx context.Context) (int, error)
	// Dimension is the vector dimension of the stored records, 0 when empty.
	Dimension(ctx context.Context) (int, error)
	MaxSeq(ctx context.Context) (int64, error)
	// Book returns nil when the id is unknown.
	Book(ctx context.Context, id string) (*models.Book, error)
	Books(ctx context.Context) ([]models.Book, error)
	DeleteBook(ctx context.Context, id string) (bool, error)
	Reset(ctx context.Context) error
	Close() error
}

// Backuper is implemented by indexes that can be saved to and restored from
// a single encrypted file.
type Backuper interface {
	Backup(path string) error
	Restore(path string) error
}

// OpenIndex opens the backend selected by cfg.VectorDB.Backend.
func OpenIndex(ctx context.Context, cfg *config.Config) (Index, error) {
	switch cfg.VectorDB.Backend {
	case "chromem", "":
		return NewChromemIndex(cfg.VectorDB)
	case "postgres":
		return NewPostgresIndex(ctx, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorDB.Backend)
	}
}
