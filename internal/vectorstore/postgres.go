package vectorstore

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"book-reader/internal/config"
	"book-reader/internal/db"
	"book-reader/internal/models"
)

// PostgresIndex stores vectors in PostgreSQL with the pgvector extension.
type PostgresIndex struct {
	db *bun.DB
}

func NewPostgresIndex(ctx context.Context, cfg config.DatabaseConfig) (*PostgresIndex, error) {
	sqldb, err := db.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	bunDB := db.NewDB(sqldb, cfg.Debug)
	if err := db.InitDB(ctx, bunDB); err != nil {
		bunDB.Close()
		return nil, fmt.Errorf("init database: %v", err)
	}
	return &PostgresIndex{db: bunDB}, nil
}

func (p *PostgresIndex) Insert(ctx context.Context, book models.Book, records []models.EmbeddingRecord) error {
	rows := make([]db.BookChunk, 0, len(records))
	for _, r := range records {
		rows = append(rows, db.FromRecord(r))
	}
	return db.StoreBook(ctx, p.db, db.FromBook(book), rows)
}

func (p *PostgresIndex) Search(ctx context.Context, vector []float32, topK int) ([]models.SearchHit, error) {
	rows, err := db.SearchChunks(ctx, p.db, vector, topK)
	if err != nil {
		return nil, err
	}
	hits := make([]models.SearchHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, r.ToHit())
	}
	return hits, nil
}

func (p *PostgresIndex) Count(ctx context.Context) (int, error) {
	return db.CountChunks(ctx, p.db)
}

func (p *PostgresIndex) Dimension(ctx context.Context) (int, error) {
	return db.Dimension(ctx, p.db)
}

func (p *PostgresIndex) MaxSeq(ctx context.Context) (int64, error) {
	return db.MaxSeq(ctx, p.db)
}

func (p *PostgresIndex) Book(ctx context.Context, id string) (*models.Book, error) {
	b, err := db.GetBook(ctx, p.db, id)
	if err != nil || b == nil {
		return nil, err
	}
	book := b.ToModel()
	return &book, nil
}

func (p *PostgresIndex) Books(ctx context.Context) ([]models.Book, error) {
	rows, err := db.ListBooks(ctx, p.db)
	if err != nil {
		return nil, err
	}
	books := make([]models.Book, 0, len(rows))
	for _, r := range rows {
		books = append(books, r.ToModel())
	}
	return books, nil
}

func (p *PostgresIndex) DeleteBook(ctx context.Context, id string) (bool, error) {
	return db.DeleteBook(ctx, p.db, id)
}

func (p *PostgresIndex) Reset(ctx context.Context) error {
	return db.TruncateAll(ctx, p.db)
}

func (p *PostgresIndex) Close() error {
	return p.db.Close()
}
