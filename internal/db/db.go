package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"book-reader/internal/config"
	"book-reader/internal/models"
)

// BookChunk is one embedded chunk. The vector column has no fixed dimension so
// any embedding model can be used; a store holds a single dimension.
type BookChunk struct {
	bun.BaseModel `bun:"table:book_chunks,alias:bc"`
	ID            string          `bun:"id,pk"`
	BookID        string          `bun:"book_id,notnull"`
	Position      int             `bun:"position,notnull"`
	Content       string          `bun:"content,notnull"`
	StartOffset   int             `bun:"start_offset,notnull"`
	EndOffset     int             `bun:"end_offset,notnull"`
	Seq           int64           `bun:"seq,notnull,unique"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
	Distance      float64         `bun:"distance,scanonly"`
}

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`
	ID            string    `bun:"id,pk"`
	Title         string    `bun:"title,notnull"`
	Path          string    `bun:"path"`
	Format        string    `bun:"format,notnull"`
	Checksum      string    `bun:"checksum"`
	Chunks        int       `bun:"chunks,notnull"`
	AddedAt       time.Time `bun:"added_at,notnull"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver, pgdriver or pq.
func ConnectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is required")
	}
	switch cfg.Driver {
	case "pgdriver", "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	case "pq", "postgres":
		return sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create extension vector: %v", err)
	}
	for _, model := range []interface{}{(*Book)(nil), (*BookChunk)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	_, err := db.NewCreateIndex().
		Model((*BookChunk)(nil)).
		Index("book_chunks_book_id_idx").
		IfNotExists().
		Column("book_id").
		Exec(ctx)
	return err
}

// StoreBook inserts the book row and all of its chunks in one transaction.
func StoreBook(ctx context.Context, db *bun.DB, book *Book, chunks []BookChunk) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(book).Exec(ctx); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&chunks).Exec(ctx)
		return err
	})
}

// SearchChunks returns the limit chunks nearest to queryEmbedding by cosine
// distance, ties broken by insertion sequence.
func SearchChunks(ctx context.Context, db *bun.DB, queryEmbedding []float32, limit int) ([]BookChunk, error) {
	var chunks []BookChunk
	err := db.NewSelect().
		Model(&chunks).
		Column("id", "book_id", "position", "content", "start_offset", "end_offset", "seq", "embedding").
		ColumnExpr("bc.embedding <=> ? AS distance", pgvector.NewVector(queryEmbedding)).
		OrderExpr("distance ASC, bc.seq ASC").
		Limit(limit).
		Scan(ctx)
	return chunks, err
}

func CountChunks(ctx context.Context, db *bun.DB) (int, error) {
	return db.NewSelect().Model((*BookChunk)(nil)).Count(ctx)
}

func MaxSeq(ctx context.Context, db *bun.DB) (int64, error) {
	var seq int64
	err := db.NewSelect().Model((*BookChunk)(nil)).ColumnExpr("COALESCE(MAX(seq), 0)").Scan(ctx, &seq)
	return seq, err
}

// Dimension returns the dimension of the stored vectors, 0 when empty.
func Dimension(ctx context.Context, db *bun.DB) (int, error) {
	var dim int
	err := db.NewSelect().Model((*BookChunk)(nil)).ColumnExpr("vector_dims(embedding)").Limit(1).Scan(ctx, &dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return dim, err
}

func ListBooks(ctx context.Context, db *bun.DB) ([]Book, error) {
	var books []Book
	err := db.NewSelect().Model(&books).Order("added_at ASC", "id ASC").Scan(ctx)
	return books, err
}

// GetBook returns nil when no book has the given id.
func GetBook(ctx context.Context, db *bun.DB, id string) (*Book, error) {
	book := new(Book)
	err := db.NewSelect().Model(book).Where("b.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return book, nil
}

// DeleteBook removes a book and its chunks and reports whether it existed.
func DeleteBook(ctx context.Context, db *bun.DB, id string) (bool, error) {
	var found bool
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*BookChunk)(nil)).Where("book_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*Book)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		found = n > 0
		return err
	})
	return found, err
}

func TruncateAll(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*BookChunk)(nil), (*Book)(nil)} {
		if _, err := db.NewTruncateTable().Model(model).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// FromRecord converts an embedding record into a table row.
func FromRecord(r models.EmbeddingRecord) BookChunk {
	return BookChunk{
		ID:          r.ID,
		BookID:      r.Chunk.BookID,
		Position:    r.Chunk.Position,
		Content:     r.Chunk.Text,
		StartOffset: r.Chunk.Start,
		EndOffset:   r.Chunk.End,
		Seq:         r.Seq,
		Embedding:   pgvector.NewVector(r.Vector),
	}
}

// ToHit converts a searched row into a search hit.
func (c BookChunk) ToHit() models.SearchHit {
	return models.SearchHit{
		Record: models.EmbeddingRecord{
			ID: c.ID,
			Chunk: models.Chunk{
				BookID:   c.BookID,
				Position: c.Position,
				Text:     c.Content,
				Start:    c.StartOffset,
				End:      c.EndOffset,
			},
			Vector: c.Embedding.Slice(),
			Seq:    c.Seq,
		},
		Distance: c.Distance,
	}
}

func FromBook(b models.Book) *Book {
	return &Book{
		ID:       b.ID,
		Title:    b.Title,
		Path:     b.Path,
		Format:   string(b.Format),
		Checksum: b.Checksum,
		Chunks:   b.Chunks,
		AddedAt:  b.AddedAt,
	}
}

func (b Book) ToModel() models.Book {
	return models.Book{
		ID:       b.ID,
		Title:    b.Title,
		Path:     b.Path,
		Format:   models.Format(b.Format),
		Checksum: b.Checksum,
		Chunks:   b.Chunks,
		AddedAt:  b.AddedAt,
	}
}
