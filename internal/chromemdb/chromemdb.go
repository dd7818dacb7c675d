package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"book-reader/internal/config"
	"book-reader/internal/models"
)

// VectorDBManager encapsulates the chromem-go database operations for a
// single collection of chunk embeddings.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	dbPath        string
	compress      bool
	encryptionKey string
}

// vectors are always computed by the caller
func noEmbedding(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromemdb: documents and queries must carry an embedding")
}

// NewVectorDBManager opens the database described by cfg and its collection.
func NewVectorDBManager(cfg config.VectorDBConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		name:          cfg.Collection,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
	}
	if _, err := m.getOrCreateCollection(); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) getOrCreateCollection() (*chromem.Collection, error) {
	c, err := m.db.GetOrCreateCollection(m.name, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}
	m.collection = c
	return c, nil
}

// Count returns the number of documents in the collection.
func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// CreateDocs adds embedding records as chromem documents.
func (m *VectorDBManager) CreateDocs(ctx context.Context, records []models.EmbeddingRecord) error {
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Chunk.Text,
			Embedding: r.Vector,
			Metadata: map[string]string{
				models.MetaBookID:   r.Chunk.BookID,
				models.MetaPosition: strconv.Itoa(r.Chunk.Position),
				models.MetaStart:    strconv.Itoa(r.Chunk.Start),
				models.MetaEnd:      strconv.Itoa(r.Chunk.End),
				models.MetaSeq:      strconv.FormatInt(r.Seq, 10),
			},
		})
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}
	return nil
}

// Search returns the n documents nearest to vector. Hits with equal distance
// are ordered by insertion sequence, including at the cut-off: chromem picks
// among tied documents arbitrarily, so the query widens until the n-th
// distance is strictly below the next one.
func (m *VectorDBManager) Search(ctx context.Context, vector []float32, n int) ([]models.SearchHit, error) {
	if len(vector) == 0 {
		return nil, errors.New("query embedding must be provided")
	}
	count := m.collection.Count()
	n = min(n, count)
	if n <= 0 {
		return nil, nil
	}

	fetch := n
	var hits []models.SearchHit
	for {
		var err error
		hits, err = m.query(ctx, vector, fetch)
		if err != nil {
			return nil, err
		}
		sortHits(hits)
		if fetch >= count || len(hits) <= n || hits[n].Distance > hits[n-1].Distance {
			break
		}
		fetch = min(fetch*2, count)
	}
	return hits[:min(n, len(hits))], nil
}

func (m *VectorDBManager) query(ctx context.Context, vector []float32, n int) ([]models.SearchHit, error) {
	results, err := m.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	hits := make([]models.SearchHit, 0, len(results))
	for _, res := range results {
		rec, err := recordFromResult(res)
		if err != nil {
			return nil, err
		}
		hits = append(hits, models.SearchHit{Record: rec, Distance: 1 - float64(res.Similarity)})
	}
	return hits, nil
}

func sortHits(hits []models.SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Record.Seq < hits[j].Record.Seq
	})
}

func recordFromResult(res chromem.Result) (models.EmbeddingRecord, error) {
	ints := make(map[string]int64, 4)
	for _, key := range []string{models.MetaPosition, models.MetaStart, models.MetaEnd, models.MetaSeq} {
		v, err := strconv.ParseInt(res.Metadata[key], 10, 64)
		if err != nil {
			return models.EmbeddingRecord{}, fmt.Errorf("document %s: bad %s metadata: %v", res.ID, key, err)
		}
		ints[key] = v
	}
	return models.EmbeddingRecord{
		ID: res.ID,
		Chunk: models.Chunk{
			BookID:   res.Metadata[models.MetaBookID],
			Position: int(ints[models.MetaPosition]),
			Text:     res.Content,
			Start:    int(ints[models.MetaStart]),
			End:      int(ints[models.MetaEnd]),
		},
		Vector: res.Embedding,
		Seq:    ints[models.MetaSeq],
	}, nil
}

// DeleteBook removes every document of a book.
func (m *VectorDBManager) DeleteBook(ctx context.Context, bookID string) error {
	if err := m.collection.Delete(ctx, map[string]string{models.MetaBookID: bookID}, nil); err != nil {
		return fmt.Errorf("failed to delete book %s: %v", bookID, err)
	}
	return nil
}

// Reset drops the collection and creates an empty one.
func (m *VectorDBManager) Reset() error {
	if err := m.db.DeleteCollection(m.name); err != nil {
		return fmt.Errorf("failed to drop collection: %v", err)
	}
	_, err := m.getOrCreateCollection()
	return err
}

// ExportPath is where Export writes the collection.
func (m *VectorDBManager) ExportPath() string {
	return filepath.Join(m.dbPath, m.name+".chromem")
}

// export to file
func (m *VectorDBManager) Export(path string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if path == "" {
		path = m.ExportPath()
	}
	log.Debug().Str("collection", m.name).Str("file", path).Bool("compress", m.compress).Msg("Exporting collection")
	if err := m.db.ExportToFile(path, m.compress, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// import from file
func (m *VectorDBManager) Import(path string) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if path == "" {
		path = m.ExportPath()
	}
	if err := m.db.ImportFromFile(path, m.encryptionKey, m.name); err != nil {
		return fmt.Errorf("failed to import database: %v", err)
	}
	_, err := m.getOrCreateCollection()
	return err
}
