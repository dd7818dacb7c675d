package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"book-reader/internal/chunker"
	"book-reader/internal/config"
	"book-reader/internal/embedding"
	"book-reader/internal/llmservice"
	"book-reader/internal/models"
	"book-reader/internal/parser"
	"book-reader/internal/qa"
	"book-reader/internal/vectorstore"
)

// RAG wires the loader, chunker, vector store and QA engine together. Writes
// are serialized and questions may be asked concurrently.
type RAG struct {
	mu      sync.RWMutex
	cfg     *config.Config
	loader  parser.Loader
	chunker *chunker.Chunker
	store   *vectorstore.Store
	engine  *qa.Engine
}

// AddOptions control AddBook. Replace removes an already indexed book with the
// same id first. DryRun loads and chunks the file without storing anything.
type AddOptions struct {
	Replace bool
	DryRun  bool
}

type AddResult struct {
	Book     models.Book    `json:"book"`
	Chunks   []models.Chunk `json:"chunks,omitempty"`
	Replaced bool           `json:"replaced"`
}

// New resolves the embedding model, vector index and reader named in cfg.
func New(ctx context.Context, cfg *config.Config) (*RAG, error) {
	ch, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.ChunkUnit)
	if err != nil {
		return nil, err
	}

	var reader qa.Reader
	switch cfg.RAG.Reader {
	case "llm":
		client, err := llmservice.New(&cfg.QALLM)
		if err != nil {
			return nil, err
		}
		reader = qa.NewLLMReader(client)
	default:
		reader = qa.NewLexicalReader()
	}

	embedder, err := embedding.Resolve(ctx, cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	index, err := vectorstore.OpenIndex(ctx, cfg)
	if err != nil {
		embedding.Close(embedder)
		return nil, err
	}

	log.Debug().Str("backend", cfg.VectorDB.Backend).Str("embedder", cfg.EmbedLLM.Provider).Str("reader", cfg.RAG.Reader).Msg("Pipeline ready")
	return NewRAG(cfg,
		parser.NewFileLoader(cfg.Loader.MaxFileSize),
		ch,
		vectorstore.New(index, embedder),
		qa.NewEngine(reader, cfg.RAG.AnswerThreshold, cfg.RAG.MaxContextChars),
	), nil
}

func NewRAG(cfg *config.Config, loader parser.Loader, ch *chunker.Chunker, store *vectorstore.Store, engine *qa.Engine) *RAG {
	return &RAG{cfg: cfg, loader: loader, chunker: ch, store: store, engine: engine}
}

func (r *RAG) Config() *config.Config {
	return r.cfg
}

// AddBook loads, chunks and indexes the file at path. The book id is the
// file's base name.
func (r *RAG) AddBook(ctx context.Context, path string, opts AddOptions) (*AddResult, error) {
	doc, err := r.loader.Load(path)
	if err != nil {
		return nil, err
	}

	id := filepath.Base(path)
	book := models.Book{
		ID:       id,
		Title:    strings.TrimSuffix(id, filepath.Ext(id)),
		Path:     path,
		Format:   doc.Format,
		Checksum: fmt.Sprintf("%016x", xxhash.Sum64String(doc.Text)),
	}
	chunks := r.chunker.Split(id, doc.Text)
	log.Debug().Str("book", id).Int("chars", len(doc.Text)).Int("chunks", len(chunks)).Msg("Chunked document")

	if opts.DryRun {
		book.Chunks = len(chunks)
		return &AddResult{Book: book, Chunks: chunks}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	result := &AddResult{}
	var stored models.Book
	if opts.Replace {
		stored, result.Replaced, err = r.store.Replace(ctx, book, chunks)
		if result.Replaced {
			log.Info().Str("book", id).Msg("Replaced previous version")
		}
	} else {
		stored, err = r.store.Add(ctx, book, chunks)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("book", id).Int("chunks", stored.Chunks).Dur("took", time.Since(start)).Msg("Indexed book")
	result.Book = stored
	return result, nil
}

// Ask retrieves the TopK nearest chunks for the question and extracts an answer.
func (r *RAG) Ask(ctx context.Context, q models.Query) (*models.Answer, error) {
	question := strings.TrimSpace(q.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", models.ErrInvalidQuery)
	}
	topK := q.TopK
	if topK <= 0 {
		topK = r.cfg.RAG.TopK
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	hits, err := r.store.Search(ctx, question, topK)
	if err != nil {
		return nil, err
	}
	return r.engine.Answer(ctx, question, hits)
}

func (r *RAG) Books(ctx context.Context) ([]models.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Books(ctx)
}

// Book returns nil when no book has the given id.
func (r *RAG) Book(ctx context.Context, id string) (*models.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Book(ctx, id)
}

func (r *RAG) RemoveBook(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.RemoveBook(ctx, id)
}

func (r *RAG) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Reset(ctx)
}

func (r *RAG) Backup(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Backup(path)
}

func (r *RAG) Restore(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Restore(path)
}

func (r *RAG) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Close()
}
