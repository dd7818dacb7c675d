package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"book-reader/internal/chromemdb"
	"book-reader/internal/config"
	"book-reader/internal/helper"
	"book-reader/internal/models"
)

const catalogFile = "catalog.yaml"

type catalog struct {
	Dimension int           `yaml:"dimension"`
	LastSeq   int64         `yaml:"last_seq"`
	Books     []models.Book `yaml:"books"`
}

// ChromemIndex stores vectors in a chromem-go collection and the book
// catalog in a YAML file next to it.
type ChromemIndex struct {
	mgr         *chromemdb.VectorDBManager
	catalogPath string
	catalog     catalog
}

func NewChromemIndex(cfg config.VectorDBConfig) (*ChromemIndex, error) {
	if !cfg.InMemory {
		if err := helper.CreateFolder(cfg.Path); err != nil {
			return nil, err
		}
	}
	mgr, err := chromemdb.NewVectorDBManager(cfg)
	if err != nil {
		return nil, err
	}
	idx := &ChromemIndex{mgr: mgr}
	if !cfg.InMemory {
		idx.catalogPath = filepath.Join(cfg.Path, catalogFile)
		if err := readCatalog(idx.catalogPath, &idx.catalog); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func readCatalog(path string, c *catalog) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read catalog: %v", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse catalog %s: %v", path, err)
	}
	return nil
}

func writeCatalog(path string, c catalog) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %v", err)
	}
	return os.Rename(tmp, path)
}

func (c *ChromemIndex) save() error {
	if c.catalogPath == "" {
		return nil
	}
	return writeCatalog(c.catalogPath, c.catalog)
}

func (c *ChromemIndex) Insert(ctx context.Context, book models.Book, records []models.EmbeddingRecord) error {
	if err := c.mgr.CreateDocs(ctx, records); err != nil {
		return err
	}
	if len(records) > 0 {
		c.catalog.Dimension = len(records[0].Vector)
		c.catalog.LastSeq = max(c.catalog.LastSeq, records[len(records)-1].Seq)
	}
	c.catalog.Books = append(c.catalog.Books, book)
	return c.save()
}

func (c *ChromemIndex) Search(ctx context.Context, vector []float32, topK int) ([]models.SearchHit, error) {
	return c.mgr.Search(ctx, vector, topK)
}

func (c *ChromemIndex) Count(_ context.Context) (int, error) {
	return c.mgr.Count(), nil
}

func (c *ChromemIndex) Dimension(_ context.Context) (int, error) {
	if c.mgr.Count() == 0 {
		return 0, nil
	}
	return c.catalog.Dimension, nil
}

func (c *ChromemIndex) MaxSeq(_ context.Context) (int64, error) {
	return c.catalog.LastSeq, nil
}

func (c *ChromemIndex) Book(_ context.Context, id string) (*models.Book, error) {
	for _, b := range c.catalog.Books {
		if b.ID == id {
			book := b
			return &book, nil
		}
	}
	return nil, nil
}

func (c *ChromemIndex) Books(_ context.Context) ([]models.Book, error) {
	books := append([]models.Book(nil), c.catalog.Books...)
	sort.SliceStable(books, func(i, j int) bool { return books[i].AddedAt.Before(books[j].AddedAt) })
	return books, nil
}

func (c *ChromemIndex) DeleteBook(ctx context.Context, id string) (bool, error) {
	pos := -1
	for i, b := range c.catalog.Books {
		if b.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return false, nil
	}
	if err := c.mgr.DeleteBook(ctx, id); err != nil {
		return false, err
	}
	c.catalog.Books = append(c.catalog.Books[:pos], c.catalog.Books[pos+1:]...)
	if c.mgr.Count() == 0 {
		c.catalog.Dimension = 0
	}
	return true, c.save()
}

// Reset keeps LastSeq so sequences stay unique for the lifetime of the store.
func (c *ChromemIndex) Reset(_ context.Context) error {
	if err := c.mgr.Reset(); err != nil {
		return err
	}
	c.catalog = catalog{LastSeq: c.catalog.LastSeq}
	return c.save()
}

func (c *ChromemIndex) Close() error {
	return c.save()
}

// Backup exports the encrypted collection to path and the catalog to path.yaml.
func (c *ChromemIndex) Backup(path string) error {
	if err := c.mgr.Export(path); err != nil {
		return err
	}
	return writeCatalog(path+".yaml", c.catalog)
}

// Restore replaces the collection and catalog with a backup written by Backup.
// Both files must exist; nothing is touched otherwise.
func (c *ChromemIndex) Restore(path string) error {
	for _, f := range []string{path, path + ".yaml"} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("backup incomplete: %v", err)
		}
	}
	var restored catalog
	if err := readCatalog(path+".yaml", &restored); err != nil {
		return err
	}
	if err := c.mgr.Reset(); err != nil {
		return err
	}
	if err := c.mgr.Import(path); err != nil {
		return err
	}
	c.catalog = restored
	return c.save()
}
