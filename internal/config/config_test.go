package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.RAG.ChunkSize != defaultChunkSize || cfg.RAG.ChunkOverlap != defaultChunkOverlap {
		t.Fatalf("unexpected chunking defaults: %+v", cfg.RAG)
	}
	if cfg.RAG.TopK != 5 {
		t.Fatalf("TopK = %d, want 5", cfg.RAG.TopK)
	}
	if cfg.EmbedLLM.Provider != "local" || cfg.VectorDB.Backend != "chromem" {
		t.Fatalf("unexpected providers: %s %s", cfg.EmbedLLM.Provider, cfg.VectorDB.Backend)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
rag:
  chunk_size: 300
  chunk_overlap: 50
  chunk_unit: words
  answer_threshold: 0.5
embed_llm:
  provider: openai
  model: text-embedding-3-small
vector_db:
  in_memory: true
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.RAG.ChunkSize != 300 || cfg.RAG.ChunkOverlap != 50 || cfg.RAG.ChunkUnit != "words" {
		t.Fatalf("chunking not loaded: %+v", cfg.RAG)
	}
	if cfg.RAG.AnswerThreshold != 0.5 {
		t.Fatalf("AnswerThreshold = %v, want 0.5", cfg.RAG.AnswerThreshold)
	}
	if cfg.EmbedLLM.KeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("KeyEnv = %q, want OPENAI_API_KEY", cfg.EmbedLLM.KeyEnv)
	}
	if !cfg.VectorDB.InMemory || cfg.VectorDB.Collection != "books" {
		t.Fatalf("vector db not loaded: %+v", cfg.VectorDB)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("BOOKQA_TOP_K", "9")
	t.Setenv("BOOKQA_READER", "llm")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.RAG.TopK != 9 {
		t.Fatalf("TopK = %d, want 9", cfg.RAG.TopK)
	}
	if cfg.RAG.Reader != "llm" {
		t.Fatalf("Reader = %q, want llm", cfg.RAG.Reader)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero size", func(c *Config) { c.RAG.ChunkSize = 0 }},
		{"overlap too big", func(c *Config) { c.RAG.ChunkOverlap = c.RAG.ChunkSize }},
		{"negative overlap", func(c *Config) { c.RAG.ChunkOverlap = -1 }},
		{"bad unit", func(c *Config) { c.RAG.ChunkUnit = "tokens" }},
		{"bad threshold", func(c *Config) { c.RAG.AnswerThreshold = 1.5 }},
		{"bad reader", func(c *Config) { c.RAG.Reader = "generative" }},
		{"bad backend", func(c *Config) { c.VectorDB.Backend = "faiss" }},
		{"postgres without dsn", func(c *Config) { c.VectorDB.Backend = "postgres" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("MY_KEY", "secret")
	if got := (LLMConfig{KeyEnv: "MY_KEY"}).APIKey(); got != "secret" {
		t.Fatalf("APIKey = %q", got)
	}
	if got := (LLMConfig{Key: "inline", KeyEnv: "MY_KEY"}).APIKey(); got != "inline" {
		t.Fatalf("APIKey = %q", got)
	}
}
