package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Loader   LoaderConfig   `yaml:"loader"`
	RAG      RAGConfig      `yaml:"rag"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	QALLM    LLMConfig      `yaml:"qa_llm"`
	VectorDB VectorDBConfig `yaml:"vector_db"`
	Database DatabaseConfig `yaml:"database"`
	Web      WebConfig      `yaml:"web"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type LoaderConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"`
}

type RAGConfig struct {
	ChunkSize       int     `yaml:"chunk_size"`
	ChunkOverlap    int     `yaml:"chunk_overlap"`
	ChunkUnit       string  `yaml:"chunk_unit"`
	TopK            int     `yaml:"top_k"`
	AnswerThreshold float64 `yaml:"answer_threshold"`
	MaxContextChars int     `yaml:"max_context_chars"`
	Reader          string  `yaml:"reader"`
}

// LLMConfig describes a model endpoint. Provider is one of local, ollama,
// openai or gemini; local needs no endpoint.
type LLMConfig struct {
	Provider      string `yaml:"provider"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	Key           string `yaml:"key"`
	KeyEnv        string `yaml:"key_env"`
	Dimension     int    `yaml:"dimension"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
	FallbackLocal bool   `yaml:"fallback_local"`
}

type VectorDBConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type WebConfig struct {
	Addr           string   `yaml:"addr"`
	UploadDir      string   `yaml:"upload_dir"`
	CORSOrigins    []string `yaml:"cors_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
}

const (
	defaultChunkSize       = 1000 // chars
	defaultChunkOverlap    = 200  // chars
	defaultTopK            = 5
	defaultThreshold       = 0.2
	defaultMaxContextChars = 4000
	defaultDimension       = 384
	defaultMaxFileSize     = 100 << 20
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Pretty: true},
		Loader: LoaderConfig{MaxFileSize: defaultMaxFileSize},
		RAG: RAGConfig{
			ChunkSize:       defaultChunkSize,
			ChunkOverlap:    defaultChunkOverlap,
			ChunkUnit:       "chars",
			TopK:            defaultTopK,
			AnswerThreshold: defaultThreshold,
			MaxContextChars: defaultMaxContextChars,
			Reader:          "lexical",
		},
		EmbedLLM: LLMConfig{Provider: "local", Dimension: defaultDimension, TimeoutSecs: 30},
		QALLM:    LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.2", TimeoutSecs: 60},
		VectorDB: VectorDBConfig{Backend: "chromem", Path: "./chromemdb", Collection: "books"},
		Database: DatabaseConfig{Driver: "pgdriver"},
		Web: WebConfig{
			Addr:           ":8501",
			UploadDir:      "./uploads",
			CORSOrigins:    []string{"http://localhost:8501"},
			RateLimitRPS:   5,
			RateLimitBurst: 10,
			MaxUploadBytes: 50 << 20,
		},
	}
}

// LoadConfig reads the YAML file at path on top of the defaults, then applies
// .env and BOOKQA_* environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %v", path, err)
			}
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	switch c.RAG.ChunkUnit {
	case "chars", "words":
	default:
		return fmt.Errorf("rag.chunk_unit must be chars or words, got %q", c.RAG.ChunkUnit)
	}
	if c.RAG.AnswerThreshold < 0 || c.RAG.AnswerThreshold > 1 {
		return fmt.Errorf("rag.answer_threshold must be in [0, 1], got %v", c.RAG.AnswerThreshold)
	}
	switch c.RAG.Reader {
	case "lexical", "llm":
	default:
		return fmt.Errorf("rag.reader must be lexical or llm, got %q", c.RAG.Reader)
	}
	switch c.VectorDB.Backend {
	case "chromem":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("vector_db.backend must be chromem or postgres, got %q", c.VectorDB.Backend)
	}
	return nil
}

// APIKey returns the configured key, reading KeyEnv when Key is empty.
func (l LLMConfig) APIKey() string {
	if l.Key != "" {
		return l.Key
	}
	if l.KeyEnv != "" {
		return os.Getenv(l.KeyEnv)
	}
	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.RAG.ChunkUnit == "" {
		cfg.RAG.ChunkUnit = "chars"
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.MaxContextChars <= 0 {
		cfg.RAG.MaxContextChars = defaultMaxContextChars
	}
	if cfg.RAG.Reader == "" {
		cfg.RAG.Reader = "lexical"
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "local"
	}
	if cfg.EmbedLLM.Dimension <= 0 {
		cfg.EmbedLLM.Dimension = defaultDimension
	}
	if cfg.Loader.MaxFileSize <= 0 {
		cfg.Loader.MaxFileSize = defaultMaxFileSize
	}
	if cfg.VectorDB.Backend == "" {
		cfg.VectorDB.Backend = "chromem"
	}
	if cfg.VectorDB.Collection == "" {
		cfg.VectorDB.Collection = "books"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgdriver"
	}
	if cfg.EmbedLLM.Provider == "openai" && cfg.EmbedLLM.KeyEnv == "" {
		cfg.EmbedLLM.KeyEnv = "OPENAI_API_KEY"
	}
	if cfg.EmbedLLM.Provider == "gemini" && cfg.EmbedLLM.KeyEnv == "" {
		cfg.EmbedLLM.KeyEnv = "GEMINI_API_KEY"
	}
}

func applyEnv(cfg *Config) {
	cfg.Log.Level = getEnv("BOOKQA_LOG_LEVEL", cfg.Log.Level)
	cfg.RAG.ChunkSize = getEnvInt("BOOKQA_CHUNK_SIZE", cfg.RAG.ChunkSize)
	cfg.RAG.ChunkOverlap = getEnvInt("BOOKQA_CHUNK_OVERLAP", cfg.RAG.ChunkOverlap)
	cfg.RAG.TopK = getEnvInt("BOOKQA_TOP_K", cfg.RAG.TopK)
	cfg.RAG.AnswerThreshold = getEnvFloat64("BOOKQA_ANSWER_THRESHOLD", cfg.RAG.AnswerThreshold)
	cfg.RAG.Reader = getEnv("BOOKQA_READER", cfg.RAG.Reader)
	cfg.EmbedLLM.Provider = getEnv("BOOKQA_EMBED_PROVIDER", cfg.EmbedLLM.Provider)
	cfg.EmbedLLM.BaseURL = getEnv("BOOKQA_EMBED_BASE_URL", cfg.EmbedLLM.BaseURL)
	cfg.EmbedLLM.Model = getEnv("BOOKQA_EMBED_MODEL", cfg.EmbedLLM.Model)
	cfg.QALLM.BaseURL = getEnv("BOOKQA_QA_BASE_URL", cfg.QALLM.BaseURL)
	cfg.QALLM.Model = getEnv("BOOKQA_QA_MODEL", cfg.QALLM.Model)
	cfg.VectorDB.Backend = getEnv("BOOKQA_VECTOR_BACKEND", cfg.VectorDB.Backend)
	cfg.VectorDB.Path = getEnv("BOOKQA_VECTOR_PATH", cfg.VectorDB.Path)
	cfg.VectorDB.EncryptionKey = getEnv("BOOKQA_ENCRYPTION_KEY", cfg.VectorDB.EncryptionKey)
	cfg.Database.DSN = getEnv("BOOKQA_DATABASE_DSN", cfg.Database.DSN)
	cfg.Database.Password = getEnv("BOOKQA_DATABASE_PASSWORD", cfg.Database.Password)
	cfg.Web.Addr = getEnv("BOOKQA_WEB_ADDR", cfg.Web.Addr)
	if origins := os.Getenv("BOOKQA_CORS_ORIGINS"); origins != "" {
		cfg.Web.CORSOrigins = strings.Split(origins, ",")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
