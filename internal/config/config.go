package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Database    DatabaseConfig    `yaml:"database"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	EmbedLLM    EmbedConfig       `yaml:"embed_llm"`
	LLM         LLMConfig         `yaml:"llm"`
	RAG         RAGConfig         `yaml:"rag"`
	Planner     PlannerConfig     `yaml:"planner"`
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`
	BodyLimitMB  int    `yaml:"body_limit_mb"`
	AllowOrigins string `yaml:"allow_origins"`
}

type LoggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// DatabaseConfig selects the bun driver: sqlite, pgdriver or pq.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// PasswordEnv overrides the DSN password for the pgdriver connector.
	PasswordEnv string `yaml:"password_env"`
	Debug       bool   `yaml:"debug"`
}

// VectorStoreConfig selects the syllabus index backend: chromem or pgvector.
type VectorStoreConfig struct {
	Type             string `yaml:"type"`
	Path             string `yaml:"path"`
	InMemory         bool   `yaml:"in_memory"`
	Compress         bool   `yaml:"compress"`
	EncryptionKeyEnv string `yaml:"encryption_key_env"`
	DSN              string `yaml:"dsn"`
}

type EmbedConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	Dimension int    `yaml:"dimension"`
}

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	CountTokens bool          `yaml:"count_tokens"`
}

type RAGConfig struct {
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
	Splitter         string `yaml:"splitter"`
	TopK             int    `yaml:"top_k"`
	PlanTopics       int    `yaml:"plan_topics"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
}

type PlannerConfig struct {
	FreeSlots       []string `yaml:"free_slots"`
	DefaultProgress int      `yaml:"default_progress"`
}

const (
	defaultAddr             = ":8000"
	defaultBodyLimitMB      = 20
	defaultDBPath           = "./memory.db"
	defaultVectorPath       = "./chromemdb"
	defaultDimension        = 768
	defaultChunkSize        = 800
	defaultChunkOverlap     = 100
	defaultTopK             = 3
	defaultPlanTopics       = 5
	defaultMaxContextTokens = 3000
	defaultTimeout          = 60 * time.Second
	defaultRetryDelay       = 500 * time.Millisecond
	defaultMaxRetries       = 2
	defaultProgress         = 100
	defaultGroqURL          = "https://api.groq.com/openai/v1"
	defaultGroqModel        = "llama-3.1-8b-instant"
)

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration that runs fully offline: sqlite, in-process chromem and the
// fake embedder.
func Default() *Config {
	cfg := &Config{
		Logging:     LoggingConfig{Level: "info", Console: true},
		Database:    DatabaseConfig{Driver: "sqlite"},
		VectorStore: VectorStoreConfig{Type: "chromem"},
		EmbedLLM:    EmbedConfig{Provider: "fake"},
		LLM: LLMConfig{
			Temperature: 0.2,
			MaxRetries:  defaultMaxRetries,
		},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultAddr
	}
	if cfg.Server.BodyLimitMB == 0 {
		cfg.Server.BodyLimitMB = defaultBodyLimitMB
	}
	if cfg.Server.AllowOrigins == "" {
		cfg.Server.AllowOrigins = "*"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = defaultDBPath
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "chromem"
	}
	if cfg.VectorStore.Path == "" {
		cfg.VectorStore.Path = defaultVectorPath
	}
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = "fake"
	}
	if cfg.EmbedLLM.Dimension == 0 && cfg.EmbedLLM.Provider == "fake" {
		cfg.EmbedLLM.Dimension = defaultDimension
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "groq"
	}
	if cfg.LLM.Provider == "groq" {
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = defaultGroqURL
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = defaultGroqModel
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "GROQ_API_KEY"
		}
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = defaultTimeout
	}
	if cfg.LLM.RetryDelay == 0 {
		cfg.LLM.RetryDelay = defaultRetryDelay
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.RAG.Splitter == "" {
		cfg.RAG.Splitter = "window"
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.RAG.PlanTopics == 0 {
		cfg.RAG.PlanTopics = defaultPlanTopics
	}
	if cfg.RAG.MaxContextTokens == 0 {
		cfg.RAG.MaxContextTokens = defaultMaxContextTokens
	}
	if len(cfg.Planner.FreeSlots) == 0 {
		cfg.Planner.FreeSlots = []string{"6–7 AM", "7–8 PM", "9–10 PM"}
	}
	if cfg.Planner.DefaultProgress == 0 {
		cfg.Planner.DefaultProgress = defaultProgress
	}
}

func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", c.RAG.ChunkOverlap)
	}
	if c.LLM.MaxRetries < 0 || c.LLM.MaxRetries > 10 {
		return fmt.Errorf("llm.max_retries must be 0-10, got %d", c.LLM.MaxRetries)
	}
	if c.EmbedLLM.Dimension < 0 {
		return fmt.Errorf("embed_llm.dimension must not be negative, got %d", c.EmbedLLM.Dimension)
	}
	switch c.Database.Driver {
	case "sqlite", "pgdriver", "pq":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.VectorStore.Type {
	case "chromem", "pgvector":
	default:
		return fmt.Errorf("unsupported vector store: %s", c.VectorStore.Type)
	}
	switch c.RAG.Splitter {
	case "window", "recursive":
	default:
		return fmt.Errorf("unsupported splitter: %s", c.RAG.Splitter)
	}
	return nil
}

// Secret resolves an *_env indirection. Empty names resolve to "".
func Secret(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}
