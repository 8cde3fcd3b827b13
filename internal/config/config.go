// Package config provides configuration loading for snipd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/snipd/internal/logging"
)

// Config is the full snipd configuration tree.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Worker      WorkerConfig      `koanf:"worker"`
	Clone       CloneConfig       `koanf:"clone"`
	Extraction  ExtractionConfig  `koanf:"extraction"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Reranker    RerankerConfig    `koanf:"reranker"`
	Logging     logging.Config    `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// WorkerConfig configures the ingestion worker pool.
type WorkerConfig struct {
	// Workers is the number of concurrent job processors.
	Workers int `koanf:"workers"`
	// QueueSize bounds undelivered jobs before submissions block.
	QueueSize int `koanf:"queue_size"`
	// ExtractConcurrency bounds in-flight extraction calls per job.
	ExtractConcurrency int `koanf:"extract_concurrency"`
	// ProgressInterval is the minimum time between persisted progress
	// updates during extraction.
	ProgressInterval time.Duration `koanf:"progress_interval"`
}

// CloneConfig configures repository cloning.
type CloneConfig struct {
	WorkspaceDir string        `koanf:"workspace_dir"`
	Timeout      time.Duration `koanf:"timeout"`
}

// ExtractionConfig configures the snippet extraction service client.
type ExtractionConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
	// RequestsPerSecond caps outbound extraction calls. Zero disables
	// the limiter.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	// DefaultMaxFileSize applies when a job does not set its own cap.
	DefaultMaxFileSize int64 `koanf:"default_max_file_size"`
}

// EmbeddingsConfig configures the embedding service client.
type EmbeddingsConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Model     string        `koanf:"model"`
	APIKey    string        `koanf:"api_key"`
	BatchSize int           `koanf:"batch_size"`
	Timeout   time.Duration `koanf:"timeout"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// QdrantConfig configures the Qdrant gRPC store.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     string `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
	MaxRetries int    `koanf:"max_retries"`
}

// ChromemConfig configures the embedded chromem store.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// RerankerConfig configures result reranking.
type RerankerConfig struct {
	Enabled bool `koanf:"enabled"`
	// Overfetch is how many candidates the search path pulls from the
	// vector store before reranking.
	Overfetch int `koanf:"overfetch"`
}

// applyDefaults fills missing values with production defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Worker.Workers == 0 {
		cfg.Worker.Workers = 2
	}
	if cfg.Worker.QueueSize == 0 {
		cfg.Worker.QueueSize = 256
	}
	if cfg.Worker.ExtractConcurrency == 0 {
		cfg.Worker.ExtractConcurrency = 8
	}
	if cfg.Worker.ProgressInterval == 0 {
		cfg.Worker.ProgressInterval = 2 * time.Second
	}

	if cfg.Clone.Timeout == 0 {
		cfg.Clone.Timeout = 5 * time.Minute
	}

	if cfg.Extraction.BaseURL == "" {
		cfg.Extraction.BaseURL = "http://localhost:8100"
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 60 * time.Second
	}
	if cfg.Extraction.DefaultMaxFileSize == 0 {
		cfg.Extraction.DefaultMaxFileSize = 1024 * 1024
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 32
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 30 * time.Second
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "snipd_snippets"
	}
	if cfg.VectorStore.Qdrant.VectorSize == 0 {
		cfg.VectorStore.Qdrant.VectorSize = 384
	}
	if cfg.VectorStore.Qdrant.MaxRetries == 0 {
		cfg.VectorStore.Qdrant.MaxRetries = 3
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/snipd/vectorstore"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "snipd_snippets"
	}

	if cfg.Reranker.Overfetch == 0 {
		cfg.Reranker.Overfetch = 20
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if c.Worker.Workers < 1 {
		return fmt.Errorf("worker: workers must be positive, got %d", c.Worker.Workers)
	}
	if c.Worker.ExtractConcurrency < 1 {
		return fmt.Errorf("worker: extract_concurrency must be positive, got %d", c.Worker.ExtractConcurrency)
	}
	if c.Extraction.RequestsPerSecond < 0 {
		return fmt.Errorf("extraction: requests_per_second must not be negative")
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("embeddings: batch_size must be positive, got %d", c.Embeddings.BatchSize)
	}
	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("vectorstore: unknown provider %q (expected chromem or qdrant)", c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" && c.VectorStore.Qdrant.VectorSize < 1 {
		return fmt.Errorf("vectorstore: qdrant vector_size must be positive")
	}
	if c.Reranker.Overfetch < 1 {
		return fmt.Errorf("reranker: overfetch must be positive, got %d", c.Reranker.Overfetch)
	}
	return nil
}
