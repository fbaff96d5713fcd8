// Package config loads application configuration from a YAML file plus
// environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/SaintWyss/rag-corp-sub003/pkg/queue"
	"github.com/SaintWyss/rag-corp-sub003/pkg/repository"
	"github.com/SaintWyss/rag-corp-sub003/pkg/storage"
)

// APIConfig defines the HTTP server configuration
type APIConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
}

// EmbeddingConfig configures the embedding provider and cache
type EmbeddingConfig struct {
	ModelID      string        `mapstructure:"embedding_model_id"`
	Dimension    int           `mapstructure:"embedding_dimension"`
	Fake         bool          `mapstructure:"fake_embeddings"`
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	RPM          int           `mapstructure:"requests_per_minute"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheEntries int           `mapstructure:"cache_entries"`
}

// LLMConfig configures the LLM provider
type LLMConfig struct {
	Fake    bool   `mapstructure:"llm_fake"`
	ModelID string `mapstructure:"model_id"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// PromptsConfig selects prompt version and language
type PromptsConfig struct {
	Version  string `mapstructure:"prompt_version"`
	Language string `mapstructure:"prompt_language"`
}

// RAGConfig controls the retrieval and answering pipeline
type RAGConfig struct {
	TopK                     int     `mapstructure:"top_k"`
	EnableHybridSearch       bool    `mapstructure:"enable_hybrid_search"`
	RRFK                     int     `mapstructure:"rrf_k"`
	EnableRewriter           bool    `mapstructure:"enable_rewriter"`
	EnableReranker           bool    `mapstructure:"enable_reranker"`
	RerankMode               string  `mapstructure:"rerank_mode"`
	RerankTopK               int     `mapstructure:"rerank_top_k"`
	InjectionFilterMode      string  `mapstructure:"injection_filter_mode"`
	InjectionFilterThreshold float64 `mapstructure:"injection_filter_threshold"`
	MaxContextChars          int     `mapstructure:"max_context_chars"`
}

// QuotaConfig holds the hourly budgets, zero meaning unlimited
type QuotaConfig struct {
	MessagesPerHour int64 `mapstructure:"quota_messages_per_hour"`
	TokensPerHour   int64 `mapstructure:"quota_tokens_per_hour"`
	UploadsPerHour  int64 `mapstructure:"quota_uploads_per_hour"`
}

// RetryConfig holds the outbound retry policy
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"retry_max_attempts"`
	BaseDelay   time.Duration `mapstructure:"retry_base_delay"`
	MaxDelay    time.Duration `mapstructure:"retry_max_delay"`
}

// RedisConfig configures the shared cache and quota backend
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig configures the job worker pool
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// Config is the complete application configuration
type Config struct {
	Environment string              `mapstructure:"environment"`
	API         APIConfig           `mapstructure:"api"`
	Database    repository.DBConfig `mapstructure:"database"`
	Storage     storage.Config      `mapstructure:"storage"`
	Queue       queue.Config        `mapstructure:"queue"`
	Redis       RedisConfig         `mapstructure:"redis"`
	Embedding   EmbeddingConfig     `mapstructure:"embedding"`
	LLM         LLMConfig           `mapstructure:"llm"`
	Prompts     PromptsConfig       `mapstructure:"prompts"`
	RAG         RAGConfig           `mapstructure:"rag"`
	Quota       QuotaConfig         `mapstructure:"quota"`
	Retry       RetryConfig         `mapstructure:"retry"`
	Worker      WorkerConfig        `mapstructure:"worker"`
	Chunking    ChunkingConfig      `mapstructure:"chunking"`
}

// ChunkingConfig controls document chunking
type ChunkingConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
	Overlap   int `mapstructure:"overlap"`
}

// Load reads configuration from the optional config file named by RAG_CONFIG
// (default config.yaml in the working directory) and RAG_-prefixed
// environment variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/rag-corp")
	if err := v.ReadInConfig(); err != nil {
		// Running purely on env vars and defaults is supported
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")

	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 60*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "rag")
	v.SetDefault("database.username", "rag")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)

	v.SetDefault("redis.address", "localhost:6379")

	v.SetDefault("embedding.embedding_model_id", "text-embedding-3-small")
	v.SetDefault("embedding.embedding_dimension", 768)
	v.SetDefault("embedding.fake_embeddings", false)
	v.SetDefault("embedding.requests_per_minute", 300)
	v.SetDefault("embedding.cache_ttl", 24*time.Hour)
	v.SetDefault("embedding.cache_entries", 10000)

	v.SetDefault("llm.llm_fake", false)
	v.SetDefault("llm.model_id", "gpt-4o-mini")

	v.SetDefault("prompts.prompt_version", "v1")
	v.SetDefault("prompts.prompt_language", "es")

	v.SetDefault("rag.top_k", 10)
	v.SetDefault("rag.enable_hybrid_search", false)
	v.SetDefault("rag.rrf_k", 60)
	v.SetDefault("rag.enable_rewriter", false)
	v.SetDefault("rag.enable_reranker", false)
	v.SetDefault("rag.rerank_mode", "disabled")
	v.SetDefault("rag.rerank_top_k", 5)
	v.SetDefault("rag.injection_filter_mode", "off")
	v.SetDefault("rag.injection_filter_threshold", 0.6)
	v.SetDefault("rag.max_context_chars", 8000)

	v.SetDefault("quota.quota_messages_per_hour", 0)
	v.SetDefault("quota.quota_tokens_per_hour", 0)
	v.SetDefault("quota.quota_uploads_per_hour", 0)

	v.SetDefault("retry.retry_max_attempts", 3)
	v.SetDefault("retry.retry_base_delay", 200*time.Millisecond)
	v.SetDefault("retry.retry_max_delay", 5*time.Second)

	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.idempotency_ttl", 10*time.Minute)

	v.SetDefault("chunking.chunk_size", 900)
	v.SetDefault("chunking.overlap", 120)
}

// Validate rejects configurations that cannot work
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if !c.Embedding.Fake && c.Embedding.APIKey == "" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding provider requires api_key or base_url unless fake_embeddings is set")
	}
	if !c.LLM.Fake && c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
		return fmt.Errorf("llm provider requires api_key or base_url unless llm_fake is set")
	}
	switch c.RAG.InjectionFilterMode {
	case "off", "exclude", "downrank":
	default:
		return fmt.Errorf("invalid injection_filter_mode %q", c.RAG.InjectionFilterMode)
	}
	switch c.RAG.RerankMode {
	case "disabled", "heuristic", "llm":
	default:
		return fmt.Errorf("invalid rerank_mode %q", c.RAG.RerankMode)
	}
	return nil
}
