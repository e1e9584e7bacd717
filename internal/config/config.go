package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/askbase/askbase/internal/domain"
)

// Vector backend selectors.
const (
	BackendLocal    = "local"
	BackendPostgres = "postgres"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// VectorBackend selects the index implementation: local (embedded) or
	// postgres (pgvector).
	VectorBackend string `envconfig:"VECTOR_BACKEND" default:"local"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	DataDir       string `envconfig:"DATA_DIR" default:"./data"`

	// EmbeddingDimension fixes the index dimension at creation. Changing it
	// (e.g. switching embedding models) requires a full re-index.
	EmbeddingDimension int `envconfig:"EMBEDDING_DIMENSION" default:"1536"`

	ChunkWindow    int     `envconfig:"CHUNK_WINDOW" default:"1000"`
	ChunkOverlap   int     `envconfig:"CHUNK_OVERLAP" default:"200"`
	TopK           int     `envconfig:"TOP_K" default:"24"`
	ContextBudget  int     `envconfig:"CONTEXT_BUDGET" default:"12000"`
	MaxTokens      int     `envconfig:"MAX_TOKENS" default:"800"`
	Temperature    float32 `envconfig:"TEMPERATURE" default:"0.3"`
	MaxUploadBytes int64   `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`

	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"45s"`
	StreamIdleTimeout time.Duration `envconfig:"STREAM_IDLE_TIMEOUT" default:"60s"`

	// System provider credentials, used for callers that do not bring their
	// own. Guests supply per-request configs instead.
	LLMProvider       string `envconfig:"LLM_PROVIDER" default:"openai"`
	LLMModel          string `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMAPIKey         string `envconfig:"LLM_API_KEY"`
	LLMBaseURL        string `envconfig:"LLM_BASE_URL"`
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingAPIKey   string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBaseURL  string `envconfig:"EMBEDDING_BASE_URL"`

	// Optional S3-compatible archive for raw uploads.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"askbase-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("ASKBASE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) Validate() error {
	switch c.VectorBackend {
	case BackendLocal:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when VECTOR_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid VECTOR_BACKEND %q (expected local or postgres)", c.VectorBackend)
	}

	if c.ChunkWindow <= 0 {
		return fmt.Errorf("CHUNK_WINDOW must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkWindow {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_WINDOW)")
	}
	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive")
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// HasSystemProviders reports whether deployment-level credentials exist for
// both roles.
func (c *Config) HasSystemProviders() bool {
	return c.LLMAPIKey != "" && c.EmbeddingAPIKey != ""
}

// SystemEmbeddingConfig returns the deployment's embedding credentials.
func (c *Config) SystemEmbeddingConfig() domain.ProviderConfig {
	return domain.ProviderConfig{
		Role:     domain.ProviderRoleEmbedding,
		Provider: domain.ProviderName(c.EmbeddingProvider),
		Model:    c.EmbeddingModel,
		APIKey:   c.EmbeddingAPIKey,
		BaseURL:  c.EmbeddingBaseURL,
	}
}

// SystemGenerationConfig returns the deployment's generation credentials.
func (c *Config) SystemGenerationConfig() domain.ProviderConfig {
	return domain.ProviderConfig{
		Role:     domain.ProviderRoleGeneration,
		Provider: domain.ProviderName(c.LLMProvider),
		Model:    c.LLMModel,
		APIKey:   c.LLMAPIKey,
		BaseURL:  c.LLMBaseURL,
	}
}
