// Package config loads service configuration from config.yaml with
// environment variable overrides.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/schemascope/schemascope-engine/pkg/models"
)

// Config holds all configuration for schemascope-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL with pgvector)
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath points at the SQL migration directory.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`

	// AI provider configuration
	AI AIConfig `yaml:"ai"`

	// Graph store configuration
	Graph GraphConfig `yaml:"graph"`

	// Relationship detection tuning
	Detection DetectionConfig `yaml:"detection"`

	// Semantic search tuning
	Search SearchConfig `yaml:"search"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"schemascope"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"schemascope_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// AIConfig holds chat and embedding provider configuration. The chat
// provider is selectable; embeddings always use an OpenAI-compatible
// endpoint.
type AIConfig struct {
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"` // openai or anthropic

	LLMBaseURL string `yaml:"llm_base_url" env:"AI_LLM_BASE_URL" env-default:"https://api.openai.com/v1"`
	LLMModel   string `yaml:"llm_model" env:"AI_LLM_MODEL" env-default:"gpt-4o"`
	LLMAPIKey  string `yaml:"-" env:"AI_LLM_API_KEY"` // Secret - not in YAML

	EmbeddingBaseURL string `yaml:"embedding_base_url" env:"AI_EMBEDDING_BASE_URL" env-default:""`
	EmbeddingModel   string `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	EmbeddingAPIKey  string `yaml:"-" env:"AI_EMBEDDING_API_KEY"` // Secret - not in YAML

	// MaxConcurrentCalls bounds parallel LLM calls during detection.
	MaxConcurrentCalls int `yaml:"max_concurrent_calls" env:"AI_MAX_CONCURRENT_CALLS" env-default:"4"`
}

// EffectiveEmbeddingBaseURL falls back to the chat endpoint when no
// dedicated embedding endpoint is configured.
func (c *AIConfig) EffectiveEmbeddingBaseURL() string {
	if c.EmbeddingBaseURL != "" {
		return c.EmbeddingBaseURL
	}
	return c.LLMBaseURL
}

// EffectiveEmbeddingAPIKey falls back to the chat key.
func (c *AIConfig) EffectiveEmbeddingAPIKey() string {
	if c.EmbeddingAPIKey != "" {
		return c.EmbeddingAPIKey
	}
	return c.LLMAPIKey
}

// GraphConfig holds graph store settings.
type GraphConfig struct {
	// StoreDimensions is the fixed vector dimension of the pgvector
	// columns. Must match the vector(N) width in the migrations.
	StoreDimensions int `yaml:"store_dimensions" env:"GRAPH_STORE_DIMENSIONS" env-default:"2048"`
}

// DetectionConfig tunes the relationship detector.
type DetectionConfig struct {
	SourceBatchSize     int     `yaml:"source_batch_size" env:"DETECTION_SOURCE_BATCH_SIZE" env-default:"20"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"DETECTION_CONFIDENCE_THRESHOLD" env-default:"0.6"`
	RunTimeoutMinutes   int     `yaml:"run_timeout_minutes" env:"DETECTION_RUN_TIMEOUT_MINUTES" env-default:"60"`
}

// SearchConfig holds default similarity thresholds per search mode.
type SearchConfig struct {
	AnalyticsThreshold  float64 `yaml:"analytics_threshold" env:"SEARCH_ANALYTICS_THRESHOLD" env-default:"0.6"`
	DataMiningThreshold float64 `yaml:"datamining_threshold" env:"SEARCH_DATAMINING_THRESHOLD" env-default:"0.40"`
}

// DefaultThreshold returns the configured default for a mode.
func (c *SearchConfig) DefaultThreshold(mode models.SearchMode) float64 {
	if mode == models.SearchModeDataMining {
		return c.DataMiningThreshold
	}
	return c.AnalyticsThreshold
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints cleanenv cannot express.
func (c *Config) Validate() error {
	if c.Graph.StoreDimensions <= 0 {
		return fmt.Errorf("graph.store_dimensions must be positive, got %d", c.Graph.StoreDimensions)
	}
	for name, threshold := range map[string]float64{
		"search.analytics_threshold":  c.Search.AnalyticsThreshold,
		"search.datamining_threshold": c.Search.DataMiningThreshold,
	} {
		if threshold < models.MinSearchThreshold || threshold > models.MaxSearchThreshold {
			return fmt.Errorf("%s %.3f out of range [%.1f, %.2f]",
				name, threshold, models.MinSearchThreshold, models.MaxSearchThreshold)
		}
	}
	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		return fmt.Errorf("detection.confidence_threshold %.3f out of range [0, 1]", c.Detection.ConfidenceThreshold)
	}
	return nil
}
