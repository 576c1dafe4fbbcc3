// Package config loads engine configuration from config.yaml with
// environment-variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for askdb-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Store configuration: the engine's own PostgreSQL database where the
	// training corpus lives.
	Store StoreConfig `yaml:"store"`

	// Target configuration: the database questions are asked about.
	Target TargetConfig `yaml:"target"`

	// Model service configuration.
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Pipeline tuning.
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Policy     PolicyConfig     `yaml:"policy"`

	// SeedPath points at a YAML seed corpus loaded on --seed runs.
	SeedPath string `yaml:"seed_path" env:"SEED_PATH" env-default:"seed/corpus.yaml"`
}

// StoreConfig holds the engine's own PostgreSQL configuration.
type StoreConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"askdb"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"askdb_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *StoreConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// TargetConfig describes the queried database.
type TargetConfig struct {
	// Type selects the connector dialect: "postgres" or "mssql".
	Type     string `yaml:"type" env:"TARGET_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"TARGET_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"TARGET_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"TARGET_USER" env-default:""`
	Password string `yaml:"-" env:"TARGET_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"TARGET_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"TARGET_SSLMODE" env-default:"disable"`
}

// LLMConfig holds the language-model service configuration.
type LLMConfig struct {
	// Provider selects the client implementation: "openai" covers any
	// OpenAI-compatible endpoint, "anthropic" uses the Messages API.
	Provider  string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint  string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model     string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey    string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	MaxTokens int    `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"512"`

	// Temperature for SQL generation. Zero keeps drafts deterministic.
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`

	// TimeoutSeconds bounds each generation call. A timeout counts against
	// the session's retry budget, it is never treated as a crash.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`
}

// Timeout returns the per-call generation timeout.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EmbeddingConfig holds the embedding service configuration. Endpoint and key
// fall back to the LLM settings when empty.
type EmbeddingConfig struct {
	Endpoint string `yaml:"endpoint" env:"EMBEDDING_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey   string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
}

// EffectiveEndpoint returns the embedding endpoint, falling back to the LLM endpoint.
func (c *EmbeddingConfig) EffectiveEndpoint(llm *LLMConfig) string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return llm.Endpoint
}

// EffectiveAPIKey returns the embedding key, falling back to the LLM key.
func (c *EmbeddingConfig) EffectiveAPIKey(llm *LLMConfig) string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return llm.APIKey
}

// RetrievalConfig tunes corpus retrieval.
type RetrievalConfig struct {
	// TopK is the maximum number of retrieved examples.
	TopK int `yaml:"top_k" env:"RETRIEVAL_TOP_K" env-default:"5"`
	// MinScore is the similarity floor; examples below it are dropped rather
	// than passed on as low-confidence guesses.
	MinScore float64 `yaml:"min_score" env:"RETRIEVAL_MIN_SCORE" env-default:"0.30"`
	// MaxFragments caps the schema fragments handed to the composer.
	MaxFragments int `yaml:"max_fragments" env:"RETRIEVAL_MAX_FRAGMENTS" env-default:"8"`
}

// GenerationConfig tunes the generation and repair loop.
type GenerationConfig struct {
	// MaxAttempts is the session retry budget, counting the initial draft.
	MaxAttempts int `yaml:"max_attempts" env:"GENERATION_MAX_ATTEMPTS" env-default:"3"`
	// PromptBudget is the approximate token budget for a composed prompt.
	PromptBudget int `yaml:"prompt_budget" env:"GENERATION_PROMPT_BUDGET" env-default:"6000"`
	// DryRun enables a prepare-only check through the database connector
	// after static validation passes.
	DryRun bool `yaml:"dry_run" env:"GENERATION_DRY_RUN" env-default:"true"`
}

// ExecutionConfig tunes statement execution.
type ExecutionConfig struct {
	// TimeoutSeconds bounds each execution call.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"EXECUTION_TIMEOUT_SECONDS" env-default:"30"`
	// MaxRows caps the number of rows returned to the caller.
	MaxRows int `yaml:"max_rows" env:"EXECUTION_MAX_ROWS" env-default:"1000"`
}

// Timeout returns the per-call execution timeout.
func (c *ExecutionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PolicyConfig holds the statement allow-list.
type PolicyConfig struct {
	// AllowedStatementsStr is a comma-separated list of statement types the
	// execution adapter will dispatch. Default is read-only. DDL can never
	// be allowed regardless of this setting.
	AllowedStatementsStr string `yaml:"allowed_statements" env:"POLICY_ALLOWED_STATEMENTS" env-default:"SELECT"`

	// AllowedStatements is the parsed list (not from config file).
	AllowedStatements []string `yaml:"-"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.parseComplexFields()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Policy.AllowedStatements = splitAndTrim(c.Policy.AllowedStatementsStr)
}

func (c *Config) validate() error {
	switch c.Target.Type {
	case "postgres", "mssql":
	default:
		return fmt.Errorf("unsupported target type %q (expected postgres or mssql)", c.Target.Type)
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider %q (expected openai or anthropic)", c.LLM.Provider)
	}

	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("generation.max_attempts must be at least 1")
	}

	return nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
