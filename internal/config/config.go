// Package config loads and validates environment variables at startup.
// Fail-fast: an impossible value stops the process before anything connects.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// PostgresEmbeddingDimensions is the width of the listings.embedding column.
const PostgresEmbeddingDimensions = 768

// Config holds all runtime configuration for the discovery service.
type Config struct {
	Port     int    `env:"DISCOVERY_PORT" envDefault:"8081"`
	GRPCPort int    `env:"DISCOVERY_GRPC_PORT" envDefault:"9081"`
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`

	// Empty DatabaseURL selects the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`
	// Empty RedisURL disables the embedding cache and ingestion events.
	RedisURL string `env:"REDIS_URL"`

	AdzunaAppID    string `env:"ADZUNA_APP_ID"`
	AdzunaAppKey   string `env:"ADZUNA_APP_KEY"`
	AdzunaCountry  string `env:"ADZUNA_COUNTRY" envDefault:"us"`
	FindworkAPIKey string `env:"FINDWORK_API_KEY"`
	SourcesFile    string `env:"SOURCES_FILE"`

	GeminiAPIKey        string        `env:"GEMINI_API_KEY"`
	ClassifierModel     string        `env:"CLASSIFIER_MODEL" envDefault:"gemini-2.0-flash"`
	ClassifierTimeout   time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"30s"`
	EmbeddingProvider   string        `env:"EMBEDDING_PROVIDER" envDefault:"gemini"`
	EmbeddingModel      string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-004"`
	EmbeddingDimensions int           `env:"EMBEDDING_DIMENSIONS" envDefault:"768"`
	EmbeddingCacheTTL   time.Duration `env:"EMBEDDING_CACHE_TTL" envDefault:"168h"`
	OpenAIAPIKey        string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	HTTPTimeout        time.Duration `env:"SOURCE_HTTP_TIMEOUT" envDefault:"20s"`
	PrimaryInterval    time.Duration `env:"PRIMARY_INTERVAL" envDefault:"15m"`
	EntryInterval      time.Duration `env:"ENTRY_INTERVAL" envDefault:"15m"`
	EntryOffset        time.Duration `env:"ENTRY_OFFSET" envDefault:"7m"`
	CleanupSpec        string        `env:"CLEANUP_SPEC" envDefault:"0 2 * * *"`
	RetentionDays      int           `env:"RETENTION_DAYS" envDefault:"30"`
	RunOnStart         bool          `env:"RUN_ON_START" envDefault:"true"`
	CandidatePoolLimit int           `env:"CANDIDATE_POOL_LIMIT" envDefault:"500"`

	CORSAllowOrigins string `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	RateLimitPerMin  int    `env:"RATE_LIMIT_PER_MIN" envDefault:"30"`

	// Skills drives the primary sweep: every source is queried once per skill.
	Skills []string `env:"SCRAPE_SKILLS" envSeparator:"," envDefault:"python,javascript,java,react,node.js,sql,aws,docker,machine learning,data science,customer service,marketing,sales,design,writing"`
}

// Load reads environment variables and returns a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.PrimaryInterval < time.Minute {
		errs = append(errs, fmt.Errorf("PRIMARY_INTERVAL must be at least 1m, got %s", c.PrimaryInterval))
	}
	if c.EntryInterval < time.Minute {
		errs = append(errs, fmt.Errorf("ENTRY_INTERVAL must be at least 1m, got %s", c.EntryInterval))
	}
	if c.EntryOffset < 0 {
		errs = append(errs, fmt.Errorf("ENTRY_OFFSET must not be negative, got %s", c.EntryOffset))
	}
	if c.RetentionDays < 1 {
		errs = append(errs, fmt.Errorf("RETENTION_DAYS must be a positive integer, got %d", c.RetentionDays))
	}
	if c.EmbeddingDimensions < 1 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions))
	} else if !c.UsesMemoryStore() && c.EmbeddingProvider != "none" && c.EmbeddingDimensions != PostgresEmbeddingDimensions {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must be %d with DATABASE_URL set (column is vector(%d)), got %d",
			PostgresEmbeddingDimensions, PostgresEmbeddingDimensions, c.EmbeddingDimensions))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SOURCE_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout))
	}
	switch c.EmbeddingProvider {
	case "gemini", "openai", "none":
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER must be gemini, openai or none, got %q", c.EmbeddingProvider))
	}
	if len(c.Skills) == 0 {
		errs = append(errs, errors.New("SCRAPE_SKILLS must list at least one skill"))
	}
	return errors.Join(errs...)
}

// UsesMemoryStore reports whether no database is configured.
func (c *Config) UsesMemoryStore() bool { return c.DatabaseURL == "" }
