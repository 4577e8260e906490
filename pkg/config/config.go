package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultPath is the configuration file read when no explicit path is given.
const DefaultPath = "config.yaml"

// Config holds all configuration for datagenie.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Engine store (PostgreSQL) holding tenants, endpoints, the schema mirror and history.
	Database DatabaseConfig `yaml:"database"`

	// Per-endpoint tenant database pools.
	TenantPool TenantPoolConfig `yaml:"tenant_pool"`

	LLM      LLMConfig     `yaml:"llm"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	History  HistoryConfig `yaml:"history"`
	Cache    CacheConfig   `yaml:"schema_cache"`
	Redis    RedisConfig   `yaml:"redis"`

	// Encryption key for endpoint passwords.
	// Must be a 32-byte key, base64 encoded. Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"datagenie"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"datagenie"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// TenantPoolConfig bounds the pools opened against tenant databases.
// Defaults come from Defaults, not env-default (see there).
type TenantPoolConfig struct {
	// MaxConnections is the size of each per-endpoint pool.
	MaxConnections int32 `yaml:"max_connections" env:"TENANT_POOL_MAX_CONNECTIONS"`
	// IdleTTL is how long an unused pool is kept before it is closed.
	IdleTTL time.Duration `yaml:"idle_ttl" env:"TENANT_POOL_IDLE_TTL"`
	// MaxResultRows caps the rows read back by the execution gateway.
	MaxResultRows int `yaml:"max_result_rows" env:"TENANT_POOL_MAX_RESULT_ROWS"`
}

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"` // openai | anthropic
	BaseURL     string  `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2048"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
}

// TimeoutConfig holds the deadline applied to each external call.
// Zero disables a deadline.
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect" env:"TIMEOUT_CONNECT"`
	LLM     time.Duration `yaml:"llm" env:"TIMEOUT_LLM"`
	Planner time.Duration `yaml:"planner" env:"TIMEOUT_PLANNER"`
	Query   time.Duration `yaml:"query" env:"TIMEOUT_QUERY"`
	Sync    time.Duration `yaml:"sync" env:"TIMEOUT_SYNC"`
}

// HistoryConfig toggles the query history audit trail.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled" env:"HISTORY_ENABLED"`
}

// CacheConfig controls memoization of the formatted schema text.
type CacheConfig struct {
	Backend string        `yaml:"backend" env:"SCHEMA_CACHE_BACKEND" env-default:"memory"` // memory | redis | none
	TTL     time.Duration `yaml:"ttl" env:"SCHEMA_CACHE_TTL" env-default:"10m"`
}

// RedisConfig holds Redis connection settings for the shared schema cache.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Defaults returns the settings whose zero value is meaningful: a disabled
// history, a disabled timeout, or a pool size that must be rejected.
// cleanenv applies env-default to every field still zero after the file is
// read, which would turn an explicit `enabled: false` back into true, so
// these fields are seeded here instead.
func Defaults() Config {
	return Config{
		TenantPool: TenantPoolConfig{
			MaxConnections: 5,
			IdleTTL:        30 * time.Minute,
			MaxResultRows:  1000,
		},
		Timeouts: TimeoutConfig{
			Connect: 10 * time.Second,
			LLM:     60 * time.Second,
			Planner: 15 * time.Second,
			Query:   30 * time.Second,
			Sync:    5 * time.Minute,
		},
		History: HistoryConfig{Enabled: true},
	}
}

// Load reads configuration from path with environment variable overrides.
// A missing file is not an error; defaults and the environment are used instead.
func Load(path, version string) (*Config, error) {
	defaults := Defaults()
	cfg := &defaults
	cfg.Version = version

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}

	if c.TenantPool.MaxConnections <= 0 {
		return fmt.Errorf("tenant_pool.max_connections must be positive, got %d", c.TenantPool.MaxConnections)
	}
	if c.TenantPool.MaxResultRows <= 0 {
		return fmt.Errorf("tenant_pool.max_result_rows must be positive, got %d", c.TenantPool.MaxResultRows)
	}

	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("schema_cache.backend is redis but redis.host is empty")
		}
	default:
		return fmt.Errorf("unsupported schema_cache.backend %q", c.Cache.Backend)
	}

	if c.CredentialsKey != "" {
		key, err := base64.StdEncoding.DecodeString(c.CredentialsKey)
		if err != nil {
			return fmt.Errorf("CREDENTIALS_KEY is not valid base64: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("CREDENTIALS_KEY must decode to 32 bytes, got %d", len(key))
		}
	}

	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the host:port Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
