package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the PulseDesk server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Batch    BatchConfig
	Progress ProgressConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// BackendConfig selects and configures the scoring backend. Exactly one
// provider is active per deployment.
type BackendConfig struct {
	Provider    string
	Timeout     time.Duration
	MaxRetries  int
	Concurrency int64
	Gemini      GeminiConfig
	OpenAI      OpenAIConfig
}

type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// BatchConfig bounds how pending units are partitioned into jobs.
// Strategy "count" caps units per batch; "tokens" caps the cumulative
// token estimate per batch.
type BatchConfig struct {
	Strategy    string
	MaxUnits    int
	TokenBudget int
}

type ProgressConfig struct {
	MaxErrors int
	MaxAge    time.Duration
}

var validProviders = map[string]bool{
	"gemini": true,
	"openai": true,
	"mock":   true,
}

var validStrategies = map[string]bool{
	"count":  true,
	"tokens": true,
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("PULSEDESK_PORT", 8080),
			Env:               envString("PULSEDESK_ENV", "development"),
			RequestsPerMinute: envInt("PULSEDESK_REQUESTS_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Backend: BackendConfig{
			Provider:    envString("SCORING_PROVIDER", "gemini"),
			Timeout:     envDurationSecs("SCORING_TIMEOUT_SECS", 120*time.Second),
			MaxRetries:  envInt("SCORING_MAX_RETRIES", 2),
			Concurrency: int64(envInt("SCORING_CONCURRENCY", 5)),
			Gemini: GeminiConfig{
				BaseURL: envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				Model:   envString("GEMINI_MODEL", "gemini-1.5-flash"),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
		},
		Batch: BatchConfig{
			Strategy:    envString("BATCH_STRATEGY", "tokens"),
			MaxUnits:    envInt("BATCH_MAX_UNITS", 10),
			TokenBudget: envInt("BATCH_TOKEN_BUDGET", 16000),
		},
		Progress: ProgressConfig{
			MaxErrors: envInt("PROGRESS_MAX_ERRORS", 20),
			MaxAge:    envDuration("PROGRESS_MAX_AGE", 24*time.Hour),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validProviders[c.Backend.Provider] {
		return fmt.Errorf("SCORING_PROVIDER must be one of gemini, openai, mock; got %q", c.Backend.Provider)
	}
	if c.Backend.Provider == "gemini" && c.Backend.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when SCORING_PROVIDER is gemini")
	}
	if c.Backend.Provider == "openai" && c.Backend.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when SCORING_PROVIDER is openai")
	}
	if c.Backend.Concurrency < 1 {
		return fmt.Errorf("SCORING_CONCURRENCY must be at least 1, got %d", c.Backend.Concurrency)
	}

	if !validStrategies[c.Batch.Strategy] {
		return fmt.Errorf("BATCH_STRATEGY must be one of count, tokens; got %q", c.Batch.Strategy)
	}
	if c.Batch.Strategy == "count" && c.Batch.MaxUnits < 1 {
		return fmt.Errorf("BATCH_MAX_UNITS must be at least 1, got %d", c.Batch.MaxUnits)
	}
	if c.Batch.Strategy == "tokens" && c.Batch.TokenBudget < 1 {
		return fmt.Errorf("BATCH_TOKEN_BUDGET must be at least 1, got %d", c.Batch.TokenBudget)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
