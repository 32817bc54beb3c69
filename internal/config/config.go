package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the hyroxreport server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Results  ResultsConfig
	Report   ReportConfig
	AI       AIConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port int
	Env  string
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

// ResultsConfig points at the SQLite file maintained by the results sync job.
type ResultsConfig struct {
	DBPath string
}

type ReportConfig struct {
	ConfigDir          string
	CohortCacheTTL     time.Duration
	SnapshotCacheTTL   time.Duration
	StatusTTL          time.Duration
	GenerationTimeout  time.Duration
	RateLimitPerMinute int
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Retry            RetryConfig
	OpenAI           EndpointConfig
	DashScope        EndpointConfig
	VLLM             EndpointConfig
	Ollama           EndpointConfig
}

// AuthConfig holds the optional admin key created on first start when no
// API key exists yet.
type AuthConfig struct {
	BootstrapKey string
}

// RetryConfig controls exponential backoff of oracle calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// EndpointConfig describes one OpenAI-compatible chat endpoint.
type EndpointConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

var validProviders = map[string]bool{
	"openai":    true,
	"dashscope": true,
	"vllm":      true,
	"ollama":    true,
}

// Endpoint returns the endpoint settings of the selected provider.
func (c AIConfig) Endpoint() EndpointConfig {
	switch c.Provider {
	case "openai":
		return c.OpenAI
	case "dashscope":
		return c.DashScope
	case "vllm":
		return c.VLLM
	case "ollama":
		return c.Ollama
	default:
		return EndpointConfig{}
	}
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("HYROX_PORT", 8080),
			Env:  envString("HYROX_ENV", "development"),
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
		Results: ResultsConfig{
			DBPath: os.Getenv("RESULTS_DB_PATH"),
		},
		Report: ReportConfig{
			ConfigDir:          envString("REPORT_CONFIG_DIR", "configs/report"),
			CohortCacheTTL:     envDuration("COHORT_CACHE_TTL", 6*time.Hour),
			SnapshotCacheTTL:   envDuration("SNAPSHOT_CACHE_TTL", time.Hour),
			StatusTTL:          envDuration("REPORT_STATUS_TTL", 30*time.Minute),
			GenerationTimeout:  envDuration("REPORT_GENERATION_TIMEOUT", 15*time.Minute),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		AI: AIConfig{
			Provider:         os.Getenv("AI_PROVIDER"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 120*time.Second),
			Retry: RetryConfig{
				MaxAttempts: envInt("AI_RETRY_MAX_ATTEMPTS", 3),
				BaseDelay:   envDuration("AI_RETRY_BASE_DELAY", time.Second),
				Multiplier:  envFloat("AI_RETRY_MULTIPLIER", 2.0),
			},
			OpenAI: EndpointConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			DashScope: EndpointConfig{
				BaseURL: envString("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
				APIKey:  os.Getenv("DASHSCOPE_API_KEY"),
				Model:   envString("DASHSCOPE_MODEL", "qwen-plus"),
			},
			VLLM: EndpointConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000/v1"),
				Model:   envString("VLLM_MODEL", ""),
			},
			Ollama: EndpointConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
		},
		Auth: AuthConfig{
			BootstrapKey: os.Getenv("BOOTSTRAP_ADMIN_KEY"),
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

	if c.Results.DBPath == "" {
		return fmt.Errorf("RESULTS_DB_PATH is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, dashscope, vllm, ollama; got %q", c.AI.Provider)
	}

	ep := c.AI.Endpoint()
	if !strings.HasPrefix(ep.BaseURL, "http://") && !strings.HasPrefix(ep.BaseURL, "https://") {
		return fmt.Errorf("%s base URL must start with http:// or https://, got %q", c.AI.Provider, ep.BaseURL)
	}
	if c.AI.Provider == "openai" && ep.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "dashscope" && ep.APIKey == "" {
		return fmt.Errorf("DASHSCOPE_API_KEY is required when AI_PROVIDER is dashscope")
	}
	if ep.Model == "" {
		return fmt.Errorf("a model name is required for AI_PROVIDER %s", c.AI.Provider)
	}

	if c.AI.Retry.MaxAttempts < 1 {
		return fmt.Errorf("AI_RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.AI.Retry.MaxAttempts)
	}
	if c.AI.Retry.Multiplier < 1 {
		return fmt.Errorf("AI_RETRY_MULTIPLIER must be at least 1, got %g", c.AI.Retry.Multiplier)
	}

	if k := c.Auth.BootstrapKey; k != "" && (!strings.HasPrefix(k, "hx_") || len(k) < 16) {
		return fmt.Errorf("BOOTSTRAP_ADMIN_KEY must start with hx_ and be at least 16 characters")
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

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
