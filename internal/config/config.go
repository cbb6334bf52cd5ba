// Package config handles loading and validating configuration from environment
// variables and an optional YAML limits file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Usage store backends.
const (
	UsageStorePostgres = "postgres"
	UsageStoreSQLite   = "sqlite"
)

// Rate limit store backends.
const (
	RateLimitStoreRedis  = "redis"
	RateLimitStoreMemory = "memory"
)

// Config holds all configuration for the code generation service.
type Config struct {
	// Server
	Port           string
	LogLevel       string
	AllowedOrigins []string

	// Auth
	JWTSecret string // HMAC secret of the bearer tokens issued by the auth service

	// Usage log
	UsageStore        string // postgres | sqlite
	SQLitePath        string
	UsageWriteTimeout time.Duration

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// Rate limiting
	RateLimitStore    string // redis | memory; redis falls back to memory when unreachable
	RateLimitFailOpen bool   // If true, admit requests when the counter store errors
	LimitsFile        string
	Limits            Limits

	// Generation
	ProviderTimeout time.Duration
	MaxUploadSize   int64

	// Provider API keys (never stored)
	OpenAIKey string
	ClaudeKey string
	GeminiKey string

	// Provider base URL overrides; empty selects the public API.
	OpenAIBaseURL string
	ClaudeBaseURL string
	GeminiBaseURL string
}

// Limits holds the rate limit policies. It is also the schema of the YAML
// limits file.
type Limits struct {
	Generation GenerationLimits `yaml:"generation"`
	Auth       AuthLimits       `yaml:"auth"`
}

// GenerationLimits are the plan-tiered allowances of the generation routes.
type GenerationLimits struct {
	Window  time.Duration `yaml:"window"`
	Free    int64         `yaml:"free"`
	Premium int64         `yaml:"premium"`
}

// AuthLimits is the per-address allowance of the auth routes.
type AuthLimits struct {
	Window time.Duration `yaml:"window"`
	Max    int64         `yaml:"max"`
}

// DefaultLimits returns the built-in rate limit policies.
func DefaultLimits() Limits {
	return Limits{
		Generation: GenerationLimits{Window: time.Hour, Free: 10, Premium: 100},
		Auth:       AuthLimits{Window: 15 * time.Minute, Max: 20},
	}
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:     getEnv("CODEGEN_PORT", "5000"),
		LogLevel: getEnv("CODEGEN_LOG_LEVEL", "info"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		UsageStore: strings.ToLower(getEnv("CODEGEN_USAGE_STORE", UsageStorePostgres)),
		SQLitePath: getEnv("CODEGEN_SQLITE_PATH", "data/usage.db"),

		DBHost:     getEnv("POSTGRES_HOST", "localhost"),
		DBName:     getEnv("POSTGRES_DB", "codegen"),
		DBUser:     getEnv("POSTGRES_USER", "codegen"),
		DBPassword: getEnv("POSTGRES_PASSWORD", ""),
		DBSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		RateLimitStore:    strings.ToLower(getEnv("CODEGEN_RATE_LIMIT_STORE", RateLimitStoreRedis)),
		RateLimitFailOpen: getEnv("CODEGEN_RATE_LIMIT_FAIL_OPEN", "true") == "true",
		LimitsFile:        os.Getenv("CODEGEN_LIMITS_FILE"),
		Limits:            DefaultLimits(),

		OpenAIKey: os.Getenv("OPENAI_API_KEY"),
		ClaudeKey: os.Getenv("CLAUDE_API_KEY"),
		GeminiKey: os.Getenv("GEMINI_API_KEY"),

		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		ClaudeBaseURL: os.Getenv("CLAUDE_BASE_URL"),
		GeminiBaseURL: os.Getenv("GEMINI_BASE_URL"),
	}

	originsStr := getEnv("CODEGEN_ALLOWED_ORIGINS", "http://localhost:5173")
	for _, origin := range strings.Split(originsStr, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	var err error
	if cfg.DBPort, err = strconv.Atoi(getEnv("POSTGRES_PORT", "5432")); err != nil {
		return nil, fmt.Errorf("invalid POSTGRES_PORT: %w", err)
	}
	if cfg.RedisPort, err = strconv.Atoi(getEnv("REDIS_PORT", "6379")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	if cfg.ProviderTimeout, err = time.ParseDuration(getEnv("CODEGEN_PROVIDER_TIMEOUT", "120s")); err != nil {
		return nil, fmt.Errorf("invalid CODEGEN_PROVIDER_TIMEOUT: %w", err)
	}
	if cfg.UsageWriteTimeout, err = time.ParseDuration(getEnv("CODEGEN_USAGE_WRITE_TIMEOUT", "5s")); err != nil {
		return nil, fmt.Errorf("invalid CODEGEN_USAGE_WRITE_TIMEOUT: %w", err)
	}
	if cfg.MaxUploadSize, err = strconv.ParseInt(getEnv("CODEGEN_MAX_UPLOAD_BYTES", "10485760"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid CODEGEN_MAX_UPLOAD_BYTES: %w", err)
	}

	if cfg.LimitsFile != "" {
		limits, err := LoadLimits(cfg.LimitsFile, cfg.Limits)
		if err != nil {
			return nil, err
		}
		cfg.Limits = limits
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadLimits overlays the YAML file at path onto base. Keys missing from the
// file keep their base values.
func LoadLimits(path string, base Limits) (Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Limits{}, fmt.Errorf("reading limits file: %w", err)
	}
	limits := base
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return Limits{}, fmt.Errorf("parsing limits file %s: %w", path, err)
	}
	return limits, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: CODEGEN_PORT is required")
	}
	switch c.UsageStore {
	case UsageStorePostgres, UsageStoreSQLite:
	default:
		return fmt.Errorf("config: unknown usage store %q", c.UsageStore)
	}
	switch c.RateLimitStore {
	case RateLimitStoreRedis, RateLimitStoreMemory:
	default:
		return fmt.Errorf("config: unknown rate limit store %q", c.RateLimitStore)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("config: provider timeout must be positive")
	}
	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("config: max upload size must be positive")
	}
	return c.Limits.Validate()
}

// Validate checks the rate limit policies.
func (l Limits) Validate() error {
	g := l.Generation
	if g.Window <= 0 {
		return fmt.Errorf("config: generation window must be positive")
	}
	if g.Free <= 0 {
		return fmt.Errorf("config: free tier allowance must be positive")
	}
	if g.Premium <= g.Free {
		return fmt.Errorf("config: premium allowance (%d) must exceed free allowance (%d)", g.Premium, g.Free)
	}
	if l.Auth.Window <= 0 || l.Auth.Max <= 0 {
		return fmt.Errorf("config: auth window and allowance must be positive")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// RedactedDSN returns the DSN with the password masked for safe logging.
func (c *Config) RedactedDSN() string {
	return fmt.Sprintf("postgres://%s:***@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// RedisAddr returns the Redis address in host:port format.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
