package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"backoffice/internal/logger"
)

// Config holds the service configuration.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	HTTPAddr    string `yaml:"http_addr"`
	JWTSecret   string `yaml:"jwt_secret"`
	Currency    string `yaml:"currency"`
	Timezone    string `yaml:"timezone"`

	Log      LogConfig      `yaml:"log"`
	Sequence SequenceConfig `yaml:"sequence"`
	Outbox   OutboxConfig   `yaml:"outbox"`
}

// LogConfig controls the zerolog setup.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SequenceConfig bounds retries on the reference counters.
type SequenceConfig struct {
	MaxAttempts    uint          `yaml:"max_attempts"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// OutboxConfig controls the background dispatcher.
type OutboxConfig struct {
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	BatchSize        int           `yaml:"batch_size"`
}

// Load reads .env (if present), environment variables and the optional YAML
// file named by BACKOFFICE_CONFIG. Values in the file override the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	logDefaults := logger.DefaultConfig()
	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:   getEnv("AUTH_JWT_SECRET", getEnv("JWT_SECRET", "")),
		Currency:    getEnv("CURRENCY", "EUR"),
		Timezone:    getEnv("TIMEZONE", "UTC"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", logDefaults.Level),
			Format: getEnv("LOG_FORMAT", logDefaults.Format),
			Output: getEnv("LOG_OUTPUT", logDefaults.Output),
		},
		Sequence: SequenceConfig{
			MaxAttempts:    uint(getEnvInt("SEQUENCE_MAX_ATTEMPTS", 5)),
			BackoffInitial: getEnvDuration("SEQUENCE_BACKOFF_INITIAL", 20*time.Millisecond),
			BackoffMax:     getEnvDuration("SEQUENCE_BACKOFF_MAX", 500*time.Millisecond),
		},
		Outbox: OutboxConfig{
			DispatchInterval: getEnvDuration("OUTBOX_DISPATCH_INTERVAL", 2*time.Second),
			BatchSize:        getEnvInt("OUTBOX_BATCH_SIZE", 100),
		},
	}

	if path := os.Getenv("BACKOFFICE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Location returns the time zone used for business dates and reference years.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// GetLoggerConfig converts to the logger package configuration.
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Output: c.Log.Output,
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL or PG_DSN is required")
	}
	if c.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if c.Currency == "" {
		return errors.New("CURRENCY must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("TIMEZONE %q is invalid: %w", c.Timezone, err)
	}
	if c.Sequence.MaxAttempts == 0 {
		return errors.New("SEQUENCE_MAX_ATTEMPTS must be positive")
	}
	if c.Sequence.BackoffMax < c.Sequence.BackoffInitial {
		return errors.New("SEQUENCE_BACKOFF_MAX must not be below SEQUENCE_BACKOFF_INITIAL")
	}
	if c.Outbox.DispatchInterval <= 0 {
		return errors.New("OUTBOX_DISPATCH_INTERVAL must be positive")
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("OUTBOX_BATCH_SIZE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
