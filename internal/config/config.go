// Package config loads application settings.
// Priority: environment > YAML file > defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	// Store selects the backend: postgres or memory.
	Store    string         `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Transfer TransferConfig `yaml:"transfer"`
}

// DatabaseConfig configures the pool and transaction defaults.
type DatabaseConfig struct {
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
	Serializable     bool          `yaml:"serializable"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// HTTPConfig configures cmd/server.
type HTTPConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// IdempotencyTTL is how long X-Idempotency-Key responses are kept; 0 disables.
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

// TransferConfig configures the transfer service.
type TransferConfig struct {
	// ForbiddenRule is a CEL expression; true forbids the transfer.
	ForbiddenRule  string `yaml:"forbidden_rule"`
	AllowOverdraft bool   `yaml:"allow_overdraft"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Store: "postgres",
		Database: DatabaseConfig{
			MaxConns:         10,
			MinConns:         2,
			StatementTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Development: true,
		},
		HTTP: HTTPConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			IdempotencyTTL:  24 * time.Hour,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg, os.Getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values that would fail later in less obvious ways.
func (c Config) Validate() error {
	if c.Store != "postgres" && c.Store != "memory" {
		return fmt.Errorf("store must be postgres or memory, got %q", c.Store)
	}
	if c.Database.MaxConns < 0 || c.Database.MinConns < 0 {
		return fmt.Errorf("database pool sizes must not be negative")
	}
	if c.Database.MaxConns > 0 && c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) exceeds database.max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if c.HTTP.IdempotencyTTL < 0 {
		return fmt.Errorf("http.idempotency_ttl must not be negative")
	}
	if c.Database.StatementTimeout < 0 {
		return fmt.Errorf("database.statement_timeout must not be negative")
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	int32v := func(key string, dst *int32) {
		if v := getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 32); err == nil {
				*dst = int32(n)
			}
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("APP_STORE", &cfg.Store)
	str("DATABASE_URL", &cfg.Database.DSN)
	int32v("DB_MAX_CONNS", &cfg.Database.MaxConns)
	int32v("DB_MIN_CONNS", &cfg.Database.MinConns)
	duration("TX_STATEMENT_TIMEOUT", &cfg.Database.StatementTimeout)
	boolean("TX_SERIALIZABLE", &cfg.Database.Serializable)

	str("LOG_LEVEL", &cfg.Log.Level)
	if v := getenv("APP_ENV"); v != "" {
		cfg.Log.Development = v == "development"
	}

	str("APP_PORT", &cfg.HTTP.Port)
	duration("IDEMPOTENCY_TTL", &cfg.HTTP.IdempotencyTTL)

	str("TRANSFER_FORBIDDEN_RULE", &cfg.Transfer.ForbiddenRule)
	boolean("TRANSFER_ALLOW_OVERDRAFT", &cfg.Transfer.AllowOverdraft)
}
