// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/pacifica-bot/internal/vault"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all application configuration.
type Config struct {
	Port            string        `env:"PORT" env-default:"8080"`
	DBPath          string        `env:"DB_PATH" env-default:"./data/pacifica-bot.db"`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	EncryptionKey   string        `env:"ENCRYPTION_KEY"`
	TelegramToken   string        `env:"TELEGRAM_BOT_TOKEN"`
	GatewayToken    string        `env:"GATEWAY_TOKEN"`
	AllowedOrigins  []string      `env:"GATEWAY_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	PacificaURL     string        `env:"PACIFICA_BASE_URL" env-default:"https://api.pacifica.fi/api/v1"`
	PacificaTimeout time.Duration `env:"PACIFICA_TIMEOUT" env-default:"30s"`
	PriceCacheTTL   time.Duration `env:"PRICE_CACHE_TTL" env-default:"5s"`
	Session         SessionConfig
	Worker          WorkerConfig

	masterKey vault.MasterKey
}

// SessionConfig controls conversational session lifetime.
type SessionConfig struct {
	TTL           time.Duration `env:"SESSION_TTL" env-default:"15m"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" env-default:"1m"`
}

// WorkerConfig sizes the pool that runs outbound calls.
type WorkerConfig struct {
	PoolSize  int `env:"WORKER_POOL_SIZE" env-default:"8"`
	QueueSize int `env:"WORKER_QUEUE_SIZE" env-default:"256"`
}

// FatalConfigError reports configuration the process cannot start with.
type FatalConfigError struct {
	Var string
	Err error
}

func (e *FatalConfigError) Error() string {
	return fmt.Sprintf("fatal configuration error: %s: %v", e.Var, e.Err)
}

func (e *FatalConfigError) Unwrap() error { return e.Err }

func fatal(name string, err error) error {
	return &FatalConfigError{Var: name, Err: err}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks that all required configuration fields are set and parses
// the master key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.EncryptionKey) == "" {
		return fatal("ENCRYPTION_KEY", errors.New("not set"))
	}
	key, err := vault.ParseMasterKey(c.EncryptionKey)
	if err != nil {
		return fatal("ENCRYPTION_KEY", err)
	}
	c.masterKey = key
	// The raw text is not needed once parsed.
	c.EncryptionKey = ""

	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	u, err := url.Parse(c.PacificaURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PACIFICA_BASE_URL must be an absolute URL")
	}
	if c.PacificaTimeout <= 0 {
		return fmt.Errorf("PACIFICA_TIMEOUT must be > 0")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.Worker.PoolSize <= 0 {
		return fmt.Errorf("WORKER_POOL_SIZE must be > 0")
	}
	if c.Worker.QueueSize <= 0 {
		return fmt.Errorf("WORKER_QUEUE_SIZE must be > 0")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// MasterKey returns the parsed vault key.
func (c *Config) MasterKey() vault.MasterKey {
	return c.masterKey
}

// GatewayEnabled reports whether the chat gateway routes are mounted.
func (c *Config) GatewayEnabled() bool {
	return c.GatewayToken != ""
}

// TelegramEnabled reports whether the Telegram transport should start.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
	}
}
