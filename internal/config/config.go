// Package config provides configuration management for telerelay.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// DefaultPath is the config file looked up when no path is given.
const DefaultPath = "telerelay.toml"

// Config holds all configuration for the relay server.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
	Storage  StorageConfig  `toml:"storage"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig controls the HTTP front door.
type ServerConfig struct {
	// Addr is the address the HTTP server listens on (e.g. ":8080").
	Addr string `toml:"addr"`
	// AllowedOrigins lists CORS origins for the browser relay. Empty means any.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// TelegramConfig holds Bot API settings and update-delivery tuning.
type TelegramConfig struct {
	// Token is the bot token from @BotFather.
	Token string `toml:"token"`
	// WebhookURL is the public HTTPS URL Telegram pushes updates to.
	WebhookURL string `toml:"webhook_url"`
	// APIEndpoint is a fmt pattern taking the token and the method name.
	APIEndpoint string `toml:"api_endpoint"`

	// PollTimeout is the long-poll hint passed to getUpdates, in seconds.
	PollTimeout int `toml:"poll_timeout"`
	// PollRetryDelayMS is the pause after a failed getUpdates call.
	PollRetryDelayMS int `toml:"poll_retry_delay_ms"`
	// EmptyPollLimit is the number of consecutive empty polls that ends pull mode.
	EmptyPollLimit int `toml:"empty_poll_limit"`
	// FastDeliveryGapMS is the webhook delivery gap below which pull mode is requested.
	FastDeliveryGapMS int `toml:"fast_delivery_gap_ms"`
}

// StorageConfig locates the session database.
type StorageConfig struct {
	Path     string `toml:"path"`
	MaxConns int    `toml:"max_conns"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Output string `toml:"output"`
}

// Load reads the TOML file at path (DefaultPath when empty), applies
// environment overrides and fills defaults.
// Values are resolved in order: environment variable > config file > default.
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnv(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Telegram.Token = envOr("TELEGRAM_BOT_TOKEN", cfg.Telegram.Token)
	cfg.Telegram.WebhookURL = envOr("TELEGRAM_WEBHOOK", cfg.Telegram.WebhookURL)
	cfg.Telegram.APIEndpoint = envOr("TELEGRAM_API_ENDPOINT", cfg.Telegram.APIEndpoint)
	cfg.Telegram.PollTimeout = envOrInt("TELERELAY_POLL_TIMEOUT", cfg.Telegram.PollTimeout)

	cfg.Storage.Path = envOr("DB_FILE", cfg.Storage.Path)
	cfg.Storage.MaxConns = envOrInt("TELERELAY_DB_MAX_CONNS", cfg.Storage.MaxConns)

	// LISTEN_ADDR + LISTEN_PORT mirror the classic .env layout; TELERELAY_ADDR wins.
	if host, port := os.Getenv("LISTEN_ADDR"), os.Getenv("LISTEN_PORT"); port != "" {
		cfg.Server.Addr = host + ":" + port
	}
	cfg.Server.Addr = envOr("TELERELAY_ADDR", cfg.Server.Addr)
	if v := os.Getenv("TELERELAY_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	cfg.Logging.Level = envOr("TELERELAY_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = envOr("TELERELAY_LOG_OUTPUT", cfg.Logging.Output)
}

func setDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Telegram.APIEndpoint == "" {
		cfg.Telegram.APIEndpoint = "https://api.telegram.org/bot%s/%s"
	}
	if cfg.Telegram.PollTimeout == 0 {
		cfg.Telegram.PollTimeout = 1024
	}
	if cfg.Telegram.PollRetryDelayMS == 0 {
		cfg.Telegram.PollRetryDelayMS = 1000
	}
	if cfg.Telegram.EmptyPollLimit == 0 {
		cfg.Telegram.EmptyPollLimit = 3
	}
	if cfg.Telegram.FastDeliveryGapMS == 0 {
		cfg.Telegram.FastDeliveryGapMS = 5000
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "telerelay.db"
	}
	if cfg.Storage.MaxConns == 0 {
		cfg.Storage.MaxConns = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return &ConfigError{Field: "telegram.token", Message: "TELEGRAM_BOT_TOKEN is required"}
	}
	if c.Telegram.WebhookURL == "" {
		return &ConfigError{Field: "telegram.webhook_url", Message: "TELEGRAM_WEBHOOK is required"}
	}
	u, err := url.Parse(c.Telegram.WebhookURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return &ConfigError{Field: "telegram.webhook_url", Message: "must be an absolute https URL"}
	}
	if strings.Count(c.Telegram.APIEndpoint, "%s") != 2 {
		return &ConfigError{Field: "telegram.api_endpoint", Message: "must contain two %s verbs (token, method)"}
	}
	if c.Telegram.PollTimeout < 0 {
		return &ConfigError{Field: "telegram.poll_timeout", Message: "must not be negative"}
	}
	if c.Telegram.PollRetryDelayMS < 0 {
		return &ConfigError{Field: "telegram.poll_retry_delay_ms", Message: "must not be negative"}
	}
	if c.Telegram.FastDeliveryGapMS < 0 {
		return &ConfigError{Field: "telegram.fast_delivery_gap_ms", Message: "must not be negative"}
	}
	if c.Telegram.EmptyPollLimit < 1 {
		return &ConfigError{Field: "telegram.empty_poll_limit", Message: "must be at least 1"}
	}
	if c.Storage.MaxConns < 1 {
		return &ConfigError{Field: "storage.max_conns", Message: "must be at least 1"}
	}
	return nil
}

// PollRetryDelay returns the pause after a failed poll.
func (c *Config) PollRetryDelay() time.Duration {
	return time.Duration(c.Telegram.PollRetryDelayMS) * time.Millisecond
}

// FastDeliveryGap returns the webhook gap below which pull mode is requested.
func (c *Config) FastDeliveryGap() time.Duration {
	return time.Duration(c.Telegram.FastDeliveryGapMS) * time.Millisecond
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
