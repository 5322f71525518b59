// Package config defines the top-level configuration for the position
// tracker and provides validation helpers.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by CHARTSAYER_* environment
// variables.
type Config struct {
	Redis    RedisConfig  `toml:"redis"`
	Risk     RiskConfig   `toml:"risk"`
	Server   ServerConfig `toml:"server"`
	Notify   NotifyConfig `toml:"notify"`
	LogLevel string       `toml:"log_level"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// RiskConfig holds the exposure pre-check settings. ExposureLimit is the
// maximum open notional (entry price times remaining size) per user;
// 0 disables the check. ExposurePolicy decides what a breach does:
// "reject" fails the create, "warn" logs and notifies but allows it.
type RiskConfig struct {
	ExposureLimit  decimal.Decimal `toml:"exposure_limit"`
	ExposurePolicy string          `toml:"exposure_policy"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns the built-in configuration used when the TOML file omits
// a field.
func Defaults() Config {
	return Config{
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Risk: RiskConfig{
			ExposurePolicy: "warn",
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration once at load time so later code can
// trust the enumerated fields.
func (c *Config) Validate() error {
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}

	switch strings.ToLower(c.Risk.ExposurePolicy) {
	case "reject", "warn":
		c.Risk.ExposurePolicy = strings.ToLower(c.Risk.ExposurePolicy)
	default:
		return fmt.Errorf("config: risk.exposure_policy must be \"reject\" or \"warn\", got %q", c.Risk.ExposurePolicy)
	}
	if c.Risk.ExposureLimit.IsNegative() {
		return fmt.Errorf("config: risk.exposure_limit must not be negative")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}

	// A Telegram token without a chat ID (or vice versa) can never deliver.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		return fmt.Errorf("config: notify.telegram_token and notify.telegram_chat_id must be set together")
	}

	return nil
}
