package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies CHARTSAYER_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known CHARTSAYER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CHARTSAYER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CHARTSAYER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CHARTSAYER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CHARTSAYER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CHARTSAYER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CHARTSAYER_REDIS_TLS_ENABLED")

	// ── Risk ──
	setDecimal(&cfg.Risk.ExposureLimit, "CHARTSAYER_RISK_EXPOSURE_LIMIT")
	setStr(&cfg.Risk.ExposurePolicy, "CHARTSAYER_RISK_EXPOSURE_POLICY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CHARTSAYER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CHARTSAYER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CHARTSAYER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CHARTSAYER_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CHARTSAYER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CHARTSAYER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CHARTSAYER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CHARTSAYER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "CHARTSAYER_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
