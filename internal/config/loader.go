package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BCHBET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BCHBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BCHBET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BCHBET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BCHBET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BCHBET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BCHBET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BCHBET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BCHBET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BCHBET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BCHBET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BCHBET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BCHBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BCHBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BCHBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BCHBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BCHBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BCHBET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BCHBET_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BCHBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BCHBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "BCHBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BCHBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BCHBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BCHBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BCHBET_S3_FORCE_PATH_STYLE")

	// ── Indexer ──
	setStr(&cfg.Indexer.Backend, "BCHBET_INDEXER_BACKEND")
	setStr(&cfg.Indexer.BaseURL, "BCHBET_INDEXER_BASE_URL")
	setStr(&cfg.Indexer.APIKey, "BCHBET_INDEXER_API_KEY")
	setDuration(&cfg.Indexer.Timeout, "BCHBET_INDEXER_TIMEOUT")

	// ── Rate ──
	setStr(&cfg.Rate.BaseURL, "BCHBET_RATE_BASE_URL")
	setDuration(&cfg.Rate.PollInterval, "BCHBET_RATE_POLL_INTERVAL")
	setDuration(&cfg.Rate.Timeout, "BCHBET_RATE_TIMEOUT")

	// ── Market ──
	setStr(&cfg.Market.TicketPriceUSD, "BCHBET_MARKET_TICKET_PRICE_USD")
	setStr(&cfg.Market.PrizePoolUSD, "BCHBET_MARKET_PRIZE_POOL_USD")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.MonitorInterval, "BCHBET_PIPELINE_MONITOR_INTERVAL")
	setInt(&cfg.Pipeline.Workers, "BCHBET_PIPELINE_WORKERS")
	setDuration(&cfg.Pipeline.LockTTL, "BCHBET_PIPELINE_LOCK_TTL")
	setDuration(&cfg.Pipeline.ArchiveInterval, "BCHBET_PIPELINE_ARCHIVE_INTERVAL")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "BCHBET_PIPELINE_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BCHBET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BCHBET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BCHBET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BCHBET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BCHBET_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "BCHBET_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BCHBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BCHBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BCHBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BCHBET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BCHBET_MODE")
	setStr(&cfg.LogLevel, "BCHBET_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
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
