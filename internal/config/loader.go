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
// built-in defaults, applies LEDGER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
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

// applyEnvOverrides reads well-known LEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "LEDGER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LEDGER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "LEDGER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "LEDGER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "LEDGER_SERVER_RATE_WINDOW")

	// ── Ledger ──
	setStr(&cfg.Ledger.MinInitialPool, "LEDGER_LEDGER_MIN_INITIAL_POOL")
	setStr(&cfg.Ledger.MaxInitialPool, "LEDGER_LEDGER_MAX_INITIAL_POOL")
	setStr(&cfg.Ledger.MinBet, "LEDGER_LEDGER_MIN_BET")
	setStr(&cfg.Ledger.MaxBet, "LEDGER_LEDGER_MAX_BET")
	setDuration(&cfg.Ledger.MinDuration, "LEDGER_LEDGER_MIN_DURATION")
	setDuration(&cfg.Ledger.MaxDuration, "LEDGER_LEDGER_MAX_DURATION")

	// ── Settlement ──
	setBool(&cfg.Settlement.AutoCredit, "LEDGER_SETTLEMENT_AUTO_CREDIT")
	setStr(&cfg.Settlement.NoWinner, "LEDGER_SETTLEMENT_NO_WINNER")
	setDuration(&cfg.Settlement.LockTTL, "LEDGER_SETTLEMENT_LOCK_TTL")
	setBool(&cfg.Settlement.BalanceBook, "LEDGER_SETTLEMENT_BALANCE_BOOK")

	// ── Worker ──
	setDuration(&cfg.Worker.Interval, "LEDGER_WORKER_INTERVAL")
	setInt(&cfg.Worker.BatchSize, "LEDGER_WORKER_BATCH_SIZE")
	setDuration(&cfg.Worker.AuditRetention, "LEDGER_WORKER_AUDIT_RETENTION")
	setDuration(&cfg.Worker.ArchiveInterval, "LEDGER_WORKER_ARCHIVE_INTERVAL")

	// ── Oracle ──
	setStr(&cfg.Oracle.ResolverKey, "LEDGER_ORACLE_RESOLVER_KEY")
	setStringSlice(&cfg.Oracle.Addresses, "LEDGER_ORACLE_ADDRESSES")
	setStr(&cfg.Oracle.PrivateKey, "LEDGER_ORACLE_PRIVATE_KEY")
	setStr(&cfg.Oracle.EncryptedKeyPath, "LEDGER_ORACLE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Oracle.KeyPassword, "LEDGER_ORACLE_KEY_PASSWORD")

	// ── Storage ──
	setStr(&cfg.Storage.Backend, "LEDGER_STORAGE_BACKEND")
	setStr(&cfg.Storage.SQLitePath, "LEDGER_STORAGE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "LEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LEDGER_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LEDGER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "LEDGER_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.CacheTTL, "LEDGER_REDIS_CACHE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "LEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "LEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LEDGER_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramAPIURL, "LEDGER_NOTIFY_TELEGRAM_API_URL")
	setStr(&cfg.Notify.TelegramToken, "LEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LEDGER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LEDGER_MODE")
	setStr(&cfg.LogLevel, "LEDGER_LOG_LEVEL")
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
