// Package config defines the top-level configuration of the ledger daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LEDGER_* environment variables.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Settlement SettlementConfig `toml:"settlement"`
	Worker     WorkerConfig     `toml:"worker"`
	Oracle     OracleConfig     `toml:"oracle"`
	Storage    StorageConfig    `toml:"storage"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// duration wraps time.Duration so it can be decoded from TOML strings like
// "30s" or "5m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards every route but health and metrics. Empty disables it.
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// LedgerConfig holds the global bounds applied to market creation. Amounts
// are decimal coin strings.
type LedgerConfig struct {
	MinInitialPool string   `toml:"min_initial_pool"`
	MaxInitialPool string   `toml:"max_initial_pool"`
	MinBet         string   `toml:"min_bet"`
	MaxBet         string   `toml:"max_bet"`
	MinDuration    duration `toml:"min_duration"`
	MaxDuration    duration `toml:"max_duration"`
}

// SettlementConfig controls how resolved markets pay out.
type SettlementConfig struct {
	// AutoCredit deposits rewards into balances at resolution.
	AutoCredit bool `toml:"auto_credit"`
	// NoWinner is "hold" or "refund".
	NoWinner string   `toml:"no_winner"`
	LockTTL  duration `toml:"lock_ttl"`
	// BalanceBook enables the balance sink of the storage backend.
	BalanceBook bool `toml:"balance_book"`
}

// WorkerConfig holds the background market worker parameters.
type WorkerConfig struct {
	Interval        duration `toml:"interval"`
	BatchSize       int      `toml:"batch_size"`
	AuditRetention  duration `toml:"audit_retention"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// OracleConfig holds resolver credentials.
type OracleConfig struct {
	// ResolverKey authorises close, resolve and resettle calls.
	ResolverKey string `toml:"resolver_key"`
	// Addresses whose signatures may resolve markets.
	Addresses []string `toml:"addresses"`

	// Signing key for the sign-resolution command.
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// StorageConfig selects the store backend.
type StorageConfig struct {
	// Backend is "memory", "postgres" or "sqlite".
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled the daemon
// falls back to in-process locks, cache, bus and rate limiter.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	CacheTTL   duration `toml:"cache_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramAPIURL    string   `toml:"telegram_api_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Ledger: LedgerConfig{
			MinInitialPool: "0.1",
			MaxInitialPool: "100",
			MinBet:         "0.001",
			MaxBet:         "10",
			MinDuration:    duration{time.Hour},
			MaxDuration:    duration{365 * 24 * time.Hour},
		},
		Settlement: SettlementConfig{
			NoWinner:    "hold",
			LockTTL:     duration{30 * time.Second},
			BalanceBook: true,
		},
		Worker: WorkerConfig{
			Interval:        duration{30 * time.Second},
			BatchSize:       100,
			AuditRetention:  duration{90 * 24 * time.Hour},
			ArchiveInterval: duration{24 * time.Hour},
		},
		Storage: StorageConfig{
			Backend:    "memory",
			SQLitePath: "marketledger.db",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "marketledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "marketledger:",
			CacheTTL:   duration{5 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "marketledger-archive",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{domain.EventMarketResolved, domain.EventCreditFailed},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"api":    true,
	"worker": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"memory":   true,
	"postgres": true,
	"sqlite":   true,
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: api, worker, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be in 1..65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	errs = append(errs, c.Ledger.validate()...)

	// Settlement
	switch c.Settlement.NoWinner {
	case "hold":
	case "refund":
		if !c.Settlement.BalanceBook {
			errs = append(errs, "settlement: no_winner = \"refund\" requires balance_book")
		}
	default:
		errs = append(errs, fmt.Sprintf("settlement: no_winner must be hold or refund, got %q", c.Settlement.NoWinner))
	}
	if c.Settlement.AutoCredit && !c.Settlement.BalanceBook {
		errs = append(errs, "settlement: auto_credit requires balance_book")
	}
	if c.Settlement.LockTTL.Duration <= 0 {
		errs = append(errs, "settlement: lock_ttl must be positive")
	}

	// Worker
	if c.Worker.Interval.Duration <= 0 {
		errs = append(errs, "worker: interval must be positive")
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, "worker: batch_size must be positive")
	}

	// Oracle: the api needs at least one way to authorise resolutions.
	if c.Mode != "worker" && c.Oracle.ResolverKey == "" && len(c.Oracle.Addresses) == 0 {
		errs = append(errs, "oracle: resolver_key or addresses must be set")
	}
	for _, a := range c.Oracle.Addresses {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("oracle: %q is not an address", a))
		}
	}
	if c.Oracle.EncryptedKeyPath != "" && c.Oracle.KeyPassword == "" {
		errs = append(errs, "oracle: key_password is required when encrypted_key_path is set")
	}

	// Storage
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: memory, postgres, sqlite)", c.Storage.Backend))
	}
	if c.Storage.Backend == "sqlite" && c.Storage.SQLitePath == "" {
		errs = append(errs, "storage: sqlite_path must not be empty")
	}
	if c.Storage.Backend == "postgres" && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty (or set postgres.dsn)")
		}
	}
	if c.Storage.Backend == "memory" && c.Mode == "worker" {
		errs = append(errs, "storage: worker mode needs a shared backend, not memory")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (l LedgerConfig) validate() []string {
	var errs []string
	bounds := []struct {
		name     string
		min, max string
	}{
		{"initial_pool", l.MinInitialPool, l.MaxInitialPool},
		{"bet", l.MinBet, l.MaxBet},
	}
	for _, b := range bounds {
		lo, err := domain.ParseAmount(b.min)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ledger: min_%s: %v", b.name, err))
			continue
		}
		hi, err := domain.ParseAmount(b.max)
		if err != nil {
			errs = append(errs, fmt.Sprintf("ledger: max_%s: %v", b.name, err))
			continue
		}
		if lo <= 0 || hi < lo {
			errs = append(errs, fmt.Sprintf("ledger: %s bounds must satisfy 0 < min <= max", b.name))
		}
	}
	if l.MinDuration.Duration <= 0 || l.MaxDuration.Duration < l.MinDuration.Duration {
		errs = append(errs, "ledger: duration bounds must satisfy 0 < min_duration <= max_duration")
	}
	return errs
}
