package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Oracle.ResolverKey = "resolver"
	return cfg
}

func TestDefaultsNeedOnlyAResolver(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle: resolver_key or addresses must be set")

	cfg = validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
		{"rate limit without window", func(c *Config) { c.Server.RateWindow.Duration = 0 }, "rate_window"},
		{"bad bet bound", func(c *Config) { c.Ledger.MinBet = "abc" }, "ledger: min_bet"},
		{"inverted pool bounds", func(c *Config) { c.Ledger.MinInitialPool = "200" }, "initial_pool bounds"},
		{"inverted durations", func(c *Config) { c.Ledger.MinDuration.Duration = 400 * 24 * time.Hour }, "duration bounds"},
		{"unknown no-winner policy", func(c *Config) { c.Settlement.NoWinner = "burn" }, "no_winner must be"},
		{"refund without balances", func(c *Config) {
			c.Settlement.NoWinner = "refund"
			c.Settlement.BalanceBook = false
		}, "requires balance_book"},
		{"auto credit without balances", func(c *Config) {
			c.Settlement.AutoCredit = true
			c.Settlement.BalanceBook = false
		}, "auto_credit requires balance_book"},
		{"bad oracle address", func(c *Config) { c.Oracle.Addresses = []string{"0x123"} }, "not an address"},
		{"encrypted key without password", func(c *Config) { c.Oracle.EncryptedKeyPath = "oracle.key" }, "key_password"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "mongo" }, "unknown backend"},
		{"postgres without host", func(c *Config) {
			c.Storage.Backend = "postgres"
			c.Postgres.Host = ""
		}, "postgres: host"},
		{"worker on memory", func(c *Config) { c.Mode = "worker" }, "worker mode needs a shared backend"},
		{"s3 without bucket", func(c *Config) {
			c.S3.Enabled = true
			c.S3.Bucket = ""
		}, "s3: bucket"},
		{"half telegram config", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_token and telegram_chat_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "nope"
	cfg.Server.Port = -1
	cfg.Storage.Backend = "nope"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "server: port")
	assert.Contains(t, err.Error(), "unknown backend")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "api"

[server]
port = 9090
rate_window = "30s"

[settlement]
no_winner = "refund"
lock_ttl = "1m"

[oracle]
addresses = ["0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"]

[storage]
backend = "sqlite"
sqlite_path = "/tmp/ledger.db"
`), 0o600))

	t.Setenv("LEDGER_SERVER_PORT", "9191")
	t.Setenv("LEDGER_REDIS_ENABLED", "true")
	t.Setenv("LEDGER_NOTIFY_EVENTS", "market_resolved, reward_claimed")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "api", cfg.Mode)
	assert.Equal(t, 9191, cfg.Server.Port, "env overrides the file")
	assert.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
	assert.Equal(t, "refund", cfg.Settlement.NoWinner)
	assert.Equal(t, time.Minute, cfg.Settlement.LockTTL.Duration)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"market_resolved", "reward_claimed"}, cfg.Notify.Events)
	assert.Equal(t, "0.001", cfg.Ledger.MinBet, "defaults survive a partial file")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Server.APIKey = "api"
	cfg.Oracle.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "pw"
	cfg.S3.SecretKey = "s3"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Server.APIKey)
	assert.Equal(t, redacted, out.Oracle.ResolverKey)
	assert.Equal(t, redacted, out.Oracle.PrivateKey)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.S3.SecretKey)
	assert.Equal(t, redacted, out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.Redis.Password, "empty secrets stay empty")

	out.Notify.Events[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Notify.Events[0])
	assert.Equal(t, "api", cfg.Server.APIKey)
}
