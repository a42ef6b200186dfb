// Package config defines the top-level configuration for the arena engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARENA_* environment variables.
type Config struct {
	Protocol ProtocolConfig `toml:"protocol"`
	Admin    AdminConfig    `toml:"admin"`
	Oracle   OracleConfig   `toml:"oracle"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Keeper   KeeperConfig   `toml:"keeper"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ProtocolConfig holds the contest parameters seeded into the protocol state
// on first initialization. After that the persisted state is authoritative
// and these values are ignored unless the administrator re-applies them.
type ProtocolConfig struct {
	FeeBps      uint64   `toml:"fee_bps"`
	Duration    duration `toml:"duration"`
	MinPlayers  int      `toml:"min_players"`
	MaxPlayers  int      `toml:"max_players"`
	MaxPerAsset int      `toml:"max_per_asset"`
	// EntryMinValueUSD / EntryMaxValueUSD bound the oracle-quoted value of an
	// entry in whole dollars. Zero on both disables the band and entries are
	// admitted at a fixed amount instead.
	EntryMinValueUSD uint64 `toml:"entry_min_value_usd"`
	EntryMaxValueUSD uint64 `toml:"entry_max_value_usd"`
	// FixedEntryAmount is the required stake (6-decimal units) when the value
	// band is disabled.
	FixedEntryAmount uint64 `toml:"fixed_entry_amount"`
	// PayoutScheme selects how the pool is divided: "shared_pool" splits the
	// whole pool flat across winners; "pairwise" pays each winner per losing
	// entry it claims.
	PayoutScheme string `toml:"payout_scheme"`
	// MovementPrecisionExp is the power-of-ten exponent for movement
	// fixed-point math (4 = basis points, 12 = fine resolution).
	MovementPrecisionExp int `toml:"movement_precision_exp"`
	// AutoStart begins the round as soon as the arena fills; when false a
	// filled arena waits for the administrator to start it.
	AutoStart bool `toml:"auto_start"`
}

// AdminConfig holds administrator identity and API credentials.
type AdminConfig struct {
	// Account is the administrator's ledger account, set as protocol admin on
	// first initialization.
	Account string `toml:"account"`
	// APIToken guards the admin HTTP surface. Leave it empty and set
	// EncryptedKeyPath to load the credential from an encrypted file instead.
	APIToken         string `toml:"api_token"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// OracleConfig holds price oracle endpoints and freshness bounds.
type OracleConfig struct {
	HTTPHost string `toml:"http_host"`
	WsHost   string `toml:"ws_host"`
	// MaxAge is the oldest acceptable quote; older quotes are rejected.
	MaxAge duration `toml:"max_age"`
	// CacheTTL bounds how long a cached quote is served before a fresh fetch.
	CacheTTL duration `toml:"cache_ttl"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for arena archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// KeeperConfig holds parameters for the background automation loops.
type KeeperConfig struct {
	Enabled bool `toml:"enabled"`
	// TickInterval is how often the keeper scans for arenas due a phase
	// transition.
	TickInterval duration `toml:"tick_interval"`
	// ArchiveAfter is how long a terminal arena stays in the database before
	// the archiver ships it to object storage.
	ArchiveAfter duration `toml:"archive_after"`
	ArchiveCron  string   `toml:"archive_cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// RatePerMinute caps participant API calls per identity; 0 disables
	// throttling.
	RatePerMinute int `toml:"rate_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// PayoutScheme values accepted by ProtocolConfig.PayoutScheme.
const (
	PayoutSharedPool = "shared_pool"
	PayoutPairwise   = "pairwise"
)

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Protocol: ProtocolConfig{
			FeeBps:               1000,
			Duration:             duration{time.Hour},
			MinPlayers:           2,
			MaxPlayers:           10,
			MaxPerAsset:          3,
			EntryMinValueUSD:     10,
			EntryMaxValueUSD:     20,
			FixedEntryAmount:     10_000_000,
			PayoutScheme:         PayoutSharedPool,
			MovementPrecisionExp: 4,
			AutoStart:            true,
		},
		Oracle: OracleConfig{
			HTTPHost: "https://hermes.pyth.network",
			WsHost:   "wss://hermes.pyth.network",
			MaxAge:   duration{60 * time.Second},
			CacheTTL: duration{5 * time.Second},
		},
		Database: DatabaseConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "arena",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arena-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Keeper: KeeperConfig{
			Enabled:      true,
			TickInterval: duration{5 * time.Second},
			ArchiveAfter: duration{90 * 24 * time.Hour},
			ArchiveCron:  "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:       true,
			Port:          8000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			RatePerMinute: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"arena_started", "arena_settled", "arena_cancelled", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":  true,
	"keeper": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, keeper, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Protocol
	p := &c.Protocol
	if p.FeeBps >= 10_000 {
		errs = append(errs, fmt.Sprintf("protocol: fee_bps must be below 10000, got %d", p.FeeBps))
	}
	if p.Duration.Duration <= 0 {
		errs = append(errs, "protocol: duration must be positive")
	}
	if p.MinPlayers < 1 {
		errs = append(errs, "protocol: min_players must be >= 1")
	}
	if p.MaxPlayers < p.MinPlayers {
		errs = append(errs, "protocol: max_players must be >= min_players")
	}
	if p.MaxPlayers > 128 {
		errs = append(errs, fmt.Sprintf("protocol: max_players must not exceed 128, got %d", p.MaxPlayers))
	}
	if p.MaxPerAsset < 1 {
		errs = append(errs, "protocol: max_per_asset must be >= 1")
	}
	if p.PayoutScheme != PayoutSharedPool && p.PayoutScheme != PayoutPairwise {
		errs = append(errs, fmt.Sprintf("protocol: unknown payout_scheme %q (valid: shared_pool, pairwise)", p.PayoutScheme))
	}
	if p.MovementPrecisionExp < 4 || p.MovementPrecisionExp > 12 {
		errs = append(errs, fmt.Sprintf("protocol: movement_precision_exp must be 4-12, got %d", p.MovementPrecisionExp))
	}
	bandEnabled := p.EntryMinValueUSD != 0 || p.EntryMaxValueUSD != 0
	if bandEnabled {
		if p.EntryMinValueUSD == 0 || p.EntryMaxValueUSD < p.EntryMinValueUSD {
			errs = append(errs, "protocol: entry value band requires 0 < entry_min_value_usd <= entry_max_value_usd")
		}
	} else if p.FixedEntryAmount == 0 {
		errs = append(errs, "protocol: fixed_entry_amount must be > 0 when the entry value band is disabled")
	}

	// Admin
	if c.Admin.Account == "" {
		errs = append(errs, "admin: account must not be empty")
	}
	if c.Server.Enabled && c.Admin.APIToken == "" && c.Admin.EncryptedKeyPath == "" {
		errs = append(errs, "admin: api_token or encrypted_key_path is required when the server is enabled")
	}
	if c.Admin.EncryptedKeyPath != "" && c.Admin.KeyPassword == "" {
		errs = append(errs, "admin: key_password is required when encrypted_key_path is set")
	}

	// Oracle
	if bandEnabled && c.Oracle.HTTPHost == "" {
		errs = append(errs, "oracle: http_host must not be empty when the entry value band is enabled")
	}
	if c.Oracle.MaxAge.Duration <= 0 {
		errs = append(errs, "oracle: max_age must be positive")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Keeper
	if c.Keeper.Enabled {
		if c.Keeper.TickInterval.Duration <= 0 {
			errs = append(errs, "keeper: tick_interval must be positive when enabled")
		}
		if c.Keeper.ArchiveAfter.Duration <= 0 {
			errs = append(errs, "keeper: archive_after must be positive when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RatePerMinute < 0 {
			errs = append(errs, "server: rate_per_minute must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// MovementPrecision returns the fixed-point multiplier implied by
// MovementPrecisionExp.
func (p ProtocolConfig) MovementPrecision() int64 {
	m := int64(1)
	for i := 0; i < p.MovementPrecisionExp; i++ {
		m *= 10
	}
	return m
}

// EntryBandEnabled reports whether entries are admitted by oracle-quoted
// value rather than a fixed stake.
func (p ProtocolConfig) EntryBandEnabled() bool {
	return p.EntryMinValueUSD != 0 || p.EntryMaxValueUSD != 0
}
