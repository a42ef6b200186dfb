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
// built-in defaults, applies ARENA_* environment variable overrides, and
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

// applyEnvOverrides reads well-known ARENA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Protocol ──
	setUint64(&cfg.Protocol.FeeBps, "ARENA_PROTOCOL_FEE_BPS")
	setDuration(&cfg.Protocol.Duration, "ARENA_PROTOCOL_DURATION")
	setInt(&cfg.Protocol.MinPlayers, "ARENA_PROTOCOL_MIN_PLAYERS")
	setInt(&cfg.Protocol.MaxPlayers, "ARENA_PROTOCOL_MAX_PLAYERS")
	setInt(&cfg.Protocol.MaxPerAsset, "ARENA_PROTOCOL_MAX_PER_ASSET")
	setUint64(&cfg.Protocol.EntryMinValueUSD, "ARENA_PROTOCOL_ENTRY_MIN_VALUE_USD")
	setUint64(&cfg.Protocol.EntryMaxValueUSD, "ARENA_PROTOCOL_ENTRY_MAX_VALUE_USD")
	setUint64(&cfg.Protocol.FixedEntryAmount, "ARENA_PROTOCOL_FIXED_ENTRY_AMOUNT")
	setStr(&cfg.Protocol.PayoutScheme, "ARENA_PROTOCOL_PAYOUT_SCHEME")
	setInt(&cfg.Protocol.MovementPrecisionExp, "ARENA_PROTOCOL_MOVEMENT_PRECISION_EXP")
	setBool(&cfg.Protocol.AutoStart, "ARENA_PROTOCOL_AUTO_START")

	// ── Admin ──
	setStr(&cfg.Admin.Account, "ARENA_ADMIN_ACCOUNT")
	setStr(&cfg.Admin.APIToken, "ARENA_ADMIN_API_TOKEN")
	setStr(&cfg.Admin.EncryptedKeyPath, "ARENA_ADMIN_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Admin.KeyPassword, "ARENA_ADMIN_KEY_PASSWORD")

	// ── Oracle ──
	setStr(&cfg.Oracle.HTTPHost, "ARENA_ORACLE_HTTP_HOST")
	setStr(&cfg.Oracle.WsHost, "ARENA_ORACLE_WS_HOST")
	setDuration(&cfg.Oracle.MaxAge, "ARENA_ORACLE_MAX_AGE")
	setDuration(&cfg.Oracle.CacheTTL, "ARENA_ORACLE_CACHE_TTL")

	// ── Database ──
	setStr(&cfg.Database.DSN, "ARENA_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "ARENA_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "ARENA_DATABASE_HOST")
	setInt(&cfg.Database.Port, "ARENA_DATABASE_PORT")
	setStr(&cfg.Database.Database, "ARENA_DATABASE_DATABASE")
	setStr(&cfg.Database.User, "ARENA_DATABASE_USER")
	setStr(&cfg.Database.Password, "ARENA_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "ARENA_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "ARENA_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "ARENA_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "ARENA_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARENA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARENA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARENA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARENA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARENA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARENA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARENA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARENA_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARENA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARENA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARENA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARENA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARENA_S3_FORCE_PATH_STYLE")

	// ── Keeper ──
	setBool(&cfg.Keeper.Enabled, "ARENA_KEEPER_ENABLED")
	setDuration(&cfg.Keeper.TickInterval, "ARENA_KEEPER_TICK_INTERVAL")
	setDuration(&cfg.Keeper.ArchiveAfter, "ARENA_KEEPER_ARCHIVE_AFTER")
	setStr(&cfg.Keeper.ArchiveCron, "ARENA_KEEPER_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARENA_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARENA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARENA_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RatePerMinute, "ARENA_SERVER_RATE_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARENA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARENA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARENA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARENA_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARENA_MODE")
	setStr(&cfg.LogLevel, "ARENA_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
