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
// built-in defaults, applies STAKEBOARD_* environment variable overrides, and
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

// applyEnvOverrides reads well-known STAKEBOARD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "STAKEBOARD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STAKEBOARD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STAKEBOARD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STAKEBOARD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STAKEBOARD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STAKEBOARD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STAKEBOARD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STAKEBOARD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STAKEBOARD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STAKEBOARD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "STAKEBOARD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STAKEBOARD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STAKEBOARD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STAKEBOARD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STAKEBOARD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STAKEBOARD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "STAKEBOARD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STAKEBOARD_S3_REGION")
	setStr(&cfg.S3.Bucket, "STAKEBOARD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STAKEBOARD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STAKEBOARD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STAKEBOARD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STAKEBOARD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STAKEBOARD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STAKEBOARD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STAKEBOARD_SERVER_CORS_ORIGINS")
	setStringSlice(&cfg.Server.APIKeys, "STAKEBOARD_SERVER_API_KEYS")

	// ── Escrow ──
	setDuration(&cfg.Escrow.DisputeWindow, "STAKEBOARD_ESCROW_DISPUTE_WINDOW")
	setDuration(&cfg.Escrow.SweepInterval, "STAKEBOARD_ESCROW_SWEEP_INTERVAL")

	// ── Bounty ──
	setDuration(&cfg.Bounty.DefaultClaimWindow, "STAKEBOARD_BOUNTY_DEFAULT_CLAIM_WINDOW")

	// ── Oracle ──
	setStr(&cfg.Oracle.ReporterAddress, "STAKEBOARD_ORACLE_REPORTER_ADDRESS")
	setStr(&cfg.Oracle.ReporterKey, "STAKEBOARD_ORACLE_REPORTER_KEY")
	setStr(&cfg.Oracle.EncryptedKeyPath, "STAKEBOARD_ORACLE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Oracle.KeyPassword, "STAKEBOARD_ORACLE_KEY_PASSWORD")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STAKEBOARD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STAKEBOARD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STAKEBOARD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STAKEBOARD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STAKEBOARD_MODE")
	setStr(&cfg.LogLevel, "STAKEBOARD_LOG_LEVEL")
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
