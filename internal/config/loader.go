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
// built-in defaults, applies TRADEPOST_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known TRADEPOST_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "TRADEPOST_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEPOST_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.LoginRateLimit, "TRADEPOST_SERVER_LOGIN_RATE_LIMIT")
	setDuration(&cfg.Server.LoginRateWindow, "TRADEPOST_SERVER_LOGIN_RATE_WINDOW")

	// ── Database ──
	setStr(&cfg.Database.DSN, "TRADEPOST_DATABASE_DSN")
	setStr(&cfg.Database.Host, "TRADEPOST_DATABASE_HOST")
	setInt(&cfg.Database.Port, "TRADEPOST_DATABASE_PORT")
	setStr(&cfg.Database.Database, "TRADEPOST_DATABASE_NAME")
	setStr(&cfg.Database.User, "TRADEPOST_DATABASE_USER")
	setStr(&cfg.Database.Password, "TRADEPOST_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "TRADEPOST_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "TRADEPOST_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "TRADEPOST_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "TRADEPOST_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADEPOST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEPOST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEPOST_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEPOST_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEPOST_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEPOST_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEPOST_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEPOST_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEPOST_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEPOST_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEPOST_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEPOST_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEPOST_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "TRADEPOST_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "TRADEPOST_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.MaxAge, "TRADEPOST_ARCHIVE_MAX_AGE")
	setStr(&cfg.Archive.Prefix, "TRADEPOST_ARCHIVE_PREFIX")

	// ── Steam ──
	setStr(&cfg.Steam.APIKey, "TRADEPOST_STEAM_API_KEY")
	setInt(&cfg.Steam.AppID, "TRADEPOST_STEAM_APP_ID")
	setStr(&cfg.Steam.BaseURL, "TRADEPOST_STEAM_BASE_URL")
	setDuration(&cfg.Steam.Timeout, "TRADEPOST_STEAM_TIMEOUT")
	setInt(&cfg.Steam.MaxRetries, "TRADEPOST_STEAM_MAX_RETRIES")
	setDuration(&cfg.Steam.RetryPause, "TRADEPOST_STEAM_RETRY_PAUSE")

	// ── Auth ──
	setDuration(&cfg.Auth.TokenTTL, "TRADEPOST_AUTH_TOKEN_TTL")
	setStr(&cfg.Auth.Secret, "TRADEPOST_AUTH_SECRET")
	setStr(&cfg.Auth.EncryptedSecretPath, "TRADEPOST_AUTH_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Auth.SecretPassword, "TRADEPOST_AUTH_SECRET_PASSWORD")
	setBool(&cfg.Auth.SingleSession, "TRADEPOST_AUTH_SINGLE_SESSION")

	// ── Sweeper ──
	setDuration(&cfg.Sweeper.Interval, "TRADEPOST_SWEEPER_INTERVAL")
	setDuration(&cfg.Sweeper.SessionIdle, "TRADEPOST_SWEEPER_SESSION_IDLE")
	setDuration(&cfg.Sweeper.PresenceIdle, "TRADEPOST_SWEEPER_PRESENCE_IDLE")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "TRADEPOST_LOG_LEVEL")
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
