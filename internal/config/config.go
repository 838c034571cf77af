// Package config defines the top-level configuration for the tradepost
// server and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by TRADEPOST_* environment
// variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Steam    SteamConfig    `toml:"steam"`
	Auth     AuthConfig     `toml:"auth"`
	Sweeper  SweeperConfig  `toml:"sweeper"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// LoginRateLimit / LoginRateWindow bound login attempts per client IP.
	LoginRateLimit  int      `toml:"login_rate_limit"`
	LoginRateWindow duration `toml:"login_rate_window"`
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

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the transaction-history snapshot job.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	// MaxAge is how old a record must be before it is snapshotted.
	MaxAge duration `toml:"max_age"`
	Prefix string   `toml:"prefix"`
}

// SteamConfig holds the external ticket-verification parameters. An empty
// APIKey switches the identity gateway into its development fallback.
type SteamConfig struct {
	APIKey     string   `toml:"api_key"`
	AppID      int      `toml:"app_id"`
	BaseURL    string   `toml:"base_url"`
	Timeout    duration `toml:"timeout"`
	MaxRetries int      `toml:"max_retries"`
	RetryPause duration `toml:"retry_pause"`
}

// AuthConfig holds token issuance parameters.
type AuthConfig struct {
	TokenTTL duration `toml:"token_ttl"`
	// Secret is the raw HMAC signing secret. Alternatively point
	// EncryptedSecretPath at a file produced by crypto.EncryptSecret and
	// supply SecretPassword.
	Secret              string `toml:"secret"`
	EncryptedSecretPath string `toml:"encrypted_secret_path"`
	SecretPassword      string `toml:"secret_password"`
	// SingleSession force-closes an identity's open presence sessions
	// when a new token is issued. Off by default: concurrent sessions
	// per identity are allowed.
	SingleSession bool `toml:"single_session"`
}

// SweeperConfig holds the reconciliation thresholds.
type SweeperConfig struct {
	Interval     duration `toml:"interval"`
	SessionIdle  duration `toml:"session_idle"`
	PresenceIdle duration `toml:"presence_idle"`
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

// Defaults returns a Config with the built-in default values. The TOML file
// and environment overrides are merged on top of it.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            5000,
			LoginRateLimit:  10,
			LoginRateWindow: duration{time.Minute},
		},
		Database: DatabaseConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Archive: ArchiveConfig{
			Interval: duration{24 * time.Hour},
			MaxAge:   duration{30 * 24 * time.Hour},
			Prefix:   "history",
		},
		Steam: SteamConfig{
			AppID:      294100,
			BaseURL:    "https://api.steampowered.com",
			Timeout:    duration{10 * time.Second},
			MaxRetries: 3,
			RetryPause: duration{time.Second},
		},
		Auth: AuthConfig{
			TokenTTL: duration{24 * time.Hour},
		},
		Sweeper: SweeperConfig{
			Interval:     duration{time.Hour},
			SessionIdle:  duration{2 * time.Hour},
			PresenceIdle: duration{24 * time.Hour},
		},
		LogLevel: "info",
	}
}

// Validate checks the configuration for values the server cannot start
// without.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.DSN == "" && (c.Database.Host == "" || c.Database.Database == "" || c.Database.User == "") {
		problems = append(problems, "database: either dsn or host/database/user must be set")
	}
	if c.Redis.Addr == "" {
		problems = append(problems, "redis.addr must be set")
	}
	if c.Auth.TokenTTL.Duration <= 0 {
		problems = append(problems, "auth.token_ttl must be positive")
	}
	if c.Auth.Secret == "" && c.Auth.EncryptedSecretPath == "" {
		problems = append(problems, "auth: either secret or encrypted_secret_path must be set")
	}
	if c.Auth.EncryptedSecretPath != "" && c.Auth.Secret == "" && c.Auth.SecretPassword == "" {
		problems = append(problems, "auth.secret_password required with encrypted_secret_path")
	}
	if c.Sweeper.Interval.Duration <= 0 {
		problems = append(problems, "sweeper.interval must be positive")
	}
	if c.Archive.Enabled {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			problems = append(problems, "archive enabled but s3.bucket/s3.region not set")
		}
		if c.Archive.Interval.Duration <= 0 {
			problems = append(problems, "archive.interval must be positive")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}
