package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.LoginRateLimit)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL.Duration)
	assert.False(t, cfg.Auth.SingleSession)
	assert.Equal(t, time.Hour, cfg.Sweeper.Interval.Duration)
	assert.Equal(t, 2*time.Hour, cfg.Sweeper.SessionIdle.Duration)
	assert.Equal(t, 24*time.Hour, cfg.Sweeper.PresenceIdle.Duration)
	assert.Equal(t, 294100, cfg.Steam.AppID)
	assert.Equal(t, 3, cfg.Steam.MaxRetries)
	assert.Equal(t, time.Second, cfg.Steam.RetryPause.Duration)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[server]
port = 8080
cors_origins = ["https://example.com"]

[auth]
token_ttl = "12h"
secret = "file-secret"
single_session = true

[sweeper]
session_idle = "90m"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL.Duration)
	assert.True(t, cfg.Auth.SingleSession)
	assert.Equal(t, 90*time.Minute, cfg.Sweeper.SessionIdle.Duration)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Hour, cfg.Sweeper.Interval.Duration)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRADEPOST_SERVER_PORT", "9000")
	t.Setenv("TRADEPOST_AUTH_SECRET", "env-secret")
	t.Setenv("TRADEPOST_AUTH_TOKEN_TTL", "6h")
	t.Setenv("TRADEPOST_AUTH_SINGLE_SESSION", "true")
	t.Setenv("TRADEPOST_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Auth.Secret)
	assert.Equal(t, 6*time.Hour, cfg.Auth.TokenTTL.Duration)
	assert.True(t, cfg.Auth.SingleSession)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestEnvOverridesBeatTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 8080\n"), 0o600))

	t.Setenv("TRADEPOST_SERVER_PORT", "9001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Defaults()
		cfg.Database.DSN = "postgres://localhost/tradepost"
		cfg.Auth.Secret = "secret"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		cfg := base()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing database", func(t *testing.T) {
		cfg := base()
		cfg.Database.DSN = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing secret", func(t *testing.T) {
		cfg := base()
		cfg.Auth.Secret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("encrypted secret without password", func(t *testing.T) {
		cfg := base()
		cfg.Auth.Secret = ""
		cfg.Auth.EncryptedSecretPath = "/etc/tradepost/secret.json"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("archive enabled without bucket", func(t *testing.T) {
		cfg := base()
		cfg.Archive.Enabled = true
		assert.Error(t, cfg.Validate())
	})
}
