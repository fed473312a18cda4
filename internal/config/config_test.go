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
	cfg.Oracle.ReporterAddress = "0xaaa0000000000000000000000000000000000001"
	return cfg
}

func TestDefaultsValidateWithReporter(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Redis.Addr = ""
	cfg.Escrow.SweepInterval = duration{0}
	cfg.Oracle.ReporterAddress = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "sweep_interval")
	assert.Contains(t, err.Error(), "reporter_address")
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Oracle.EncryptedKeyPath = "reporter.key.json"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "serve"

[postgres]
host = "db.internal"

[escrow]
dispute_window = "48h"
sweep_interval = "30s"

[oracle]
reporter_address = "0xaaa0000000000000000000000000000000000001"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 48*time.Hour, cfg.Escrow.DisputeWindow.Duration)
	assert.Equal(t, 30*time.Second, cfg.Escrow.SweepInterval.Duration)

	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 6*time.Hour, cfg.Bounty.DefaultClaimWindow.Duration)

	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeTOML(t, `
[escrow]
dispute_window = "soon"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STAKEBOARD_POSTGRES_PASSWORD", "s3cret")
	t.Setenv("STAKEBOARD_SERVER_PORT", "9001")
	t.Setenv("STAKEBOARD_SERVER_API_KEYS", "k1,k2")
	t.Setenv("STAKEBOARD_ESCROW_DISPUTE_WINDOW", "12h")

	path := writeTOML(t, `
[oracle]
reporter_address = "0xaaa0000000000000000000000000000000000001"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Postgres.Password)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, 12*time.Hour, cfg.Escrow.DisputeWindow.Duration)
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg-secret"
	cfg.Redis.Password = "redis-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Oracle.ReporterKey = "deadbeef"
	cfg.Oracle.KeyPassword = "pw"
	cfg.Notify.TelegramToken = "tok"
	cfg.Server.APIKeys = []string{"k1", "k2"}

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Oracle.ReporterKey)
	assert.Equal(t, "***", red.Oracle.KeyPassword)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	assert.Equal(t, []string{"***", "***"}, red.Server.APIKeys)

	// The original is untouched.
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)
}
