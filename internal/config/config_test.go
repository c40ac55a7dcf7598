package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bookswap.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, "demoapp", cfg.Auth.Secret)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL.Duration)
	assert.Equal(t, "file", cfg.Store.Driver)
	assert.Equal(t, "users.json", cfg.Store.UsersFile)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Empty(t, cfg.Telemetry.Endpoint)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = "8080"
request_timeout = "3s"
cors_origins = ["http://localhost:3000"]

[auth]
secret = "s3cret"
token_ttl = "1h"

[store]
dir = "/var/lib/bookswap"
reset_corrupt = true

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.RequestTimeout.Duration)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL.Duration)
	assert.Equal(t, "/var/lib/bookswap", cfg.Store.Dir)
	assert.True(t, cfg.Store.ResetCorrupt)
	assert.Equal(t, "books.json", cfg.Store.BooksFile, "unset keys keep defaults")
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = "8080"
`)
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DATA_DIR", "/tmp/books")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, "/tmp/books", cfg.Store.Dir)
	assert.Equal(t, slog.LevelWarn, cfg.Log.Level)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "collector:4318", cfg.Telemetry.Endpoint)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, `[server]
bogus = 1
`))
	assert.Error(t, err, "unknown keys are rejected")

	t.Setenv("LOG_LEVEL", "loud")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "dsn")

	cfg = Default()
	cfg.Auth.Secret = ""
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "secret")
	assert.ErrorContains(t, err, "log format")

	assert.NoError(t, Default().Validate())
}
