package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Connection.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.Connection.ReconnectDelay)
	assert.Equal(t, 5, cfg.Connection.MaxAttempts)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.Connection.Endpoint = "" }},
		{"zero connect timeout", func(c *Config) { c.Connection.ConnectTimeout = 0 }},
		{"zero reconnect delay", func(c *Config) { c.Connection.ReconnectDelay = 0 }},
		{"zero max attempts", func(c *Config) { c.Connection.MaxAttempts = 0 }},
		{"zero ping interval", func(c *Config) { c.Transport.PingInterval = 0 }},
		{"zero buffer size", func(c *Config) { c.Transport.BufferSize = 0 }},
		{"empty roster url", func(c *Config) { c.Roster.BaseURL = "" }},
		{"empty cache path", func(c *Config) { c.Roster.CachePath = "" }},
		{"nil log", func(c *Config) { c.Log = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("CLASSWIRE_ENDPOINT", "ws://example.test/ws")
	t.Setenv("CLASSWIRE_TOKEN", "secret")
	t.Setenv("CLASSWIRE_RECONNECT_DELAY", "5s")
	t.Setenv("CLASSWIRE_MAX_ATTEMPTS", "9")
	t.Setenv("CLASSWIRE_LOG_LEVEL", "debug")

	cfg := LoadFromEnv()
	assert.Equal(t, "ws://example.test/ws", cfg.Connection.Endpoint)
	assert.Equal(t, "secret", cfg.Connection.Token)
	assert.Equal(t, 5*time.Second, cfg.Connection.ReconnectDelay)
	assert.Equal(t, 9, cfg.Connection.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromEnvIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("CLASSWIRE_RECONNECT_DELAY", "not-a-duration")
	t.Setenv("CLASSWIRE_MAX_ATTEMPTS", "many")

	cfg := LoadFromEnv()
	assert.Equal(t, 2*time.Second, cfg.Connection.ReconnectDelay)
	assert.Equal(t, 5, cfg.Connection.MaxAttempts)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classwire.yaml")
	data := `
connection:
  endpoint: ws://file.test/ws
  connect_timeout: 3s
  max_attempts: 2
roster:
  base_url: http://file.test
  refresh_interval: 30s
log:
  level: warn
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://file.test/ws", cfg.Connection.Endpoint)
	assert.Equal(t, 3*time.Second, cfg.Connection.ConnectTimeout)
	assert.Equal(t, 2, cfg.Connection.MaxAttempts)
	assert.Equal(t, "http://file.test", cfg.Roster.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Roster.RefreshInterval)
	assert.Equal(t, "warn", cfg.Log.Level)

	// Untouched sections keep defaults.
	assert.Equal(t, 2*time.Second, cfg.Connection.ReconnectDelay)
	assert.Equal(t, 100, cfg.Transport.BufferSize)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadWithPrecedenceFileWins(t *testing.T) {
	t.Setenv("CLASSWIRE_ENDPOINT", "ws://env.test/ws")

	path := filepath.Join(t.TempDir(), "classwire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("connection:\n  endpoint: ws://file.test/ws\n"), 0o644))

	cfg := LoadWithPrecedence(path)
	assert.Equal(t, "ws://file.test/ws", cfg.Connection.Endpoint)

	cfg = LoadWithPrecedence("")
	assert.Equal(t, "ws://env.test/ws", cfg.Connection.Endpoint)
}
