package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the system-wide settings coordinator for the realtime core.
type Config struct {
	Connection *ConnectionConfig
	Transport  *TransportConfig
	Roster     *RosterConfig
	Log        *LogConfig
}

// ConnectionConfig controls the managed connection lifecycle.
type ConnectionConfig struct {
	Endpoint       string
	Token          string
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	MaxAttempts    int
}

// TransportConfig tunes the underlying WebSocket transport.
type TransportConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// RosterConfig controls the class list source and its local cache.
type RosterConfig struct {
	BaseURL         string
	RefreshInterval time.Duration
	CachePath       string
}

// LogConfig selects logger level and encoder.
type LogConfig struct {
	Level  string
	Format string
}

// DefaultConfig returns production-ready defaults. The reconnect policy is a
// fixed short delay bounded by a maximum attempt count; the connect timeout
// guarantees Connecting never hangs indefinitely.
func DefaultConfig() *Config {
	return &Config{
		Connection: &ConnectionConfig{
			Endpoint:       "ws://localhost:8080/ws",
			ConnectTimeout: 10 * time.Second,
			ReconnectDelay: 2 * time.Second,
			MaxAttempts:    5,
		},
		Transport: &TransportConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Roster: &RosterConfig{
			BaseURL:         "http://localhost:8080",
			RefreshInterval: 60 * time.Second,
			CachePath:       "./classwire.db",
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Connection == nil {
		return fmt.Errorf("connection configuration is required")
	}
	if c.Connection.Endpoint == "" {
		return fmt.Errorf("connection endpoint cannot be empty")
	}
	if c.Connection.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.Connection.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	if c.Connection.MaxAttempts <= 0 {
		return fmt.Errorf("max reconnect attempts must be positive")
	}

	if c.Transport == nil {
		return fmt.Errorf("transport configuration is required")
	}
	if c.Transport.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive")
	}
	if c.Transport.ReadTimeout <= 0 {
		return fmt.Errorf("transport read timeout must be positive")
	}
	if c.Transport.WriteTimeout <= 0 {
		return fmt.Errorf("transport write timeout must be positive")
	}
	if c.Transport.BufferSize <= 0 {
		return fmt.Errorf("transport buffer size must be positive")
	}

	if c.Roster == nil {
		return fmt.Errorf("roster configuration is required")
	}
	if c.Roster.BaseURL == "" {
		return fmt.Errorf("roster base URL cannot be empty")
	}
	if c.Roster.RefreshInterval <= 0 {
		return fmt.Errorf("roster refresh interval must be positive")
	}
	if c.Roster.CachePath == "" {
		return fmt.Errorf("roster cache path cannot be empty")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	return nil
}

// LoadFromEnv returns defaults overridden by CLASSWIRE_* environment
// variables. Unparseable values fall back to the default silently.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("CLASSWIRE_ENDPOINT"); v != "" {
		cfg.Connection.Endpoint = v
	}
	if v := os.Getenv("CLASSWIRE_TOKEN"); v != "" {
		cfg.Connection.Token = v
	}
	if v := os.Getenv("CLASSWIRE_CONNECT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Connection.ConnectTimeout = d
		}
	}
	if v := os.Getenv("CLASSWIRE_RECONNECT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Connection.ReconnectDelay = d
		}
	}
	if v := os.Getenv("CLASSWIRE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Connection.MaxAttempts = n
		}
	}
	if v := os.Getenv("CLASSWIRE_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transport.PingInterval = d
		}
	}
	if v := os.Getenv("CLASSWIRE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transport.ReadTimeout = d
		}
	}
	if v := os.Getenv("CLASSWIRE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Transport.WriteTimeout = d
		}
	}
	if v := os.Getenv("CLASSWIRE_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transport.BufferSize = n
		}
	}
	if v := os.Getenv("CLASSWIRE_ROSTER_BASE_URL"); v != "" {
		cfg.Roster.BaseURL = v
	}
	if v := os.Getenv("CLASSWIRE_ROSTER_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Roster.RefreshInterval = d
		}
	}
	if v := os.Getenv("CLASSWIRE_ROSTER_CACHE_PATH"); v != "" {
		cfg.Roster.CachePath = v
	}
	if v := os.Getenv("CLASSWIRE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("CLASSWIRE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	return cfg
}

// configFile is the YAML representation. Durations are strings so that
// "10s"-style values round-trip through yaml cleanly.
type configFile struct {
	Connection *struct {
		Endpoint       string `yaml:"endpoint"`
		Token          string `yaml:"token"`
		ConnectTimeout string `yaml:"connect_timeout"`
		ReconnectDelay string `yaml:"reconnect_delay"`
		MaxAttempts    int    `yaml:"max_attempts"`
	} `yaml:"connection"`
	Transport *struct {
		PingInterval string `yaml:"ping_interval"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		BufferSize   int    `yaml:"buffer_size"`
	} `yaml:"transport"`
	Roster *struct {
		BaseURL         string `yaml:"base_url"`
		RefreshInterval string `yaml:"refresh_interval"`
		CachePath       string `yaml:"cache_path"`
	} `yaml:"roster"`
	Log *struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadFromFile reads a YAML config file over the defaults and validates the
// result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if file.Connection != nil {
		if file.Connection.Endpoint != "" {
			cfg.Connection.Endpoint = file.Connection.Endpoint
		}
		if file.Connection.Token != "" {
			cfg.Connection.Token = file.Connection.Token
		}
		setDuration(&cfg.Connection.ConnectTimeout, file.Connection.ConnectTimeout)
		setDuration(&cfg.Connection.ReconnectDelay, file.Connection.ReconnectDelay)
		if file.Connection.MaxAttempts > 0 {
			cfg.Connection.MaxAttempts = file.Connection.MaxAttempts
		}
	}
	if file.Transport != nil {
		setDuration(&cfg.Transport.PingInterval, file.Transport.PingInterval)
		setDuration(&cfg.Transport.ReadTimeout, file.Transport.ReadTimeout)
		setDuration(&cfg.Transport.WriteTimeout, file.Transport.WriteTimeout)
		if file.Transport.BufferSize > 0 {
			cfg.Transport.BufferSize = file.Transport.BufferSize
		}
	}
	if file.Roster != nil {
		if file.Roster.BaseURL != "" {
			cfg.Roster.BaseURL = file.Roster.BaseURL
		}
		setDuration(&cfg.Roster.RefreshInterval, file.Roster.RefreshInterval)
		if file.Roster.CachePath != "" {
			cfg.Roster.CachePath = file.Roster.CachePath
		}
	}
	if file.Log != nil {
		if file.Log.Level != "" {
			cfg.Log.Level = file.Log.Level
		}
		if file.Log.Format != "" {
			cfg.Log.Format = file.Log.Format
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithPrecedence resolves configuration as file > environment > defaults.
// A missing or broken file is ignored so environment/defaults still work.
func LoadWithPrecedence(path string) *Config {
	cfg := LoadFromEnv()
	if path != "" {
		if fileCfg, err := LoadFromFile(path); err == nil {
			cfg = fileCfg
		}
	}
	return cfg
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
