// internal/config/config.go

// Package config loads process settings from an optional TOML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"bookswap/internal/store"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Store     store.Config    `toml:"store"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type ServerConfig struct {
	Port            string   `toml:"port"`
	ReadTimeout     Duration `toml:"read_timeout"`
	WriteTimeout    Duration `toml:"write_timeout"`
	RequestTimeout  Duration `toml:"request_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
	CORSOrigins     []string `toml:"cors_origins"`
}

type AuthConfig struct {
	Secret   string   `toml:"secret"`
	TokenTTL Duration `toml:"token_ttl"`
	// RateLimit is the sustained number of register and login attempts
	// allowed per second across the process.
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type TelemetryConfig struct {
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
	Insecure    bool   `toml:"insecure"`
}

// Duration reads TOML strings such as "15s" or "168h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "5000",
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{15 * time.Second},
			RequestTimeout:  Duration{10 * time.Second},
			ShutdownTimeout: Duration{15 * time.Second},
			CORSOrigins:     []string{"*"},
		},
		Auth: AuthConfig{
			Secret:    "demoapp",
			TokenTTL:  Duration{7 * 24 * time.Hour},
			RateLimit: 5,
			Burst:     20,
		},
		Store: store.DefaultConfig(),
		Log: LogConfig{
			Level:  slog.LevelInfo,
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "bookswap",
		},
	}
}

// Load reads path when it is set, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := getEnv("CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.Auth.Secret = getEnv("JWT_SECRET", c.Auth.Secret)
	if ttl := getEnv("TOKEN_TTL", ""); ttl != "" {
		if err := c.Auth.TokenTTL.UnmarshalText([]byte(ttl)); err != nil {
			return fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
	}

	c.Store.Dir = getEnv("DATA_DIR", c.Store.Dir)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("DATABASE_URL", c.Store.DSN)
	if reset := getEnv("STORE_RESET_CORRUPT", ""); reset != "" {
		v, err := strconv.ParseBool(reset)
		if err != nil {
			return fmt.Errorf("invalid STORE_RESET_CORRUPT: %w", err)
		}
		c.Store.ResetCorrupt = v
	}

	if level := getEnv("LOG_LEVEL", ""); level != "" {
		if err := c.Log.Level.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
	}
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.Endpoint)
	c.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var problems []error
	if c.Server.Port == "" {
		problems = append(problems, errors.New("server port is empty"))
	}
	if c.Auth.Secret == "" {
		problems = append(problems, errors.New("auth secret is empty"))
	}
	if c.Auth.TokenTTL.Duration <= 0 {
		problems = append(problems, errors.New("auth token_ttl must be positive"))
	}
	switch c.Store.Driver {
	case "", "file":
		if c.Store.Dir == "" {
			problems = append(problems, errors.New("store dir is empty"))
		}
	case "postgres":
		if c.Store.DSN == "" {
			problems = append(problems, errors.New("store dsn is required for the postgres driver"))
		}
	default:
		problems = append(problems, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		problems = append(problems, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(problems...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
