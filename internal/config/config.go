// Package config handles TOML configuration loading with environment
// variable expansion.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level proxy configuration.
type Config struct {
	LogLevel           string  `toml:"log_level"`
	Addr               string  `toml:"addr"`
	Port               int     `toml:"port"`
	TargetAddress      string  `toml:"target_address"`
	TargetAuthToken    string  `toml:"target_auth_token"`
	MinHitInterval     float64 `toml:"min_hit_interval"`
	MaxTokensPerDay    int64   `toml:"max_tokens_per_day"`
	SQLiteBusyTimeout  float64 `toml:"sqlite_busy_timeout"`
	InsecureSkipVerify bool    `toml:"insecure_skip_verify"` // dev-only: skip upstream TLS verification

	JWT       JWTConfig       `toml:"jwt"`
	TLS       *TLSConfig      `toml:"tls"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// JWTConfig holds bearer-token signing and verification settings.
type JWTConfig struct {
	Secret   string `toml:"secret"`
	Audience string `toml:"audience"`
	Issuer   string `toml:"issuer"`
}

// TelemetryConfig holds optional observability settings, carried as ambient
// plumbing beyond the core contract in spec.md §6.
type TelemetryConfig struct {
	Tracing TracingConfig `toml:"tracing"`
}

// TracingConfig controls OpenTelemetry tracing export.
type TracingConfig struct {
	Enabled    bool    `toml:"enabled"`
	Endpoint   string  `toml:"endpoint"`
	SampleRate float64 `toml:"sample_rate"`
}

// TLSConfig holds the listener's TLS material. When absent from the
// config file the server listens in plaintext.
type TLSConfig struct {
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} patterns with environment variable values.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(match[2 : len(match)-1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a TOML config file, expanding environment
// variables before unmarshalling.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = expandEnv(data)

	cfg := &Config{
		LogLevel:          "INFO",
		Addr:              "0.0.0.0",
		Port:              8080,
		SQLiteBusyTimeout: 5,
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.TargetAddress == "" {
		return nil, fmt.Errorf("parse config: target_address is required")
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("parse config: jwt.secret is required")
	}
	return cfg, nil
}
