// Package config loads data-layer configuration from the environment,
// with an optional YAML file for the pieces that are lists rather than
// scalars (the cacheable-endpoint set).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime configuration of the data layer.
type Config struct {
	// BaseURL is the remote record-store root. Falls back to a local
	// default when unset.
	BaseURL string `env:"POS_API_BASE_URL,default=http://localhost:8080"`

	// RequestTimeout bounds every request, uploads included.
	RequestTimeout time.Duration `env:"POS_REQUEST_TIMEOUT,default=30s"`

	// CacheTTL is the response-cache entry lifetime.
	CacheTTL time.Duration `env:"POS_CACHE_TTL,default=5m"`

	// RefreshSpec is the cron spec for the periodic data-refresh
	// publisher; empty disables it.
	RefreshSpec string `env:"POS_REFRESH_SPEC,default=@every 30s"`

	// LogLevel is the minimum log level (debug|info|warn|error).
	LogLevel string `env:"POS_LOG_LEVEL,default=info"`

	// RequestsPerSecond enables the client-side rate limiter when positive.
	RequestsPerSecond float64 `env:"POS_REQUESTS_PER_SECOND,default=0"`

	// Token is an optional pre-issued bearer credential.
	Token string `env:"POS_API_TOKEN,default="`

	// CacheableEndpoints is only settable through the file config; nil
	// keeps the built-in static set.
	CacheableEndpoints []string `yaml:"cacheable_endpoints"`
}

// fileConfig is the YAML-settable subset.
type fileConfig struct {
	BaseURL            string   `yaml:"base_url"`
	RefreshSpec        string   `yaml:"refresh_spec"`
	CacheableEndpoints []string `yaml:"cacheable_endpoints"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFile reads environment configuration, then overlays the YAML
// file at path when it exists.
func LoadWithFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if fc.BaseURL != "" {
		cfg.BaseURL = fc.BaseURL
	}
	if fc.RefreshSpec != "" {
		cfg.RefreshSpec = fc.RefreshSpec
	}
	if fc.CacheableEndpoints != nil {
		cfg.CacheableEndpoints = fc.CacheableEndpoints
	}
	return cfg, nil
}
