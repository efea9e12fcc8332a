// Package config loads the service configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Nickm615/personalization-custom-app-example/pkg/personalization"
)

// Data sources the service can read from.
const (
	SourceAPI    = "api"
	SourceSQLite = "sqlite"
)

// Config holds all service configuration.
type Config struct {
	Kontent         KontentConfig             `yaml:"kontent"`
	Source          SourceConfig              `yaml:"source"`
	Personalization personalization.Codenames `yaml:"personalization"`
	Aggregation     AggregationConfig         `yaml:"aggregation"`
	Panel           PanelConfig               `yaml:"panel"`
	Server          ServerConfig              `yaml:"server"`
	Logging         LoggingConfig             `yaml:"logging"`
}

// KontentConfig configures access to the Management API.
type KontentConfig struct {
	EnvironmentID    string `yaml:"environment_id"`
	ManagementAPIKey string `yaml:"management_api_key"`
	BaseURL          string `yaml:"base_url"`
	Timeout          string `yaml:"timeout"`
	MaxRetries       int    `yaml:"max_retries"`
	RetryBackoff     string `yaml:"retry_backoff"`
}

// SourceConfig selects where entities are read from.
type SourceConfig struct {
	Driver     string `yaml:"driver"` // api, sqlite
	SQLitePath string `yaml:"sqlite_path"`
}

// AggregationConfig bounds the linked-item fan-out.
type AggregationConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// PanelConfig configures the panel snapshot.
type PanelConfig struct {
	ExcerptLength int    `yaml:"excerpt_length"`
	AppURL        string `yaml:"app_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Kontent: KontentConfig{
			BaseURL:      "https://manage.kontent.ai/v2",
			Timeout:      "30s",
			MaxRetries:   3,
			RetryBackoff: "250ms",
		},
		Source: SourceConfig{
			Driver:     SourceAPI,
			SQLitePath: "personalization.db",
		},
		Personalization: personalization.DefaultCodenames(),
		Aggregation: AggregationConfig{
			Concurrency: 8,
		},
		Panel: PanelConfig{
			ExcerptLength: 160,
			AppURL:        "https://app.kontent.ai",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if id := os.Getenv("KONTENT_ENVIRONMENT_ID"); id != "" {
		c.Kontent.EnvironmentID = id
	}
	if key := os.Getenv("KONTENT_MANAGEMENT_API_KEY"); key != "" {
		c.Kontent.ManagementAPIKey = key
	}
	if path := os.Getenv("PERSONALIZATION_DB"); path != "" {
		c.Source.SQLitePath = path
		c.Source.Driver = SourceSQLite
	}
	if addr := os.Getenv("PERSONALIZATION_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// GetTimeout returns the per-request Management API timeout.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Kontent.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetRetryBackoff returns the base delay between retries.
func (c *Config) GetRetryBackoff() time.Duration {
	d, err := time.ParseDuration(c.Kontent.RetryBackoff)
	if err != nil {
		return 250 * time.Millisecond
	}
	return d
}

// GetShutdownTimeout returns how long the server waits for requests to drain.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ZapLevel parses the logging level, defaulting to info.
func (c *Config) ZapLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return zap.InfoLevel
	}
	return lvl
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Source.Driver {
	case SourceAPI:
		if c.Kontent.ManagementAPIKey == "" {
			return fmt.Errorf("management API key not configured (set KONTENT_MANAGEMENT_API_KEY)")
		}
		if c.Kontent.BaseURL == "" {
			return fmt.Errorf("kontent.base_url must be set")
		}
	case SourceSQLite:
		if c.Source.SQLitePath == "" {
			return fmt.Errorf("source.sqlite_path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("invalid source driver: %s (valid: %s, %s)", c.Source.Driver, SourceAPI, SourceSQLite)
	}

	p := c.Personalization
	for name, v := range map[string]string{
		"audience_taxonomy":       p.AudienceTaxonomy,
		"variant_type_taxonomy":   p.VariantTypeTaxonomy,
		"variant_term":            p.VariantTerm,
		"variant_type_suffix":     p.VariantTypeSuffix,
		"audience_suffix":         p.AudienceSuffix,
		"content_variants_suffix": p.ContentVariantsSuffix,
	} {
		if v == "" {
			return fmt.Errorf("personalization.%s must be set", name)
		}
	}
	if c.Aggregation.Concurrency < 1 {
		return fmt.Errorf("aggregation.concurrency must be at least 1")
	}
	if c.Kontent.MaxRetries < 0 {
		return fmt.Errorf("kontent.max_retries must not be negative")
	}
	return nil
}
