// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/hookbridge/lib/ref"
)

// Config is the bridge's configuration file. The file is the single
// source of truth: environment variables do not override its values.
type Config struct {
	Homeserver HomeserverConfig `yaml:"homeserver"`
	Appservice AppserviceConfig `yaml:"appservice"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// HomeserverConfig locates the homeserver the bridge serves.
type HomeserverConfig struct {
	// URL is the homeserver's client-server API base URL.
	URL string `yaml:"url"`

	// ServerName is the homeserver's Matrix server name, used to
	// construct virtual user IDs. Usually differs from the URL host.
	ServerName string `yaml:"server_name"`
}

// AppserviceConfig configures the homeserver-facing listener.
type AppserviceConfig struct {
	// Address is the bind address for the transaction endpoint.
	// Default: ":9000".
	Address string `yaml:"address"`

	// Registration is the path to the appservice registration YAML
	// (see hookbridge --generate-registration).
	Registration string `yaml:"registration"`
}

// IngestConfig configures the public webhook listener.
type IngestConfig struct {
	// Address is the bind address for webhook ingestion and /metrics.
	// Default: ":9001".
	Address string `yaml:"address"`

	// PublicURL is the externally reachable base URL of the ingest
	// listener, used when telling users their webhook URL.
	PublicURL string `yaml:"public_url"`

	// EmojiTable is an optional JSONC file overriding the built-in
	// emoji shortcode table.
	EmojiTable string `yaml:"emoji_table,omitempty"`
}

// DatabaseConfig configures webhook persistence.
type DatabaseConfig struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Default: 4.
	PoolSize int `yaml:"pool_size,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error". Default:
	// "info".
	Level string `yaml:"level,omitempty"`

	// Format is "text" or "json". Default: "text".
	Format string `yaml:"format,omitempty"`
}

// Default returns the configuration defaults applied before the file
// is read. Fields without defaults here are required in the file.
func Default() *Config {
	return &Config{
		Appservice: AppserviceConfig{Address: ":9000"},
		Ingest:     IngestConfig{Address: ":9001"},
		Database:   DatabaseConfig{PoolSize: 4},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from the path in HOOKBRIDGE_CONFIG. There
// is no fallback path; an unset variable is an error so deployments
// never run on an accidental default.
func Load() (*Config, error) {
	path := os.Getenv("HOOKBRIDGE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: HOOKBRIDGE_CONFIG is not set; " +
			"point it at your hookbridge.yaml or use --config")
	}
	return LoadFile(path)
}

// LoadFile reads and validates a configuration file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every required field is present and
// well-formed.
func (c *Config) Validate() error {
	if c.Homeserver.URL == "" {
		return fmt.Errorf("homeserver.url is required")
	}
	if _, err := ref.ParseServerName(c.Homeserver.ServerName); err != nil {
		return fmt.Errorf("homeserver.server_name: %w", err)
	}
	if c.Appservice.Registration == "" {
		return fmt.Errorf("appservice.registration is required")
	}
	if c.Ingest.PublicURL == "" {
		return fmt.Errorf("ingest.public_url is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q: must be debug, info, warn, or error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q: must be text or json", c.Logging.Format)
	}
	return nil
}
