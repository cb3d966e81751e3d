// Package config loads the recon store configuration.
//
// The config file describes how to open and write the store; the store file
// itself holds every recorded observation and can be deleted independently.
//
// Config file locations (priority order):
//  1. $RECONSTORE_CONFIG
//  2. ./reconstore.yaml
//  3. <user config dir>/reconstore/config.yaml ($XDG_CONFIG_HOME or ~/.config)
//  4. /etc/reconstore/config.yaml
//
// A relative database.path, including the default, is taken relative to the
// config file it was loaded from. Without a config file it is relative to the
// working directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDatabasePath  = "./reconstore.db"
	DefaultBusyTimeout   = 5 * time.Second
	DefaultJournalMode   = "WAL"
	DefaultAdminLinkMode = "positional"
)

var journalModes = []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"}

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.Database.Path = resolveStorePath(path, cfg.Database.Path)

	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Database.BusyTimeout == 0 {
		c.Database.BusyTimeout = Duration(DefaultBusyTimeout)
	}
	if c.Database.JournalMode == "" {
		c.Database.JournalMode = DefaultJournalMode
	}
	if c.Compat.AdminLinkMode == "" {
		c.Compat.AdminLinkMode = DefaultAdminLinkMode
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate reports every problem in the config at once
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Version != 1 {
		result = multierror.Append(result, fmt.Errorf("version: unsupported value %d", c.Version))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		result = multierror.Append(result, fmt.Errorf("database.path: must not be empty"))
	}
	if c.Database.BusyTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("database.busy_timeout: must not be negative"))
	}
	if !containsFold(journalModes, c.Database.JournalMode) {
		result = multierror.Append(result, fmt.Errorf("database.journal_mode: unknown mode %q", c.Database.JournalMode))
	}
	switch strings.ToLower(c.Compat.AdminLinkMode) {
	case "positional", "cross":
	default:
		result = multierror.Append(result, fmt.Errorf("compat.admin_link_mode: want positional or cross, got %q", c.Compat.AdminLinkMode))
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Output {
	case "", "stdout", "stderr":
	default:
		result = multierror.Append(result, fmt.Errorf("logging.output: want stdout or stderr, got %q", c.Logging.Output))
	}

	return result.ErrorOrNil()
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Database: %s (journal %s, busy timeout %s)\n",
		c.Database.Path, c.Database.JournalMode, c.Database.BusyTimeout.Duration())
	summary += fmt.Sprintf("Admin links: %s, independent user updates: %t\n",
		c.Compat.AdminLinkMode, c.Compat.IndependentUserUpdates)
	summary += fmt.Sprintf("Log level: %s", c.Logging.Level)
	if c.Metrics.Textfile != "" {
		summary += fmt.Sprintf(", metrics textfile: %s", c.Metrics.Textfile)
	}
	return summary
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
