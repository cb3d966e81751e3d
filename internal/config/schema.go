package config

import (
	"time"

	"reconstore/internal/logger"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Database DatabaseConfig `yaml:"database"`
	Compat   CompatConfig   `yaml:"compat"`
	Logging  logger.Config  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path        string   `yaml:"path"`
	BusyTimeout Duration `yaml:"busy_timeout"`
	JournalMode string   `yaml:"journal_mode"`
}

// CompatConfig toggles behaviors kept for stores shared with older tooling
type CompatConfig struct {
	// AdminLinkMode is "positional" (pair i-th user with i-th host) or
	// "cross" (every user with every host)
	AdminLinkMode string `yaml:"admin_link_mode"`
	// IndependentUserUpdates lets RecordUser fix domain or username alone
	IndependentUserUpdates bool `yaml:"independent_user_updates"`
}

// MetricsConfig controls where store counters are written
type MetricsConfig struct {
	// Textfile is a node_exporter textfile collector path; empty disables it
	Textfile string `yaml:"textfile,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
