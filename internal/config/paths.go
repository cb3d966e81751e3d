package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// EnvConfigPath names an explicit config file
	EnvConfigPath = "RECONSTORE_CONFIG"
	// ConfigFileName is looked up in the working directory
	ConfigFileName = "reconstore.yaml"
	// ConfigDirName is the directory under the user and system config roots
	ConfigDirName = "reconstore"
)

// searchPaths lists config file candidates in priority order. Roots that are
// not set in the environment are left out.
func searchPaths() []string {
	var paths []string
	if explicit := os.Getenv(EnvConfigPath); explicit != "" {
		paths = append(paths, explicit)
	}
	paths = append(paths, ConfigFileName)
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ConfigDirName, "config.yaml"))
	}
	return append(paths, filepath.Join("/etc", ConfigDirName, "config.yaml"))
}

// FindConfigPath returns the absolute path of the first config file found,
// or "" when there is none. A missing explicit path falls through to the
// other locations.
func FindConfigPath() string {
	for _, p := range searchPaths() {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}

// DefaultConfigPath is where "config write" puts a new file
func DefaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, ConfigDirName, "config.yaml")
	}
	return ConfigFileName
}

// resolveStorePath makes a relative database.path relative to the config
// file that named it, so a config and its store can move together. "~/" is
// expanded and ":memory:" is left alone.
func resolveStorePath(configPath, storePath string) string {
	switch {
	case strings.TrimSpace(storePath) == "", storePath == ":memory:":
		return storePath
	case strings.HasPrefix(storePath, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, storePath[2:])
		}
		return storePath
	case filepath.IsAbs(storePath):
		return storePath
	}
	return filepath.Join(filepath.Dir(configPath), storePath)
}
