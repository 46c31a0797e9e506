// Package config loads the supervisor's own operator preferences file
// (server_config.toml), distinct from the Configuration documents the
// Configuration Store manages.
//
// Grounded on the teacher's internal/config/config.go Default/Load shape:
// start from hardcoded defaults, overlay a TOML file if present, then
// apply environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds the supervisor's operator preferences.
type Config struct {
	DataDir            string `toml:"data_dir"`
	LogLevel           string `toml:"log_level"`             // debug|info|warn|error
	HealthIntervalSecs int    `toml:"health_interval_seconds"`
	LogRetentionCount  int    `toml:"log_retention_count"`
}

// Default returns the hardcoded baseline preferences.
func Default() *Config {
	return &Config{
		DataDir:            DefaultDataDir(),
		LogLevel:           "info",
		HealthIntervalSecs: 5,
		LogRetentionCount:  10,
	}
}

// DefaultDataDir returns $HOME/.clientserverrunner, per spec.md §6.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".clientserverrunner")
}

// Load reads server_config.toml from dataDir, overlaying it onto Default().
// A missing file is not an error. CLIENTSERVERRUNNER_LOG_LEVEL overrides
// the resolved log level last, if set.
func Load(dataDir string) (*Config, error) {
	cfg := Default()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	path := filepath.Join(cfg.DataDir, "server_config.toml")
	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	// dataDir from the CLI flag always wins over whatever the file says
	// about its own location, so a --data-dir override is never undone by
	// a stale data_dir key inside the file it points at.
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if lvl := os.Getenv("CLIENTSERVERRUNNER_LOG_LEVEL"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

// Save writes cfg back to dataDir/server_config.toml, creating dataDir if
// needed.
func Save(cfg *Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(cfg.DataDir, "server_config.toml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
