package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReturnsDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "info" || cfg.HealthIntervalSecs != 5 || cfg.LogRetentionCount != 10 {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DataDir = dir
	cfg.LogLevel = "debug"
	cfg.LogRetentionCount = 20
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "server_config.toml")); err != nil {
		t.Fatalf("server_config.toml missing: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.LogLevel != "debug" || loaded.LogRetentionCount != 20 {
		t.Fatalf("loaded = %+v, want overrides preserved", loaded)
	}
}

func TestLoadDataDirFlagWinsOverFileContents(t *testing.T) {
	dir := t.TempDir()
	// A config file whose own data_dir key disagrees with the directory
	// it actually lives in.
	content := []byte("data_dir = \"/somewhere/else\"\nlog_level = \"info\"\n")
	if err := os.WriteFile(filepath.Join(dir, "server_config.toml"), content, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", loaded.DataDir, dir)
	}
}

func TestLoadEnvOverridesLogLevel(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLIENTSERVERRUNNER_LOG_LEVEL", "warn")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}
