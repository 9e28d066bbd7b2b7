package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DataDir == "" {
		t.Fatalf("expected a default data dir")
	}
	if cfg.Sync.Enabled {
		t.Fatalf("sync should be disabled by default")
	}
	if cfg.Sync.Interval != DefaultSyncInterval {
		t.Fatalf("Interval = %s, want %s", cfg.Sync.Interval, DefaultSyncInterval)
	}
	if !cfg.Widget.Enabled {
		t.Fatalf("widget should be enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
data_dir: ` + dir + `
log:
  level: debug
  format: json
sync:
  enabled: true
  bucket: my-habits
  region: eu-central-1
  interval: 2m
  auto: true
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("log config = %+v", cfg.Log)
	}
	if !cfg.Sync.Enabled || cfg.Sync.Bucket != "my-habits" {
		t.Fatalf("sync config = %+v", cfg.Sync)
	}
	if cfg.Sync.Interval != 2*time.Minute {
		t.Fatalf("Interval = %s, want 2m", cfg.Sync.Interval)
	}
	if cfg.DBPath() != filepath.Join(dir, DBFileName) {
		t.Fatalf("DBPath = %q", cfg.DBPath())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TALLY_LOG_LEVEL", "error")
	t.Setenv("TALLY_SYNC_ENABLED", "true")
	t.Setenv("TALLY_SYNC_BUCKET", "env-bucket")
	t.Setenv("TALLY_SYNC_INTERVAL", "90s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Log.Level != "error" {
		t.Fatalf("Level = %q, want error", cfg.Log.Level)
	}
	if !cfg.Sync.Enabled || cfg.Sync.Bucket != "env-bucket" {
		t.Fatalf("sync config = %+v", cfg.Sync)
	}
	if cfg.Sync.Interval != 90*time.Second {
		t.Fatalf("Interval = %s, want 90s", cfg.Sync.Interval)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }},
		{"sync without bucket", func(c *Config) { c.Sync.Enabled = true; c.Sync.Bucket = "" }},
		{"interval too short", func(c *Config) {
			c.Sync.Enabled = true
			c.Sync.Bucket = "b"
			c.Sync.Interval = time.Second
		}},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
