package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/akyairhashvil/tally/internal/util"
)

// SyncConfig controls the cloud mirror.
type SyncConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Bucket    string        `yaml:"bucket"`
	Prefix    string        `yaml:"prefix"`
	Region    string        `yaml:"region"`
	Endpoint  string        `yaml:"endpoint"`   // non-AWS endpoints (MinIO etc.)
	PathStyle bool          `yaml:"path_style"` // required by most non-AWS endpoints
	Interval  time.Duration `yaml:"interval"`
	Auto      bool          `yaml:"auto"` // best-effort sync after mutating commands
}

// WidgetConfig controls the shared snapshot directory.
type WidgetConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Config is the application configuration, loaded from the YAML file at
// DefaultPath and overridden by TALLY_* environment variables.
type Config struct {
	DataDir     string       `yaml:"data_dir"`
	LicensePath string       `yaml:"license_path"`
	Log         LogConfig    `yaml:"log"`
	Sync        SyncConfig   `yaml:"sync"`
	Widget      WidgetConfig `yaml:"widget"`
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	return filepath.Join(util.ConfigDir(AppName), ConfigFileName)
}

// Default returns the configuration used when no file or overrides exist.
func Default() *Config {
	dataDir := util.DataDir(AppName)
	return &Config{
		DataDir:     dataDir,
		LicensePath: filepath.Join(util.ConfigDir(AppName), LicenseFileName),
		Log:         LogConfig{Level: "warn", Format: "text"},
		Sync:        SyncConfig{Interval: DefaultSyncInterval},
		Widget:      WidgetConfig{Enabled: true, Dir: filepath.Join(dataDir, "widget")},
	}
}

// Load reads the config file at path (DefaultPath when empty), applies
// environment overrides, and validates the result. A missing file is not
// an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults apply
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DataDir = envStr("TALLY_DATA_DIR", c.DataDir)
	c.LicensePath = envStr("TALLY_LICENSE_PATH", c.LicensePath)
	c.Log.Level = envStr("TALLY_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("TALLY_LOG_FORMAT", c.Log.Format)
	c.Sync.Enabled = envBool("TALLY_SYNC_ENABLED", c.Sync.Enabled)
	c.Sync.Bucket = envStr("TALLY_SYNC_BUCKET", c.Sync.Bucket)
	c.Sync.Prefix = envStr("TALLY_SYNC_PREFIX", c.Sync.Prefix)
	c.Sync.Region = envStr("TALLY_SYNC_REGION", c.Sync.Region)
	c.Sync.Endpoint = envStr("TALLY_SYNC_ENDPOINT", c.Sync.Endpoint)
	c.Sync.PathStyle = envBool("TALLY_SYNC_PATH_STYLE", c.Sync.PathStyle)
	c.Sync.Interval = envDur("TALLY_SYNC_INTERVAL", c.Sync.Interval)
	c.Sync.Auto = envBool("TALLY_SYNC_AUTO", c.Sync.Auto)
	c.Widget.Enabled = envBool("TALLY_WIDGET_ENABLED", c.Widget.Enabled)
	c.Widget.Dir = envStr("TALLY_WIDGET_DIR", c.Widget.Dir)
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}
	if c.Sync.Enabled {
		if c.Sync.Bucket == "" {
			return fmt.Errorf("sync.bucket must be set when sync is enabled")
		}
		if c.Sync.Interval < MinSyncInterval {
			return fmt.Errorf("sync.interval must be at least %s, got %s", MinSyncInterval, c.Sync.Interval)
		}
	}
	if c.Widget.Enabled && c.Widget.Dir == "" {
		return fmt.Errorf("widget.dir must be set when the widget is enabled")
	}
	return nil
}

// DBPath returns the sqlite file location under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFileName)
}

// WidgetPath returns the widget snapshot file location.
func (c *Config) WidgetPath() string {
	return filepath.Join(c.Widget.Dir, WidgetFileName)
}

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDur(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
