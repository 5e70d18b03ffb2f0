// Package config loads the dashboard's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Model   ModelConfig   `yaml:"model"`
	History HistoryConfig `yaml:"history"`
	Dataset DatasetConfig `yaml:"dataset"`
	Auth    AuthConfig    `yaml:"auth"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

type ModelConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	MaxBytes        int64         `yaml:"max_bytes"`
	Preload         bool          `yaml:"preload"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

type DatasetConfig struct {
	// Driver is sqlite3, postgres or csv.
	Driver     string        `yaml:"driver"`
	DSN        string        `yaml:"dsn"`
	Table      string        `yaml:"table"`
	URL        string        `yaml:"url"`
	PreviewRow int           `yaml:"preview_rows"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	CacheSize  int           `yaml:"cache_size"`
}

type AuthConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
	Watch           bool   `yaml:"watch"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used for anything the file leaves unset.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8501,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Console:    true,
		},
		Model: ModelConfig{
			Timeout:      30 * time.Second,
			RetryBackoff: time.Second,
			MaxBytes:     64 << 20,
		},
		History: HistoryConfig{Path: "data/history.csv"},
		Dataset: DatasetConfig{
			Driver:     "sqlite3",
			DSN:        "data/churn.db",
			Table:      "customers",
			PreviewRow: 50,
			CacheTTL:   10 * time.Minute,
			CacheSize:  8,
		},
		Auth: AuthConfig{
			Enabled:         true,
			CredentialsFile: "credentials.yaml",
			Watch:           true,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads path over the defaults. Relative file paths in the result are
// resolved against the directory holding the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	base := filepath.Dir(path)
	cfg.History.Path = resolve(base, cfg.History.Path)
	cfg.Auth.CredentialsFile = resolve(base, cfg.Auth.CredentialsFile)
	if cfg.Dataset.Driver == "sqlite3" {
		cfg.Dataset.DSN = resolve(base, cfg.Dataset.DSN)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "file:") {
		return p
	}
	return filepath.Join(base, p)
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Timeout <= 0 {
		errs = append(errs, errors.New("server.timeout must be positive"))
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or console", c.Log.Format))
	}

	if c.Model.URL == "" {
		errs = append(errs, errors.New("model.url is required"))
	}
	if c.Model.Timeout <= 0 {
		errs = append(errs, errors.New("model.timeout must be positive"))
	}
	if c.Model.RetryBackoff < 0 || c.Model.RefreshInterval < 0 {
		errs = append(errs, errors.New("model durations must not be negative"))
	}

	if c.History.Path == "" {
		errs = append(errs, errors.New("history.path is required"))
	}

	switch c.Dataset.Driver {
	case "sqlite3", "postgres":
		if c.Dataset.DSN == "" || c.Dataset.Table == "" {
			errs = append(errs, fmt.Errorf("dataset.dsn and dataset.table are required for %s", c.Dataset.Driver))
		}
	case "csv":
		if c.Dataset.URL == "" {
			errs = append(errs, errors.New("dataset.url is required for csv"))
		}
	default:
		errs = append(errs, fmt.Errorf("dataset.driver %q is not supported", c.Dataset.Driver))
	}
	if c.Dataset.PreviewRow <= 0 {
		errs = append(errs, errors.New("dataset.preview_rows must be positive"))
	}
	if c.Dataset.CacheSize <= 0 {
		errs = append(errs, errors.New("dataset.cache_size must be positive"))
	}

	if c.Auth.Enabled && c.Auth.CredentialsFile == "" {
		errs = append(errs, errors.New("auth.credentials_file is required when auth is enabled"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}

	return errors.Join(errs...)
}
