package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/patrickspencer/storewatch/internal/scheduler"
)

// DatabaseConfig selects the observation and job database.
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"-"`
}

// ScheduleConfig is a named cron expression that triggers a report.
type ScheduleConfig struct {
	Name    string `yaml:"name" json:"name"`
	Cron    string `yaml:"cron" json:"cron"`
	Enabled *bool  `yaml:"enabled" json:"enabled,omitempty"`
}

// IsEnabled returns whether the schedule is active. Defaults to true if not set.
func (s ScheduleConfig) IsEnabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// ReportConfig tunes report generation.
type ReportConfig struct {
	BatchSize       int              `yaml:"batch_size" json:"batch_size"`
	Parallelism     int              `yaml:"parallelism" json:"parallelism"`
	ReferenceTTL    string           `yaml:"reference_ttl" json:"reference_ttl"`
	DefaultTimezone string           `yaml:"default_timezone" json:"default_timezone"`
	Schedules       []ScheduleConfig `yaml:"schedules" json:"schedules"`
}

// ArtifactConfig controls where report CSVs live and how long they are kept.
type ArtifactConfig struct {
	Dir             string `yaml:"dir" json:"dir"`
	RetentionDays   int    `yaml:"retention_days" json:"retention_days"`
	MaxTotalMB      int64  `yaml:"max_total_mb" json:"max_total_mb"`
	CleanupInterval string `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// Config is the top-level daemon configuration parsed from storewatch.yaml.
type Config struct {
	Listen    string         `yaml:"listen" json:"listen"`
	DataDir   string         `yaml:"data_dir" json:"data_dir"`
	LogLevel  string         `yaml:"log_level" json:"log_level"`
	LogFormat string         `yaml:"log_format" json:"log_format"`
	Database  DatabaseConfig `yaml:"database" json:"database"`
	Report    ReportConfig   `yaml:"report" json:"report"`
	Artifacts ArtifactConfig `yaml:"artifacts" json:"artifacts"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	var c Config
	applyDefaults(&c)
	return &c
}

func applyDefaults(c *Config) {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	c.DataDir = expandPath(c.DataDir)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}

	if env := strings.TrimSpace(os.Getenv("DATABASE_URL")); env != "" {
		c.Database.DSN = env
		if c.Database.Driver == "" && (strings.HasPrefix(env, "postgres://") || strings.HasPrefix(env, "postgresql://")) {
			c.Database.Driver = "postgres"
		}
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = filepath.Join(c.DataDir, "storewatch.db")
	} else if c.Database.Driver == "sqlite" {
		c.Database.DSN = expandPath(c.Database.DSN)
	}

	if c.Report.BatchSize <= 0 {
		c.Report.BatchSize = 10
	}
	if c.Report.Parallelism <= 0 {
		c.Report.Parallelism = 4
	}
	if c.Report.ReferenceTTL == "" {
		c.Report.ReferenceTTL = "5m"
	}
	if c.Report.DefaultTimezone == "" {
		c.Report.DefaultTimezone = "America/Chicago"
	}

	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = filepath.Join(c.DataDir, "reports")
	} else {
		c.Artifacts.Dir = expandPath(c.Artifacts.Dir)
	}
	if c.Artifacts.RetentionDays <= 0 {
		c.Artifacts.RetentionDays = 30
	}
	if c.Artifacts.MaxTotalMB <= 0 {
		c.Artifacts.MaxTotalMB = 512
	}
	if c.Artifacts.CleanupInterval == "" {
		c.Artifacts.CleanupInterval = "1h"
	}
}

func validate(c *Config) error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format: unknown format %q", c.LogFormat)
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	if _, err := c.ReferenceTTL(); err != nil {
		return fmt.Errorf("report.reference_ttl: %w", err)
	}
	if _, err := time.LoadLocation(c.Report.DefaultTimezone); err != nil {
		return fmt.Errorf("report.default_timezone: %w", err)
	}
	if _, err := c.CleanupInterval(); err != nil {
		return fmt.Errorf("artifacts.cleanup_interval: %w", err)
	}

	seen := make(map[string]bool, len(c.Report.Schedules))
	for i, s := range c.Report.Schedules {
		if s.Name == "" {
			return fmt.Errorf("report.schedules[%d]: name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("report.schedules[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
		if _, err := scheduler.ParseSchedule(s.Cron); err != nil {
			return fmt.Errorf("report.schedules[%d] %q: invalid cron %q: %w", i, s.Name, s.Cron, err)
		}
	}
	return nil
}

// ReferenceTTL parses report.reference_ttl.
func (c *Config) ReferenceTTL() (time.Duration, error) {
	return parsePositiveDuration(c.Report.ReferenceTTL)
}

// CleanupInterval parses artifacts.cleanup_interval.
func (c *Config) CleanupInterval() (time.Duration, error) {
	return parsePositiveDuration(c.Artifacts.CleanupInterval)
}

// MaxArtifactBytes returns the artifact size cap in bytes.
func (c *Config) MaxArtifactBytes() int64 {
	return c.Artifacts.MaxTotalMB * 1024 * 1024
}

func parsePositiveDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", v)
	}
	return d, nil
}

func expandPath(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return value
	}

	v = os.ExpandEnv(v)

	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return v
	}

	if v == "~" {
		return home
	}
	if strings.HasPrefix(v, "~/") {
		return filepath.Join(home, v[2:])
	}
	if strings.HasPrefix(v, "~\\") {
		return filepath.Join(home, v[2:])
	}
	return v
}

// LoadConfig reads a YAML configuration file from path and returns a
// validated Config with defaults applied for any unset fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}
