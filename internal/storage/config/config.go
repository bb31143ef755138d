package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding the directory roots. Deployment supplies
// these; YAML values and built-in defaults are the fallbacks.
const (
	EnvActiveDir  = "WEATHER_ACTIVE_DIR"
	EnvArchiveDir = "WEATHER_ARCHIVE_DIR"
)

// Config represents the complete storage configuration.
type Config struct {
	// ActiveDir is the root directory for active partition files.
	ActiveDir string `yaml:"active_dir"`

	// ArchiveDir is the parallel root for soft-deleted partition files.
	ArchiveDir string `yaml:"archive_dir"`

	// Database configures the relational backend.
	Database DatabaseConfig `yaml:"database"`

	// Retention configures the retention sweep.
	Retention RetentionConfig `yaml:"retention"`

	// Parallelism configures worker-pool sizing.
	Parallelism ParallelismConfig `yaml:"parallelism"`

	// Export configures Parquet export.
	Export ExportConfig `yaml:"export"`

	// Summary configures per-batch measurement summaries.
	Summary SummaryConfig `yaml:"summary"`
}

// DatabaseConfig configures the relational backend.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string `yaml:"path"`

	// MemoryLimit is the DuckDB memory limit, e.g. "2GB".
	MemoryLimit string `yaml:"memory_limit"`
}

// RetentionConfig configures the retention sweep.
type RetentionConfig struct {
	// Enabled enables the periodic sweep worker.
	Enabled bool `yaml:"enabled"`

	// MaxAge is the age past which data is archived / soft-deleted.
	MaxAge time.Duration `yaml:"max_age"`

	// SweepInterval is the time between automatic sweeps.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ParallelismConfig configures worker-pool sizing.
type ParallelismConfig struct {
	// MaxWorkers caps the degree of parallelism. Zero means advisor-computed
	// from CPU count and available memory.
	MaxWorkers int `yaml:"max_workers"`
}

// ExportConfig configures Parquet export.
type ExportConfig struct {
	// Dir is the output directory for exported files.
	Dir string `yaml:"dir"`

	// Compression is the Parquet compression algorithm: zstd, snappy, none.
	Compression string `yaml:"compression"`
}

// SummaryConfig configures per-batch measurement summaries.
type SummaryConfig struct {
	// Enabled enables DDSketch percentile summaries for ingested batches.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the DDSketch relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// Load loads configuration from a YAML file. Environment variables take
// precedence over file values for the directory roots.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults. Environment
// overrides for the directory roots are applied.
func DefaultConfig() *Config {
	cfg := &Config{
		ActiveDir:  "/var/lib/weatherarchive/active",
		ArchiveDir: "/var/lib/weatherarchive/archived",
		Database: DatabaseConfig{
			Path:        "/var/lib/weatherarchive/weather.db",
			MemoryLimit: "2GB",
		},
		Retention: RetentionConfig{
			Enabled:       true,
			MaxAge:        2 * 365 * 24 * time.Hour,
			SweepInterval: 24 * time.Hour,
		},
		Export: ExportConfig{
			Dir:         "/var/lib/weatherarchive/export",
			Compression: "zstd",
		},
		Summary: SummaryConfig{
			Enabled:  true,
			Accuracy: 0.01,
		},
	}
	cfg.applyEnv()
	return cfg
}

// applyEnv overrides directory roots from the environment.
func (c *Config) applyEnv() {
	if dir := os.Getenv(EnvActiveDir); dir != "" {
		c.ActiveDir = dir
	}
	if dir := os.Getenv(EnvArchiveDir); dir != "" {
		c.ArchiveDir = dir
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.ActiveDir == "" {
		return fmt.Errorf("active_dir must not be empty")
	}
	if c.ArchiveDir == "" {
		return fmt.Errorf("archive_dir must not be empty")
	}
	if c.ActiveDir == c.ArchiveDir {
		return fmt.Errorf("active_dir and archive_dir must differ")
	}
	if c.Retention.Enabled {
		if c.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention.max_age must be positive")
		}
		if c.Retention.SweepInterval <= 0 {
			return fmt.Errorf("retention.sweep_interval must be positive")
		}
	}
	if c.Parallelism.MaxWorkers < 0 {
		return fmt.Errorf("parallelism.max_workers must not be negative")
	}
	if c.Summary.Enabled && (c.Summary.Accuracy <= 0 || c.Summary.Accuracy >= 1) {
		return fmt.Errorf("summary.accuracy must be in (0, 1)")
	}
	return nil
}

// EnsureDirectories creates the configured directory roots if absent.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.ActiveDir, c.ArchiveDir, c.Export.Dir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
