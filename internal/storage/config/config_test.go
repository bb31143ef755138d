package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
active_dir: /data/active
archive_dir: /data/archived
database:
  path: /data/weather.db
  memory_limit: 4GB
retention:
  enabled: true
  max_age: 17520h
  sweep_interval: 12h
parallelism:
  max_workers: 6
summary:
  enabled: true
  accuracy: 0.02
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ActiveDir != "/data/active" || cfg.ArchiveDir != "/data/archived" {
		t.Errorf("dirs = %q, %q", cfg.ActiveDir, cfg.ArchiveDir)
	}
	if cfg.Database.Path != "/data/weather.db" || cfg.Database.MemoryLimit != "4GB" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Retention.MaxAge != 17520*time.Hour {
		t.Errorf("max_age = %v", cfg.Retention.MaxAge)
	}
	if cfg.Retention.SweepInterval != 12*time.Hour {
		t.Errorf("sweep_interval = %v", cfg.Retention.SweepInterval)
	}
	if cfg.Parallelism.MaxWorkers != 6 {
		t.Errorf("max_workers = %d", cfg.Parallelism.MaxWorkers)
	}
	if cfg.Summary.Accuracy != 0.02 {
		t.Errorf("accuracy = %v", cfg.Summary.Accuracy)
	}
}

func TestLoad_Defaults(t *testing.T) {
	// A minimal file inherits every unset default.
	path := writeConfig(t, `
active_dir: /data/active
archive_dir: /data/archived
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Database.MemoryLimit != def.Database.MemoryLimit {
		t.Errorf("memory_limit = %q, want default %q", cfg.Database.MemoryLimit, def.Database.MemoryLimit)
	}
	if cfg.Retention.SweepInterval != def.Retention.SweepInterval {
		t.Errorf("sweep_interval = %v, want default %v", cfg.Retention.SweepInterval, def.Retention.SweepInterval)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv(EnvActiveDir, "/env/active")
	t.Setenv(EnvArchiveDir, "/env/archived")

	path := writeConfig(t, `
active_dir: /file/active
archive_dir: /file/archived
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ActiveDir != "/env/active" || cfg.ArchiveDir != "/env/archived" {
		t.Errorf("env must win over file: %q, %q", cfg.ActiveDir, cfg.ArchiveDir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error should preserve os.ErrNotExist: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty active dir", func(c *Config) { c.ActiveDir = "" }},
		{"empty archive dir", func(c *Config) { c.ArchiveDir = "" }},
		{"same roots", func(c *Config) { c.ArchiveDir = c.ActiveDir }},
		{"zero max age", func(c *Config) { c.Retention.MaxAge = 0 }},
		{"zero sweep interval", func(c *Config) { c.Retention.SweepInterval = 0 }},
		{"negative workers", func(c *Config) { c.Parallelism.MaxWorkers = -1 }},
		{"accuracy out of range", func(c *Config) { c.Summary.Accuracy = 1.5 }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := DefaultConfig()
			c.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.ActiveDir = filepath.Join(root, "active")
	cfg.ArchiveDir = filepath.Join(root, "archived")
	cfg.Export.Dir = filepath.Join(root, "export")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.ActiveDir, cfg.ArchiveDir, cfg.Export.Dir} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("missing directory %s: %v", dir, err)
		}
	}
}
