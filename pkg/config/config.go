// Package config loads Vev process configuration.
//
// Configuration comes from three layers, later layers winning: built-in
// defaults, an optional YAML file, and VEV_-prefixed environment variables.
// That matches how the CLI works: `vev init` writes the YAML file, ad-hoc
// overrides ride in through the environment.
//
// Environment Variables:
//   - VEV_GRAPH_DIRECTED=true
//   - VEV_GRAPH_WRITE_BACKUPS=false
//   - VEV_GRAPH_HISTORY_CAP=0
//   - VEV_BACKUP_DIR="./backups"
//   - VEV_BACKUP_KEEP=10
//   - VEV_ARCHIVE_ENABLED=false
//   - VEV_ARCHIVE_PATH="./history.db"
//
// Example:
//
//	cfg, err := config.Load("vev.yaml")
//	if err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all Vev configuration.
type Config struct {
	// Graph settings applied to graphs the process creates
	Graph GraphConfig `yaml:"graph"`

	// Backup snapshot store settings
	Backup BackupConfig `yaml:"backup"`

	// History archive settings
	Archive ArchiveConfig `yaml:"archive"`
}

// GraphConfig holds per-graph defaults.
type GraphConfig struct {
	// Directed selects directed edge semantics
	Directed bool `yaml:"directed"`
	// WriteBackups saves a snapshot after every mutation
	WriteBackups bool `yaml:"write_backups"`
	// HistoryCap bounds the in-memory action log (0 = unbounded)
	HistoryCap int `yaml:"history_cap"`
}

// BackupConfig holds snapshot store settings.
type BackupConfig struct {
	// Dir is the snapshot store directory
	Dir string `yaml:"dir"`
	// Keep is how many snapshots per graph Prune retains
	Keep int `yaml:"keep"`
}

// ArchiveConfig holds history archive settings.
type ArchiveConfig struct {
	// Enabled mirrors action logs to SQLite
	Enabled bool `yaml:"enabled"`
	// Path is the archive database file
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Graph: GraphConfig{
			Directed:     true,
			WriteBackups: false,
			HistoryCap:   0,
		},
		Backup: BackupConfig{
			Dir:  "./backups",
			Keep: 10,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Path:    "./history.db",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty), and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv builds the configuration from defaults and the environment
// only. Invalid environment values fall back to defaults, so this never
// fails; use Load to surface validation errors.
func LoadFromEnv() *Config {
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	cfg.Graph.Directed = getEnvBool("VEV_GRAPH_DIRECTED", cfg.Graph.Directed)
	cfg.Graph.WriteBackups = getEnvBool("VEV_GRAPH_WRITE_BACKUPS", cfg.Graph.WriteBackups)
	cfg.Graph.HistoryCap = getEnvInt("VEV_GRAPH_HISTORY_CAP", cfg.Graph.HistoryCap)

	cfg.Backup.Dir = getEnv("VEV_BACKUP_DIR", cfg.Backup.Dir)
	cfg.Backup.Keep = getEnvInt("VEV_BACKUP_KEEP", cfg.Backup.Keep)

	cfg.Archive.Enabled = getEnvBool("VEV_ARCHIVE_ENABLED", cfg.Archive.Enabled)
	cfg.Archive.Path = getEnv("VEV_ARCHIVE_PATH", cfg.Archive.Path)
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Graph.HistoryCap < 0 {
		return fmt.Errorf("config: history cap must be >= 0, got %d", c.Graph.HistoryCap)
	}
	if c.Backup.Keep < 0 {
		return fmt.Errorf("config: backup keep must be >= 0, got %d", c.Backup.Keep)
	}
	if c.Graph.WriteBackups && c.Backup.Dir == "" {
		return fmt.Errorf("config: write_backups requires a backup dir")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("config: archive enabled without a path")
	}
	return nil
}

// WriteFile saves the configuration as YAML, the format `vev init`
// generates.
func (c *Config) WriteFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// String returns a one-line summary for logs.
func (c *Config) String() string {
	return fmt.Sprintf("directed=%t backups=%t dir=%s keep=%d archive=%t",
		c.Graph.Directed, c.Graph.WriteBackups, c.Backup.Dir, c.Backup.Keep, c.Archive.Enabled)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
