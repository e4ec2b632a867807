package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Reconcile policies for restoring the registry from the store at startup.
const (
	ReconcileTrustPersisted = "trust-persisted"
	ReconcileRefetch        = "refetch"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig  `toml:"server"`
	Storage       StorageConfig `toml:"storage"`
	Logging       LoggingConfig `toml:"logging"`
	Specs         []SpecConfig  `toml:"specs"`
	ExportOnStart string        `toml:"export_on_start"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StorageConfig contains storage layer settings.
type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
}

// SQLiteConfig contains registry store settings.
type SQLiteConfig struct {
	// DSN is the SQLite connection string (a file path, optionally with
	// modernc.org/sqlite URI options).
	DSN string `toml:"dsn"`
	// ConnectTimeoutSeconds bounds the startup connection retry window.
	ConnectTimeoutSeconds int `toml:"connect_timeout_seconds"`
	// Reconcile selects the restart policy: "trust-persisted" reuses the
	// persisted tool sets, "refetch" re-derives from the live spec sources
	// and overlays persisted enablement flags.
	Reconcile string `toml:"reconcile"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// SpecConfig is one startup spec source to mount.
type SpecConfig struct {
	Source     string `toml:"source"`
	APIBaseURL string `toml:"api_base_url"`
	Prefix     string `toml:"prefix"`
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies SPECMOUNT_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("SPECMOUNT_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SPECMOUNT_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if dsn := os.Getenv("SPECMOUNT_STORE_DSN"); dsn != "" {
		config.Storage.SQLite.DSN = dsn
	}
	if reconcile := os.Getenv("SPECMOUNT_STORE_RECONCILE"); reconcile != "" {
		config.Storage.SQLite.Reconcile = reconcile
	}
	if level := os.Getenv("SPECMOUNT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if export := os.Getenv("SPECMOUNT_EXPORT_ON_START"); export != "" {
		config.ExportOnStart = export
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// prefixPattern matches URL-path-safe prefix tokens.
var prefixPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// Validate returns a list of configuration issues, empty when valid.
func (c *Config) Validate() []string {
	var issues []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port must be between 1 and 65535 (got %d)", c.Server.Port))
	}
	if strings.TrimSpace(c.Storage.SQLite.DSN) == "" {
		issues = append(issues, "storage.sqlite.dsn is required")
	}
	if c.Storage.SQLite.ConnectTimeoutSeconds <= 0 {
		issues = append(issues, "storage.sqlite.connect_timeout_seconds must be positive")
	}
	switch c.Storage.SQLite.Reconcile {
	case ReconcileTrustPersisted, ReconcileRefetch:
	default:
		issues = append(issues, fmt.Sprintf("storage.sqlite.reconcile must be %q or %q (got %q)",
			ReconcileTrustPersisted, ReconcileRefetch, c.Storage.SQLite.Reconcile))
	}

	for i, spec := range c.Specs {
		if strings.TrimSpace(spec.Source) == "" {
			issues = append(issues, fmt.Sprintf("specs[%d].source is required", i))
		}
		if strings.TrimSpace(spec.APIBaseURL) == "" {
			issues = append(issues, fmt.Sprintf("specs[%d].api_base_url is required", i))
		}
		if spec.Prefix != "" && !prefixPattern.MatchString(spec.Prefix) {
			issues = append(issues, fmt.Sprintf("specs[%d].prefix %q is not a URL-path-safe token", i, spec.Prefix))
		}
	}

	return issues
}
