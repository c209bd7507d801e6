// Package config handles configuration parsing for secure-automation-mcp.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/acolita/secure-automation-mcp/internal/adapters/realfs"
	"github.com/acolita/secure-automation-mcp/internal/ports"
)

// fileSystem resolves the optional injected FileSystem, defaulting to the
// real OS.
func fileSystem(fsys []ports.FileSystem) ports.FileSystem {
	if len(fsys) > 0 && fsys[0] != nil {
		return fsys[0]
	}
	return realfs.New()
}

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/secure-automation-mcp/config.yaml or
// ~/.config/secure-automation-mcp/config.yaml
func DefaultConfigPath(fsys ...ports.FileSystem) string {
	fs := fileSystem(fsys)
	dir := fs.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := fs.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "secure-automation-mcp", "config.yaml")
}

// DefaultAuditPath returns the default audit trail path:
// $XDG_STATE_HOME/secure-automation-mcp/audit.jsonl or
// ~/.local/state/secure-automation-mcp/audit.jsonl
func DefaultAuditPath(fsys ...ports.FileSystem) string {
	fs := fileSystem(fsys)
	dir := fs.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := fs.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "secure-automation-mcp", "audit.jsonl")
}

// Config represents the top-level configuration.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Security SecurityConfig `yaml:"security"`
	Audit    AuditConfig    `yaml:"audit"`
	Vault    VaultConfig    `yaml:"vault"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StorageConfig defines secure storage settings.
type StorageConfig struct {
	WipePasses int `yaml:"wipe_passes"` // random overwrite passes before the zero pass
}

// SecurityConfig defines path and command policy.
type SecurityConfig struct {
	CommandAllowlist []string      `yaml:"command_allowlist"` // permitted program names; empty denies nothing by default (no allowlist configured)
	CommandTimeout   time.Duration `yaml:"command_timeout"`   // per-command timeout
	AllowedBase      string        `yaml:"allowed_base"`      // containment boundary for caller-supplied paths; empty disables
	DeniedPathGlobs  []string      `yaml:"denied_path_globs"` // doublestar patterns rejected outright
}

// AuditConfig defines audit trail settings.
type AuditConfig struct {
	Path string `yaml:"path"` // empty means DefaultAuditPath
}

// VaultConfig defines secret stash settings.
type VaultConfig struct {
	UseKeyring bool          `yaml:"use_keyring"` // persist secrets in the OS keyring
	MemoryTTL  time.Duration `yaml:"memory_ttl"`  // lifetime of fallback in-memory entries
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			WipePasses: 3,
		},
		Security: SecurityConfig{
			CommandTimeout: 5 * time.Minute,
		},
		Vault: VaultConfig{
			UseKeyring: true,
			MemoryTTL:  30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// Load loads configuration from a YAML file, applying defaults for anything
// unset. An empty path or a missing file yields the defaults. An optional
// FileSystem can be passed for testing; if omitted, the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := fileSystem(fsys).ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for values that cannot be honored.
func (c *Config) Validate() error {
	if c.Storage.WipePasses <= 0 {
		c.Storage.WipePasses = 3
	}
	if c.Security.CommandTimeout <= 0 {
		c.Security.CommandTimeout = 5 * time.Minute
	}
	if c.Vault.MemoryTTL <= 0 {
		c.Vault.MemoryTTL = 30 * time.Minute
	}

	for _, name := range c.Security.CommandAllowlist {
		if name == "" {
			return fmt.Errorf("command_allowlist contains an empty name")
		}
	}
	for _, pattern := range c.Security.DeniedPathGlobs {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid denied_path_globs pattern %q", pattern)
		}
	}

	return nil
}
