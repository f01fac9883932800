// Package config provides reading and writing of nvimcp configuration.
// Supports both global (~/.nvimcp/config.yaml) and local (.nvimcp/config.yaml).
// Reading: uses local if it exists, otherwise global.
// Writing: defaults to global, use --local for local.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jpl-au/nvimcp/internal/duration"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoConfigPath is returned when the config path cannot be determined.
	ErrNoConfigPath = errors.New("cannot determine config path")
	// ErrUnknownKey is returned when getting/setting an unknown config key.
	ErrUnknownKey = errors.New("unknown config key")
	// ErrInvalidValue is returned when a config value is invalid.
	ErrInvalidValue = errors.New("invalid config value")
)

// Scope represents the configuration scope (global or local).
type Scope int

const (
	// ScopeGlobal is user-wide config in ~/.nvimcp/config.yaml (default)
	ScopeGlobal Scope = iota
	// ScopeLocal is project-specific config in .nvimcp/config.yaml
	ScopeLocal
)

// Log holds operational logging options.
type Log struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// HTTP holds the streamable HTTP listener options. A zero port means stdio.
type HTTP struct {
	Host string `yaml:"host,omitempty"`
	Port *int   `yaml:"port,omitempty"`
}

// RPC holds msgpack-rpc session options. Durations use Go syntax ("30s").
type RPC struct {
	CallTimeout    string `yaml:"call_timeout,omitempty"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
	NotifyBuffer   *int   `yaml:"notify_buffer,omitempty"`
}

// Tools holds tool registry options.
type Tools struct {
	LuaDiscovery *bool `yaml:"lua_discovery,omitempty"`
}

// Audit holds audit log options.
type Audit struct {
	Enabled   *bool  `yaml:"enabled,omitempty"`
	Retention string `yaml:"retention,omitempty"`
}

// Defaults applied when not configured.
const (
	DefaultLogLevel       = "info"
	DefaultHTTPHost       = "127.0.0.1"
	DefaultCallTimeout    = 30 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultNotifyBuffer   = 64
)

// Validation bounds for configuration values.
const (
	MinTimeout      = 10 * time.Millisecond
	MaxTimeout      = 10 * time.Minute
	MinNotifyBuffer = 1
	MaxNotifyBuffer = 65536
	MaxPort         = 65535
)

// Config contains configuration for nvimcp.
type Config struct {
	Log   Log   `yaml:"log,omitempty"`
	HTTP  HTTP  `yaml:"http,omitempty"`
	RPC   RPC   `yaml:"rpc,omitempty"`
	Tools Tools `yaml:"tools,omitempty"`
	Audit Audit `yaml:"audit,omitempty"`

	// path is the file this config was loaded from (for Save)
	path  string
	scope Scope
}

// Validate checks that all configured values are within acceptable bounds.
// Returns nil if all values are valid or not set (defaults will be used).
func (c *Config) Validate() error {
	if c.Log.Level != "" {
		if _, err := ParseLevel(c.Log.Level); err != nil {
			return err
		}
	}
	if c.HTTP.Port != nil {
		if v := *c.HTTP.Port; v < 0 || v > MaxPort {
			return fmt.Errorf("%w: http.port must be between 0 and %d, got %d",
				ErrInvalidValue, MaxPort, v)
		}
	}
	if err := validTimeout("rpc.call_timeout", c.RPC.CallTimeout); err != nil {
		return err
	}
	if err := validTimeout("rpc.connect_timeout", c.RPC.ConnectTimeout); err != nil {
		return err
	}
	if c.RPC.NotifyBuffer != nil {
		if v := *c.RPC.NotifyBuffer; v < MinNotifyBuffer || v > MaxNotifyBuffer {
			return fmt.Errorf("%w: rpc.notify_buffer must be between %d and %d, got %d",
				ErrInvalidValue, MinNotifyBuffer, MaxNotifyBuffer, v)
		}
	}
	if c.Audit.Retention != "" {
		if _, err := duration.Parse(c.Audit.Retention); err != nil {
			return fmt.Errorf("%w: audit.retention: %v", ErrInvalidValue, err)
		}
	}
	return nil
}

func validTimeout(key, s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %s must be a duration such as 30s, got %q", ErrInvalidValue, key, s)
	}
	if d < MinTimeout || d > MaxTimeout {
		return fmt.Errorf("%w: %s must be between %s and %s, got %s",
			ErrInvalidValue, key, MinTimeout, MaxTimeout, d)
	}
	return nil
}

// ParseLevel converts a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: log.level must be debug, info, warn or error, got %q", ErrInvalidValue, s)
}

// LogLevel returns the configured level name (defaults to info).
func (c *Config) LogLevel() string {
	if c.Log.Level == "" {
		return DefaultLogLevel
	}
	return c.Log.Level
}

// HTTPHost returns the listen host (defaults to 127.0.0.1).
func (c *Config) HTTPHost() string {
	if c.HTTP.Host == "" {
		return DefaultHTTPHost
	}
	return c.HTTP.Host
}

// HTTPPort returns the listen port; 0 serves over stdio.
func (c *Config) HTTPPort() int {
	if c.HTTP.Port == nil {
		return 0
	}
	return *c.HTTP.Port
}

// CallTimeout returns the per-request RPC timeout (defaults to 30s).
func (c *Config) CallTimeout() time.Duration {
	return durationOr(c.RPC.CallTimeout, DefaultCallTimeout)
}

// ConnectTimeout returns the dial timeout (defaults to 5s).
func (c *Config) ConnectTimeout() time.Duration {
	return durationOr(c.RPC.ConnectTimeout, DefaultConnectTimeout)
}

// NotifyBuffer returns the per-subscriber notification buffer (defaults to 64).
func (c *Config) NotifyBuffer() int {
	if c.RPC.NotifyBuffer == nil {
		return DefaultNotifyBuffer
	}
	return *c.RPC.NotifyBuffer
}

// LuaDiscovery returns whether Lua tools are discovered on connect
// (defaults to true).
func (c *Config) LuaDiscovery() bool {
	if c.Tools.LuaDiscovery == nil {
		return true
	}
	return *c.Tools.LuaDiscovery
}

// AuditEnabled returns whether the audit log is written (defaults to true).
func (c *Config) AuditEnabled() bool {
	if c.Audit.Enabled == nil {
		return true
	}
	return *c.Audit.Enabled
}

// AuditRetention returns how long audit entries are kept; 0 keeps them
// forever.
func (c *Config) AuditRetention() time.Duration {
	if c.Audit.Retention == "" {
		return 0
	}
	d, err := duration.Parse(c.Audit.Retention)
	if err != nil {
		return 0
	}
	return d
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// LocalPath returns the path to the local (project) config file.
func LocalPath() string {
	return filepath.Join(".nvimcp", "config.yaml")
}

// GlobalPath returns the path to the global (user) config file: ~/.nvimcp/config.yaml
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".nvimcp", "config.yaml")
}

// Load reads configuration: uses local if it exists, otherwise global.
func Load() (*Config, error) {
	if _, err := os.Stat(LocalPath()); err == nil {
		return LoadScope(ScopeLocal)
	}
	return LoadScope(ScopeGlobal)
}

// LoadScope reads configuration from a specific scope.
func LoadScope(scope Scope) (*Config, error) {
	path := pathForScope(scope)
	if path == "" {
		return &Config{scope: scope}, nil
	}
	return loadPath(path, scope)
}

func loadPath(path string, scope Scope) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{path: path, scope: scope}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("malformed config file %s: %w\n\nTo fix: edit the file to correct the YAML syntax, or delete it to use defaults", path, err)
	}
	cfg.path = path
	cfg.scope = scope

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Scope returns which scope this config was loaded from.
func (c *Config) Scope() Scope {
	return c.scope
}

// Save writes the configuration to its original location.
func (c *Config) Save() error {
	if c.path == "" {
		c.path = pathForScope(c.scope)
	}
	if c.path == "" {
		return ErrNoConfigPath
	}
	return c.saveToPath(c.path)
}

// SaveScope writes the configuration to the specified scope.
func (c *Config) SaveScope(scope Scope) error {
	path := pathForScope(scope)
	if path == "" {
		return ErrNoConfigPath
	}
	return c.saveToPath(path)
}

// saveToPath writes configuration to a specific filesystem path.
// Creates parent directories as needed with mode 0755.
func (c *Config) saveToPath(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// pathForScope returns the filesystem path for a given scope.
func pathForScope(scope Scope) string {
	switch scope {
	case ScopeLocal:
		return LocalPath()
	case ScopeGlobal:
		return GlobalPath()
	default:
		return ""
	}
}
