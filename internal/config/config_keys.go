// config_keys.go provides key-value access to configuration settings.
//
// Separated from config.go to isolate the key enumeration and string-based
// get/set logic. This separation allows config.go to focus on YAML structure
// and loading, while this file handles the CLI interface where config is
// accessed by string keys (e.g., "rpc.call_timeout").
//
// Design: Pointers are used for optional fields so we can distinguish between
// "not set" (nil) and "explicitly set to zero/false". This enables proper
// defaulting - we only apply defaults when the user hasn't set a value.

package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jpl-au/nvimcp/internal/duration"
)

// ValidKeys returns all valid configuration keys.
func ValidKeys() []string {
	return []string{
		"log.level", "log.file",
		"http.host", "http.port",
		"rpc.call_timeout", "rpc.connect_timeout", "rpc.notify_buffer",
		"tools.lua_discovery",
		"audit.enabled", "audit.retention",
	}
}

// IsValidKey returns true if the key is a valid configuration key.
func IsValidKey(key string) bool {
	return slices.Contains(ValidKeys(), key)
}

// Get returns the value of a configuration key as a string.
func (c *Config) Get(key string) (string, error) {
	if !IsValidKey(key) {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return c.All()[key], nil
}

// Set sets the value of a configuration key.
func (c *Config) Set(key, value string) error {
	switch key {
	case "log.level":
		if _, err := ParseLevel(value); err != nil {
			return err
		}
		c.Log.Level = strings.ToLower(value)
	case "log.file":
		c.Log.File = value
	case "http.host":
		c.HTTP.Host = value
	case "http.port":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > MaxPort {
			return fmt.Errorf("%w: http.port must be an integer between 0 and %d", ErrInvalidValue, MaxPort)
		}
		c.HTTP.Port = &n
	case "rpc.call_timeout":
		if err := validTimeout(key, value); err != nil {
			return err
		}
		c.RPC.CallTimeout = value
	case "rpc.connect_timeout":
		if err := validTimeout(key, value); err != nil {
			return err
		}
		c.RPC.ConnectTimeout = value
	case "rpc.notify_buffer":
		n, err := strconv.Atoi(value)
		if err != nil || n < MinNotifyBuffer || n > MaxNotifyBuffer {
			return fmt.Errorf("%w: rpc.notify_buffer must be an integer between %d and %d",
				ErrInvalidValue, MinNotifyBuffer, MaxNotifyBuffer)
		}
		c.RPC.NotifyBuffer = &n
	case "tools.lua_discovery":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Tools.LuaDiscovery = &b
	case "audit.enabled":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		c.Audit.Enabled = &b
	case "audit.retention":
		if _, err := duration.Parse(value); err != nil {
			return fmt.Errorf("%w: audit.retention: %v", ErrInvalidValue, err)
		}
		c.Audit.Retention = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func parseBool(key, value string) (bool, error) {
	v := strings.ToLower(value)
	if v != "true" && v != "false" {
		return false, fmt.Errorf("%w: %s must be true or false", ErrInvalidValue, key)
	}
	return v == "true", nil
}

// All returns all configuration values as a map.
func (c *Config) All() map[string]string {
	return map[string]string{
		"log.level":           c.LogLevel(),
		"log.file":            c.Log.File,
		"http.host":           c.HTTPHost(),
		"http.port":           strconv.Itoa(c.HTTPPort()),
		"rpc.call_timeout":    c.CallTimeout().String(),
		"rpc.connect_timeout": c.ConnectTimeout().String(),
		"rpc.notify_buffer":   strconv.Itoa(c.NotifyBuffer()),
		"tools.lua_discovery": strconv.FormatBool(c.LuaDiscovery()),
		"audit.enabled":       strconv.FormatBool(c.AuditEnabled()),
		"audit.retention":     retentionString(c.Audit.Retention),
	}
}

func retentionString(s string) string {
	if s == "" {
		return "forever"
	}
	return s
}

// IsSet returns true if the key has an explicit value (not just defaults).
func (c *Config) IsSet(key string) bool {
	switch key {
	case "log.level":
		return c.Log.Level != ""
	case "log.file":
		return c.Log.File != ""
	case "http.host":
		return c.HTTP.Host != ""
	case "http.port":
		return c.HTTP.Port != nil
	case "rpc.call_timeout":
		return c.RPC.CallTimeout != ""
	case "rpc.connect_timeout":
		return c.RPC.ConnectTimeout != ""
	case "rpc.notify_buffer":
		return c.RPC.NotifyBuffer != nil
	case "tools.lua_discovery":
		return c.Tools.LuaDiscovery != nil
	case "audit.enabled":
		return c.Audit.Enabled != nil
	case "audit.retention":
		return c.Audit.Retention != ""
	default:
		return false
	}
}

