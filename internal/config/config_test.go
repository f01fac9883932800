package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := &Config{}
	assert.Equal(t, "info", c.LogLevel())
	assert.Equal(t, "127.0.0.1", c.HTTPHost())
	assert.Equal(t, 0, c.HTTPPort())
	assert.Equal(t, 30*time.Second, c.CallTimeout())
	assert.Equal(t, 5*time.Second, c.ConnectTimeout())
	assert.Equal(t, 64, c.NotifyBuffer())
	assert.True(t, c.LuaDiscovery())
	assert.True(t, c.AuditEnabled())
	assert.Zero(t, c.AuditRetention())
	require.NoError(t, c.Validate())
}

func TestSetGet(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"log.level", "DEBUG", "debug"},
		{"log.file", "/tmp/nvimcp.log", "/tmp/nvimcp.log"},
		{"http.host", "0.0.0.0", "0.0.0.0"},
		{"http.port", "8080", "8080"},
		{"rpc.call_timeout", "2s", "2s"},
		{"rpc.connect_timeout", "750ms", "750ms"},
		{"rpc.notify_buffer", "128", "128"},
		{"tools.lua_discovery", "false", "false"},
		{"audit.enabled", "FALSE", "false"},
		{"audit.retention", "4w", "4w"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			c := &Config{}
			assert.False(t, c.IsSet(tt.key))
			require.NoError(t, c.Set(tt.key, tt.value))
			assert.True(t, c.IsSet(tt.key))
			got, err := c.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetRejects(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"log.level", "verbose"},
		{"http.port", "70000"},
		{"http.port", "abc"},
		{"rpc.call_timeout", "soon"},
		{"rpc.call_timeout", "1ns"},
		{"rpc.connect_timeout", "1h"},
		{"rpc.notify_buffer", "0"},
		{"tools.lua_discovery", "yes"},
		{"audit.retention", "30s"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			c := &Config{}
			assert.ErrorIs(t, c.Set(tt.key, tt.value), ErrInvalidValue)
			assert.False(t, c.IsSet(tt.key))
		})
	}

	c := &Config{}
	assert.ErrorIs(t, c.Set("nope", "x"), ErrUnknownKey)
	_, err := c.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestAllCoversValidKeys(t *testing.T) {
	all := (&Config{}).All()
	for _, k := range ValidKeys() {
		assert.Contains(t, all, k)
	}
	assert.Len(t, all, len(ValidKeys()))
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".nvimcp", "config.yaml")

	c := &Config{path: path}
	require.NoError(t, c.Set("rpc.call_timeout", "10s"))
	require.NoError(t, c.Set("audit.enabled", "false"))
	require.NoError(t, c.Save())

	loaded, err := loadPath(path, ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, loaded.CallTimeout())
	assert.False(t, loaded.AuditEnabled())
	assert.Equal(t, ScopeLocal, loaded.Scope())
	assert.False(t, loaded.IsSet("http.port"))
}

func TestLoadMissingFile(t *testing.T) {
	c, err := loadPath(filepath.Join(t.TempDir(), "none.yaml"), ScopeGlobal)
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, c.Scope())
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rpc: [unclosed"), 0644))
	_, err := loadPath(bad, ScopeLocal)
	assert.ErrorContains(t, err, "malformed config file")

	outOfRange := filepath.Join(dir, "range.yaml")
	require.NoError(t, os.WriteFile(outOfRange, []byte("rpc:\n  notify_buffer: 0\n"), 0644))
	_, err = loadPath(outOfRange, ScopeLocal)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestLoadPrefersLocal(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.MkdirAll(".nvimcp", 0755))
	require.NoError(t, os.WriteFile(LocalPath(), []byte("log:\n  level: warn\n"), 0644))

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ScopeLocal, c.Scope())
	assert.Equal(t, "warn", c.LogLevel())
}
