package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("VLMRUN_LOG_LEVEL", "")
	t.Setenv("VLMRUN_LOG_FORMAT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func TestLoadReadsFile(t *testing.T) {
	t.Setenv("VLMRUN_LOG_LEVEL", "")
	t.Setenv("VLMRUN_LOG_FORMAT", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: sk-file
base_url: https://dev.vlm.run/v1
timeout: 30
max_attempts: 2
logging:
  level: debug
  format: json
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-file", cfg.APIKey)
	assert.Equal(t, "https://dev.vlm.run/v1", cfg.BaseURL)
	assert.Equal(t, 30.0, cfg.Timeout)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json"}, cfg.Logging)
}

func TestLoadEnvOverridesLogging(t *testing.T) {
	t.Setenv("VLMRUN_LOG_LEVEL", "error")
	t.Setenv("VLMRUN_LOG_FORMAT", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("VLMRUN_LOG_LEVEL", "")
	t.Setenv("VLMRUN_LOG_FORMAT", "")

	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "Level", content: "logging:\n  level: loud\n", wantMsg: "invalid logging level"},
		{name: "Format", content: "logging:\n  format: xml\n", wantMsg: "invalid logging format"},
		{name: "Timeout", content: "timeout: -1\n", wantMsg: "timeout must be non-negative"},
		{name: "Malformed", content: "api_key: [unterminated\n", wantMsg: "error reading config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("VLMRUN_LOG_LEVEL", "")
	t.Setenv("VLMRUN_LOG_FORMAT", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := &Config{APIKey: "sk-saved", Timeout: 12.5, Logging: LoggingConfig{Level: "info"}}
	require.NoError(t, Save(path, cfg))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-saved", loaded.APIKey)
	assert.Equal(t, 12.5, loaded.Timeout)
	assert.Equal(t, "info", loaded.Logging.Level)
	assert.Equal(t, "console", loaded.Logging.Format)

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".config-*"))
	assert.Empty(t, leftovers)
}

func TestSetAndUnset(t *testing.T) {
	cfg := &Config{}

	require.NoError(t, cfg.Set("base_url", "https://dev.vlm.run/v1/"))
	require.NoError(t, cfg.Set("timeout", "45"))
	require.NoError(t, cfg.Set("max_attempts", " 3 "))
	require.NoError(t, cfg.Set("logging.level", "DEBUG"))
	assert.Equal(t, "https://dev.vlm.run/v1", cfg.BaseURL)
	assert.Equal(t, 45.0, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, "debug", cfg.Logging.Level)

	got, err := cfg.Get("timeout")
	require.NoError(t, err)
	assert.Equal(t, "45", got)

	assert.Error(t, cfg.Set("timeout", "soon"))
	assert.Error(t, cfg.Set("max_attempts", "-1"))
	assert.Equal(t, 3, cfg.MaxAttempts, "a rejected value leaves the config untouched")
	assert.Error(t, cfg.Set("logging.format", "xml"))

	err = cfg.Set("colour", "on")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid keys: api_key, base_url, logging.format")

	require.NoError(t, cfg.Unset("timeout"))
	assert.Zero(t, cfg.Timeout)
	got, _ = cfg.Get("timeout")
	assert.Empty(t, got)
	assert.Error(t, cfg.Unset("nope"))
}

func TestRedacted(t *testing.T) {
	cfg := &Config{APIKey: "sk-1234567890abcdef"}
	red := cfg.Redacted()
	assert.Equal(t, "sk-1***********cdef", red.APIKey)
	assert.Equal(t, "sk-1234567890abcdef", cfg.APIKey)

	assert.Equal(t, "****", MaskSecret("abcd"))
	assert.Empty(t, MaskSecret(""))
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	assert.Equal(t, filepath.Join(home, ".vlmrun", "config.yaml"), DefaultPath())
}
