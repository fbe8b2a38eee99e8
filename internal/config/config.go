// Package config loads and stores the vlmrun CLI settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk CLI configuration. Empty fields fall back to the
// SDK's VLMRUN_* environment variables and defaults.
type Config struct {
	APIKey      string        `mapstructure:"api_key" yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Timeout     float64       `mapstructure:"timeout" yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts,omitempty" json:"max_attempts,omitempty"`
	Logging     LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// LoggingConfig controls CLI diagnostics on stderr.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level,omitempty" json:"level,omitempty"`
	Format string `mapstructure:"format" yaml:"format,omitempty" json:"format,omitempty"`
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"console", "json"}
)

// DefaultPath returns ~/.vlmrun/config.yaml, or config.yaml in the working
// directory when no home directory is known.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "config.yaml"
	}
	return filepath.Join(home, ".vlmrun", "config.yaml")
}

// Load reads the configuration at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VLMRUN")
	_ = v.BindEnv("logging.level", "VLMRUN_LOG_LEVEL")
	_ = v.BindEnv("logging.format", "VLMRUN_LOG_FORMAT")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if c.Timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("timeout must be non-negative, got %v", c.Timeout))
	}
	if c.MaxAttempts < 0 {
		errs = multierror.Append(errs, fmt.Errorf("max_attempts must be non-negative, got %d", c.MaxAttempts))
	}
	if c.Logging.Level != "" && !lo.Contains(validLevels, c.Logging.Level) {
		errs = multierror.Append(errs, fmt.Errorf("invalid logging level: %s", c.Logging.Level))
	}
	if c.Logging.Format != "" && !lo.Contains(validFormats, c.Logging.Format) {
		errs = multierror.Append(errs, fmt.Errorf("invalid logging format: %s", c.Logging.Format))
	}
	return errs.ErrorOrNil()
}

// Save writes the configuration to path with owner-only permissions.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// setting binds a dotted key to a Config field.
type setting struct {
	get   func(*Config) string
	set   func(*Config, string) error
	unset func(*Config)
}

var settings = map[string]setting{
	"api_key": {
		get:   func(c *Config) string { return c.APIKey },
		set:   func(c *Config, v string) error { c.APIKey = v; return nil },
		unset: func(c *Config) { c.APIKey = "" },
	},
	"base_url": {
		get:   func(c *Config) string { return c.BaseURL },
		set:   func(c *Config, v string) error { c.BaseURL = strings.TrimSuffix(v, "/"); return nil },
		unset: func(c *Config) { c.BaseURL = "" },
	},
	"timeout": {
		get: func(c *Config) string {
			if c.Timeout == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Timeout, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("timeout must be a number of seconds: %w", err)
			}
			c.Timeout = f
			return nil
		},
		unset: func(c *Config) { c.Timeout = 0 },
	},
	"max_attempts": {
		get: func(c *Config) string {
			if c.MaxAttempts == 0 {
				return ""
			}
			return strconv.Itoa(c.MaxAttempts)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("max_attempts must be an integer: %w", err)
			}
			c.MaxAttempts = n
			return nil
		},
		unset: func(c *Config) { c.MaxAttempts = 0 },
	},
	"logging.level": {
		get:   func(c *Config) string { return c.Logging.Level },
		set:   func(c *Config, v string) error { c.Logging.Level = strings.ToLower(v); return nil },
		unset: func(c *Config) { c.Logging.Level = "" },
	},
	"logging.format": {
		get:   func(c *Config) string { return c.Logging.Format },
		set:   func(c *Config, v string) error { c.Logging.Format = strings.ToLower(v); return nil },
		unset: func(c *Config) { c.Logging.Format = "" },
	},
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := lo.Keys(settings)
	sort.Strings(keys)
	return keys
}

func lookup(key string) (setting, error) {
	s, ok := settings[key]
	if !ok {
		return setting{}, fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}
	return s, nil
}

// Get returns the value stored under key.
func (c *Config) Get(key string) (string, error) {
	s, err := lookup(key)
	if err != nil {
		return "", err
	}
	return s.get(c), nil
}

// Set parses value into key and validates the result.
func (c *Config) Set(key, value string) error {
	s, err := lookup(key)
	if err != nil {
		return err
	}
	next := *c
	if err := s.set(&next, strings.TrimSpace(value)); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Unset clears key.
func (c *Config) Unset(key string) error {
	s, err := lookup(key)
	if err != nil {
		return err
	}
	s.unset(c)
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.APIKey != "" {
		out.APIKey = MaskSecret(out.APIKey)
	}
	return out
}

// MaskSecret keeps the first and last four characters of long secrets.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
