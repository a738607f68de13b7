// Package config loads packagekit settings from defaults, an optional YAML
// file and PACKAGEKIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/uniquestream/packagekit/pkg/catalog"
	"github.com/uniquestream/packagekit/pkg/version"
)

// EnvPrefix is prepended to environment overrides, e.g. PACKAGEKIT_HOST_VERSION.
const EnvPrefix = "PACKAGEKIT"

// Config is the complete packagekit configuration.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Host      HostConfig      `mapstructure:"host"`
	Portal    PortalConfig    `mapstructure:"portal"`
	Transport TransportConfig `mapstructure:"transport"`
	Log       LogConfig       `mapstructure:"log"`
}

// PathsConfig holds the install and state directories.
type PathsConfig struct {
	// PluginsRoot holds one directory per installed plugin id
	PluginsRoot string `mapstructure:"plugins_root"`

	// ScenesRoot holds scene-packages/<id>/<version>
	ScenesRoot string `mapstructure:"scenes_root"`

	// TempDir receives downloads before verification
	TempDir string `mapstructure:"temp_dir"`

	// StateDir holds installed.yaml and modules.yaml
	StateDir string `mapstructure:"state_dir"`
}

// HostConfig describes the running host application.
type HostConfig struct {
	Version string `mapstructure:"version"`
}

// PortalConfig locates the package portal.
type PortalConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	PackagesEndpoint string `mapstructure:"packages_endpoint"`
	PackageEndpoint  string `mapstructure:"package_endpoint"`

	// Token is sent as a bearer token when set
	Token string `mapstructure:"token"`
}

// TransportConfig tunes the HTTP fetcher.
type TransportConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	UserAgent    string        `mapstructure:"user_agent"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst    int           `mapstructure:"rate_burst"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	base := filepath.Join(homeDir, ".packagekit")

	return &Config{
		Paths: PathsConfig{
			PluginsRoot: filepath.Join(base, "plugins"),
			ScenesRoot:  filepath.Join(base, "scenes"),
			TempDir:     filepath.Join(os.TempDir(), "packagekit"),
			StateDir:    filepath.Join(base, "state"),
		},
		Host: HostConfig{
			Version: "30.0.0",
		},
		Portal: PortalConfig{
			BaseURL:          catalog.DefaultBaseURL,
			PackagesEndpoint: catalog.DefaultPackagesEndpoint,
			PackageEndpoint:  catalog.DefaultPackageEndpoint,
		},
		Transport: TransportConfig{
			Timeout:      5 * time.Minute,
			MaxRetries:   3,
			BaseDelay:    500 * time.Millisecond,
			UserAgent:    "packagekit/1.0",
			RateLimit:    0,
			RateBurst:    1,
			MaxBodyBytes: 512 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Paths.PluginsRoot == "" {
		return fmt.Errorf("paths.plugins_root cannot be empty")
	}
	if c.Paths.ScenesRoot == "" {
		return fmt.Errorf("paths.scenes_root cannot be empty")
	}
	if c.Paths.TempDir == "" {
		return fmt.Errorf("paths.temp_dir cannot be empty")
	}
	if c.Paths.StateDir == "" {
		return fmt.Errorf("paths.state_dir cannot be empty")
	}

	if len(version.Parse(c.Host.Version)) == 0 {
		return fmt.Errorf("host.version must be a dotted version, got %q", c.Host.Version)
	}

	u, err := url.Parse(c.Portal.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("portal.base_url must be an http(s) URL, got %q", c.Portal.BaseURL)
	}
	if !strings.Contains(c.Portal.PackageEndpoint, "%1") {
		return fmt.Errorf("portal.package_endpoint must contain the %%1 id placeholder")
	}

	if c.Transport.Timeout <= 0 {
		return fmt.Errorf("transport.timeout must be positive")
	}
	if c.Transport.MaxRetries < 0 {
		return fmt.Errorf("transport.max_retries cannot be negative")
	}
	if c.Transport.RateLimit < 0 {
		return fmt.Errorf("transport.rate_limit cannot be negative")
	}
	if c.Transport.MaxBodyBytes <= 0 {
		return fmt.Errorf("transport.max_body_bytes must be positive")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}

	return nil
}

// API returns the portal endpoints as a catalog configuration.
func (c *Config) API() catalog.APIConfig {
	return catalog.APIConfig{
		BaseURL:          c.Portal.BaseURL,
		PackagesEndpoint: c.Portal.PackagesEndpoint,
		PackageEndpoint:  c.Portal.PackageEndpoint,
	}
}

// LedgerFile is the installed packages ledger.
func (c *Config) LedgerFile() string {
	return filepath.Join(c.Paths.StateDir, "installed.yaml")
}

// ModulesFile is the persisted module list.
func (c *Config) ModulesFile() string {
	return filepath.Join(c.Paths.StateDir, "modules.yaml")
}

// SetDefaults registers every key of DefaultConfig with v so that
// environment variables can override keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Paths
	v.SetDefault("paths.plugins_root", d.Paths.PluginsRoot)
	v.SetDefault("paths.scenes_root", d.Paths.ScenesRoot)
	v.SetDefault("paths.temp_dir", d.Paths.TempDir)
	v.SetDefault("paths.state_dir", d.Paths.StateDir)

	// Host
	v.SetDefault("host.version", d.Host.Version)

	// Portal
	v.SetDefault("portal.base_url", d.Portal.BaseURL)
	v.SetDefault("portal.packages_endpoint", d.Portal.PackagesEndpoint)
	v.SetDefault("portal.package_endpoint", d.Portal.PackageEndpoint)
	v.SetDefault("portal.token", d.Portal.Token)

	// Transport
	v.SetDefault("transport.timeout", d.Transport.Timeout)
	v.SetDefault("transport.max_retries", d.Transport.MaxRetries)
	v.SetDefault("transport.base_delay", d.Transport.BaseDelay)
	v.SetDefault("transport.user_agent", d.Transport.UserAgent)
	v.SetDefault("transport.rate_limit", d.Transport.RateLimit)
	v.SetDefault("transport.rate_burst", d.Transport.RateBurst)
	v.SetDefault("transport.max_body_bytes", d.Transport.MaxBodyBytes)

	// Log
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads the configuration through v: defaults, then the config file v
// points at (a missing file is not an error), then the environment. The
// result is validated.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Search-path misses and an explicit missing file both fall back to defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
