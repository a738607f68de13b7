package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "30.0.0", cfg.Host.Version)
	assert.Equal(t, "http://localhost:8080/portal/api", cfg.Portal.BaseURL)
	assert.Equal(t, "/scene-catalog/packages", cfg.Portal.PackagesEndpoint)
	assert.Equal(t, "/scene-catalog/packages/%1", cfg.Portal.PackageEndpoint)
	assert.Equal(t, 3, cfg.Transport.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.BaseDelay)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, filepath.IsAbs(cfg.Paths.TempDir))
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty plugins root", func(c *Config) { c.Paths.PluginsRoot = "" }, "paths.plugins_root"},
		{"empty state dir", func(c *Config) { c.Paths.StateDir = "" }, "paths.state_dir"},
		{"bad host version", func(c *Config) { c.Host.Version = "" }, "host.version"},
		{"bad base url", func(c *Config) { c.Portal.BaseURL = "ftp://portal" }, "portal.base_url"},
		{"no placeholder", func(c *Config) { c.Portal.PackageEndpoint = "/packages" }, "portal.package_endpoint"},
		{"zero timeout", func(c *Config) { c.Transport.Timeout = 0 }, "transport.timeout"},
		{"negative retries", func(c *Config) { c.Transport.MaxRetries = -1 }, "transport.max_retries"},
		{"bad level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithoutConfigFile(t *testing.T) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Portal, cfg.Portal)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "packagekit.yaml")
	content := `
paths:
  plugins_root: /opt/host/plugins
host:
  version: 31.0.2
portal:
  base_url: https://portal.example.com/portal/api
transport:
  timeout: 30s
  max_retries: 5
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("PACKAGEKIT_PORTAL_TOKEN", "env-token")
	t.Setenv("PACKAGEKIT_HOST_VERSION", "32.0.0")

	v := viper.New()
	v.SetConfigFile(path)

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/opt/host/plugins", cfg.Paths.PluginsRoot)
	assert.Equal(t, "32.0.0", cfg.Host.Version, "environment wins over the file")
	assert.Equal(t, "env-token", cfg.Portal.Token)
	assert.Equal(t, "https://portal.example.com/portal/api/scene-catalog/packages", cfg.API().PackagesURL())
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 5, cfg.Transport.MaxRetries)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join(cfg.Paths.StateDir, "installed.yaml"), cfg.LedgerFile())
	assert.Equal(t, filepath.Join(cfg.Paths.StateDir, "modules.yaml"), cfg.ModulesFile())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packagekit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("paths: [unclosed"), 0644))

	v := viper.New()
	v.SetConfigFile(path)

	_, err := Load(v)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("PACKAGEKIT_LOG_FORMAT", "xml")

	v := viper.New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load(v)
	assert.ErrorContains(t, err, "log.format")
}
