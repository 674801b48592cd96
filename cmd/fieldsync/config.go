// Config loading for the fieldsync CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/openchw/fieldsync/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyDataDir        = "data_dir"
	cfgKeyServerURL      = "server_url"
	cfgKeyRequestTimeout = "request_timeout"
	cfgKeyProbeInterval  = "probe_interval"
	cfgKeyMaxAttempts    = "max_attempts"
	cfgKeyBackoffMin     = "backoff_min"
	cfgKeyBackoffMax     = "backoff_max"

	defaultDataDir   = ".fieldsync-db"
	defaultServerURL = "http://localhost:8787"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# fieldsync configuration

# Remote backend base URL
server_url: http://localhost:8787

# Data directory (optional; overridable by --data-dir)
# data_dir:

# Sync tuning
# request_timeout: 15s
# probe_interval: 30s
# max_attempts: 8
# backoff_min: 1s
# backoff_max: 5m
`

// cliConfig holds the resolved configuration for the current invocation.
var cliConfig types.Config

// loadCLIConfig reads config.yaml from the resolved config directory and
// merges it with flag overrides into cliConfig. A missing config.yaml is
// not an error; defaults apply.
func loadCLIConfig() error {
	configDir := resolveConfigDir()
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return fmt.Errorf("ensure default config: %w", err)
	}

	defaults := types.DefaultConfig()

	v := viper.New()
	v.SetDefault(cfgKeyDataDir, defaultDataDir)
	v.SetDefault(cfgKeyServerURL, defaultServerURL)
	v.SetDefault(cfgKeyRequestTimeout, defaults.RequestTimeout)
	v.SetDefault(cfgKeyProbeInterval, defaults.ProbeInterval)
	v.SetDefault(cfgKeyMaxAttempts, defaults.MaxAttempts)
	v.SetDefault(cfgKeyBackoffMin, defaults.BackoffMin)
	v.SetDefault(cfgKeyBackoffMax, defaults.BackoffMax)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("read config: %w", err)
		}
	}

	cliConfig = types.Config{
		DataDir:        v.GetString(cfgKeyDataDir),
		ServerURL:      v.GetString(cfgKeyServerURL),
		RequestTimeout: v.GetDuration(cfgKeyRequestTimeout),
		ProbeInterval:  v.GetDuration(cfgKeyProbeInterval),
		MaxAttempts:    v.GetInt(cfgKeyMaxAttempts),
		BackoffMin:     v.GetDuration(cfgKeyBackoffMin),
		BackoffMax:     v.GetDuration(cfgKeyBackoffMax),
	}

	// Flags win over config.yaml.
	if flagDataDir != "" {
		cliConfig.DataDir = flagDataDir
	}
	if flagServerURL != "" {
		cliConfig.ServerURL = flagServerURL
	}
	if cliConfig.RequestTimeout == 0 {
		cliConfig.RequestTimeout = 15 * time.Second
	}

	return cliConfig.Validate()
}

// resolveConfigDir returns the config directory from flag, env, or default.
func resolveConfigDir() string {
	if flagConfigDir != "" {
		return flagConfigDir
	}
	if v := os.Getenv("FIELDSYNC_CONFIG_DIR"); v != "" {
		return v
	}
	return ".fieldsync"
}

// ensureDefaultConfigFile creates a default config.yaml if it does not exist.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
