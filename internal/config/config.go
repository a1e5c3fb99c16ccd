// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Backend  BackendConfig  `mapstructure:"backend" yaml:"backend"`
	Identity IdentityConfig `mapstructure:"identity" yaml:"identity"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Overlay  OverlayConfig  `mapstructure:"overlay" yaml:"overlay"`
	Locator  LocatorConfig  `mapstructure:"locator" yaml:"locator"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
}

// LoggerConfig configures the zap logger and optional rotating log file.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BackendConfig points at the remote text-processing backend.
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// CallerID is sent as the X-Extension-ID header on every request.
	CallerID       string        `mapstructure:"caller_id" yaml:"caller_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// ProbeRate caps /me auth probes per second across all surfaces.
	ProbeRate  float64 `mapstructure:"probe_rate" yaml:"probe_rate"`
	ProbeBurst int     `mapstructure:"probe_burst" yaml:"probe_burst"`
	Language   string  `mapstructure:"language" yaml:"language"`
}

// IdentityConfig points at the identity provider.
type IdentityConfig struct {
	TokenURL  string        `mapstructure:"token_url" yaml:"token_url"`
	RevokeURL string        `mapstructure:"revoke_url" yaml:"revoke_url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StorageConfig locates the persistent key-value state file.
type StorageConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// OverlayConfig tunes the in-page overlay session.
type OverlayConfig struct {
	AuthPollInterval time.Duration `mapstructure:"auth_poll_interval" yaml:"auth_poll_interval"`
	PreviewLength    int           `mapstructure:"preview_length" yaml:"preview_length"`
}

// LocatorConfig tunes the text locator replay loop.
type LocatorConfig struct {
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	// PendingTTL bounds how long a pending highlight stays applicable.
	PendingTTL time.Duration `mapstructure:"pending_ttl" yaml:"pending_ttl"`
}

// BrowserConfig holds settings for the headless browser used by live highlighting.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	NavigateTimeout time.Duration `mapstructure:"navigate_timeout" yaml:"navigate_timeout"`
}

// SetDefaults registers every default on the given viper instance. Called
// before ReadInConfig so a partial config file only overrides what it names.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "textlens")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("backend.base_url", "http://127.0.0.1:8000")
	v.SetDefault("backend.caller_id", "textlens-host")
	v.SetDefault("backend.request_timeout", 30*time.Second)
	v.SetDefault("backend.probe_rate", 1.0)
	v.SetDefault("backend.probe_burst", 2)
	v.SetDefault("backend.language", "ru")

	v.SetDefault("identity.token_url", "http://127.0.0.1:8000/auth/token")
	v.SetDefault("identity.revoke_url", "http://127.0.0.1:8000/auth/revoke")
	v.SetDefault("identity.timeout", 15*time.Second)

	v.SetDefault("overlay.auth_poll_interval", 2*time.Second)
	v.SetDefault("overlay.preview_length", 100)

	v.SetDefault("locator.retry_interval", time.Second)
	v.SetDefault("locator.max_attempts", 10)
	v.SetDefault("locator.pending_ttl", 5*time.Minute)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigate_timeout", 45*time.Second)
}

// StateFile returns the path of the persistent key-value state file,
// resolving the default directory under the user's home when unset.
func (s StorageConfig) StateFile() (string, error) {
	dir := s.Dir
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".textlens")
	}
	return filepath.Join(dir, "state.json"), nil
}
