package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Certificate override policies.
//
// CertificateOverrideOncePerSession accepts the first offending certificate
// class seen in a session and keeps accepting it until the session closes.
// This downgrades transport security and must be enabled explicitly.
const (
	CertificateOverrideNever          = "never"
	CertificateOverrideOncePerSession = "once_per_session"
)

// Config represents the entire application configuration
type Config struct {
	Profile     ProfileConfig     `mapstructure:"profile"`
	Downloads   DownloadsConfig   `mapstructure:"downloads"`
	Navigation  NavigationConfig  `mapstructure:"navigation"`
	Proxy       ProxyConfig       `mapstructure:"proxy"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
}

// ProfileConfig locates the browser profile on disk
type ProfileConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// DownloadsConfig contains download manager settings
type DownloadsConfig struct {
	RootDir                 string `mapstructure:"root_dir"`
	ProgressPersistInterval string `mapstructure:"progress_persist_interval"`
	ProgressReportInterval  string `mapstructure:"progress_report_interval"`
	BufferSizeKB            int    `mapstructure:"buffer_size_kb"`
}

// NavigationConfig contains page-load retry settings
type NavigationConfig struct {
	HomeURL             string `mapstructure:"home_url"`
	LoadTimeout         string `mapstructure:"load_timeout"`
	MaxRetries          int    `mapstructure:"max_retries"`
	RetryBackoff        string `mapstructure:"retry_backoff"`
	CertificateOverride string `mapstructure:"certificate_override"`
}

// ProxyConfig contains SOCKS5 anonymization proxy settings
type ProxyConfig struct {
	Address      string `mapstructure:"address"`
	ProbeTimeout string `mapstructure:"probe_timeout"`
}

// HTTPConfig contains control API server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`

	// Username and Password enable basic auth on the control API when both are set
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MaintenanceConfig contains housekeeping settings
type MaintenanceConfig struct {
	Interval       string `mapstructure:"interval"`
	TempFileMaxAge string `mapstructure:"temp_file_max_age"`
	HistoryMaxAge  string `mapstructure:"history_max_age"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains download history database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from the specified file path.
// A missing file is not an error: defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BROWSER_SHELL")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyPlatformDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("profile.data_dir", "")
	v.SetDefault("downloads.root_dir", "")
	v.SetDefault("downloads.progress_persist_interval", "2s")
	v.SetDefault("downloads.progress_report_interval", "250ms")
	v.SetDefault("downloads.buffer_size_kb", 256)
	v.SetDefault("navigation.home_url", "https://www.google.com")
	v.SetDefault("navigation.load_timeout", "30s")
	v.SetDefault("navigation.max_retries", 3)
	v.SetDefault("navigation.retry_backoff", "1s")
	v.SetDefault("navigation.certificate_override", CertificateOverrideNever)
	v.SetDefault("proxy.address", "127.0.0.1:9050")
	v.SetDefault("proxy.probe_timeout", "3s")
	v.SetDefault("http.bind_addr", "127.0.0.1:8765")
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.username", "")
	v.SetDefault("http.password", "")
	v.SetDefault("maintenance.interval", "1h")
	v.SetDefault("maintenance.temp_file_max_age", "24h")
	v.SetDefault("maintenance.history_max_age", "720h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.path", "")
}

// applyPlatformDefaults fills in directories that depend on the user's platform
func (c *Config) applyPlatformDefaults() {
	if c.Profile.DataDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			c.Profile.DataDir = filepath.Join(dir, "browser-shell")
		} else {
			c.Profile.DataDir = ".browser-shell"
		}
	}
	if c.Downloads.RootDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Downloads.RootDir = filepath.Join(home, "Downloads")
		} else {
			c.Downloads.RootDir = "Downloads"
		}
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.ProfileDir(), "history.db")
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Navigation.MaxRetries < 1 {
		return fmt.Errorf("navigation.max_retries must be at least 1")
	}

	switch c.Navigation.CertificateOverride {
	case CertificateOverrideNever, CertificateOverrideOncePerSession:
	default:
		return fmt.Errorf("invalid navigation.certificate_override: %s", c.Navigation.CertificateOverride)
	}

	durations := map[string]string{
		"downloads.progress_persist_interval": c.Downloads.ProgressPersistInterval,
		"downloads.progress_report_interval":  c.Downloads.ProgressReportInterval,
		"navigation.load_timeout":             c.Navigation.LoadTimeout,
		"navigation.retry_backoff":            c.Navigation.RetryBackoff,
		"proxy.probe_timeout":                 c.Proxy.ProbeTimeout,
		"maintenance.interval":                c.Maintenance.Interval,
		"maintenance.temp_file_max_age":       c.Maintenance.TempFileMaxAge,
		"maintenance.history_max_age":         c.Maintenance.HistoryMaxAge,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Proxy.Address == "" {
		return fmt.Errorf("proxy.address is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// ProfileDir returns <data_dir>/browser-profile
func (c *Config) ProfileDir() string {
	return filepath.Join(c.Profile.DataDir, "browser-profile")
}

// CookieDir returns the directory holding cookies.dat and its backup
func (c *Config) CookieDir() string {
	return filepath.Join(c.ProfileDir(), "cookies")
}

// AllowsCertificateOverride reports whether the trust-downgrade policy is on
func (c *NavigationConfig) AllowsCertificateOverride() bool {
	return c.CertificateOverride == CertificateOverrideOncePerSession
}

// GetLoadTimeout returns the page load timeout as time.Duration
func (c *NavigationConfig) GetLoadTimeout() time.Duration {
	return parseDurationOr(c.LoadTimeout, 30*time.Second)
}

// GetRetryBackoff returns the base delay before an automatic retry
func (c *NavigationConfig) GetRetryBackoff() time.Duration {
	d, err := time.ParseDuration(c.RetryBackoff)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

// GetProgressPersistInterval returns how often progress is written to history
func (c *DownloadsConfig) GetProgressPersistInterval() time.Duration {
	return parseDurationOr(c.ProgressPersistInterval, 2*time.Second)
}

// GetProgressReportInterval returns how often the engine reports received bytes
func (c *DownloadsConfig) GetProgressReportInterval() time.Duration {
	return parseDurationOr(c.ProgressReportInterval, 250*time.Millisecond)
}

// GetBufferSize returns the copy buffer size in bytes
func (c *DownloadsConfig) GetBufferSize() int {
	if c.BufferSizeKB <= 0 {
		return 256 * 1024
	}
	return c.BufferSizeKB * 1024
}

// GetProbeTimeout returns the proxy port probe timeout
func (c *ProxyConfig) GetProbeTimeout() time.Duration {
	return parseDurationOr(c.ProbeTimeout, 3*time.Second)
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseDurationOr(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseDurationOr(c.WriteTimeout, 30*time.Second)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseDurationOr(c.IdleTimeout, 60*time.Second)
}

// GetInterval returns how often maintenance runs
func (c *MaintenanceConfig) GetInterval() time.Duration {
	return parseDurationOr(c.Interval, time.Hour)
}

// GetTempFileMaxAge returns the age after which partial downloads are removed
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	return parseDurationOr(c.TempFileMaxAge, 24*time.Hour)
}

// GetHistoryMaxAge returns the age after which finished history rows are pruned
func (c *MaintenanceConfig) GetHistoryMaxAge() time.Duration {
	return parseDurationOr(c.HistoryMaxAge, 30*24*time.Hour)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(value)
	if d <= 0 {
		return fallback
	}
	return d
}
