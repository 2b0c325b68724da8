package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/perfana/perfana-dash/pkg/links"
)

// Config holds the configuration of the dashboard service and CLI
type Config struct {
	// Perfana connection
	PerfanaURL  string        `mapstructure:"perfana_url"`
	Token       string        `mapstructure:"token"`
	CallTimeout time.Duration `mapstructure:"call_timeout"` // 0 waits forever

	// Serving
	ListenAddr string `mapstructure:"listen_addr"`
	Port       int    `mapstructure:"port"`
	RPCPort    int    `mapstructure:"rpc_port"` // 0 picks a free port
	Metrics    bool   `mapstructure:"metrics"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Views
	BaselineLabel   string        `mapstructure:"baseline_label"`
	NotificationTTL time.Duration `mapstructure:"notification_ttl"`
	SessionTTL      time.Duration `mapstructure:"session_ttl"`
	Links           links.Bases   `mapstructure:"links"`

	// Snapshot cache and reports
	CacheDB       string   `mapstructure:"cache_db"`
	RetentionDays int      `mapstructure:"retention_days"`
	ReportsDir    string   `mapstructure:"reports_dir"`
	ThemePath     string   `mapstructure:"theme_path"`
	ExportFormats []string `mapstructure:"export_formats"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		PerfanaURL:      "ws://localhost:4000",
		CallTimeout:     0,
		ListenAddr:      "",
		Port:            8090,
		RPCPort:         0,
		Metrics:         true,
		LogLevel:        "info",
		BaselineLabel:   "control group",
		NotificationTTL: 10 * time.Second,
		SessionTTL:      12 * time.Hour,
		CacheDB:         "perfana-dash.db",
		RetentionDays:   90,
		ReportsDir:      "reports",
		ThemePath:       "",
		ExportFormats:   []string{"html"},
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return NewConfig()
}

// LoadConfig loads configuration from the first config file found, then applies
// environment overrides
func LoadConfig() (*Config, error) {
	cfg := NewConfig()

	configPaths := []string{
		"perfana-dash.yml",
		"perfana-dash.yaml",
		"perfana-dash.json",
		".perfana/dash.yml",
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := cfg.LoadFromFile(path); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
			break
		}
	}

	cfg.LoadFromEnv()
	return cfg, nil
}

// LoadFromFile loads configuration from a file (YAML, JSON, or TOML)
func (c *Config) LoadFromFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return err
	}

	return v.Unmarshal(c)
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if u := os.Getenv("PERFANA_URL"); u != "" {
		c.PerfanaURL = u
	}

	if token := os.Getenv("PERFANA_TOKEN"); token != "" {
		c.Token = token
	}

	if port := os.Getenv("PERFANA_DASH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Port = p
		}
	}

	if level := os.Getenv("PERFANA_DASH_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if timeout := os.Getenv("PERFANA_CALL_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.CallTimeout = d
		}
	}

	if db := os.Getenv("PERFANA_DASH_CACHE_DB"); db != "" {
		c.CacheDB = db
	}

	if grafana := os.Getenv("GRAFANA_URL"); grafana != "" {
		c.Links.Grafana = grafana
	}

	if pyroscope := os.Getenv("PYROSCOPE_URL"); pyroscope != "" {
		c.Links.Pyroscope = pyroscope
	}

	if dynatrace := os.Getenv("DYNATRACE_URL"); dynatrace != "" {
		c.Links.Dynatrace = dynatrace
	}
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("perfana_url", c.PerfanaURL)
	v.Set("call_timeout", c.CallTimeout.String())
	v.Set("port", c.Port)
	v.Set("rpc_port", c.RPCPort)
	v.Set("log_level", c.LogLevel)
	v.Set("baseline_label", c.BaselineLabel)
	v.Set("cache_db", c.CacheDB)
	v.Set("retention_days", c.RetentionDays)
	v.Set("reports_dir", c.ReportsDir)
	v.Set("export_formats", c.ExportFormats)
	v.Set("links.grafana", c.Links.Grafana)

	return v.WriteConfig()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.PerfanaURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("perfana_url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss" && u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("perfana_url: unsupported scheme %q", u.Scheme))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port: %d out of range", c.Port))
	}
	if c.RPCPort < 0 || c.RPCPort > 65535 {
		errs = append(errs, fmt.Errorf("rpc_port: %d out of range", c.RPCPort))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, errors.New("call_timeout: must not be negative"))
	}
	if c.RetentionDays < 0 {
		errs = append(errs, errors.New("retention_days: must not be negative"))
	}

	return errors.Join(errs...)
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ListenAddr, c.Port)
}

// DDPURL returns the websocket endpoint of the Perfana server. HTTP schemes
// map to their websocket counterparts and an empty path becomes /websocket.
func (c *Config) DDPURL() (string, error) {
	u, err := url.Parse(c.PerfanaURL)
	if err != nil {
		return "", fmt.Errorf("perfana_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("perfana_url: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/websocket"
	}
	return u.String(), nil
}
