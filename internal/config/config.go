package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	d.Duration = dur
	return nil
}

// Monitor seeds one monitor at startup.
type Monitor struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address     string   `yaml:"address"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver    string   `yaml:"driver"`
	Path      string   `yaml:"path"`
	DSN       string   `yaml:"dsn"`
	Retention Duration `yaml:"retention"`
}

// SchedulerConfig holds polling settings.
type SchedulerConfig struct {
	Tick Duration `yaml:"tick"`
}

// ProbeConfig tunes the HTTP checker.
type ProbeConfig struct {
	UserAgent    string `yaml:"user_agent"`
	MaxRedirects int    `yaml:"max_redirects"`
}

// DashboardConfig holds dashboard settings.
type DashboardConfig struct {
	Refresh Duration `yaml:"refresh"`
}

// WebhookConfig holds generic webhook settings.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// SlackConfig holds Slack incoming-webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string `yaml:"token"`
	ChatID    int64  `yaml:"chat_id"`
	ServerURL string `yaml:"server_url"`
}

// AMQPConfig holds event publishing settings.
type AMQPConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// AlertsConfig holds all alert configuration.
type AlertsConfig struct {
	Mention  string         `yaml:"mention"`
	Cooldown Duration       `yaml:"cooldown"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Slack    SlackConfig    `yaml:"slack"`
	Telegram TelegramConfig `yaml:"telegram"`
	AMQP     AMQPConfig     `yaml:"amqp"`
}

// RedisConfig enables the status mirror when URL or Addr is set.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Addr != ""
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Probe     ProbeConfig     `yaml:"probe"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Monitors  []Monitor       `yaml:"monitors"`
}

const (
	defaultAddress      = ":8080"
	defaultDriver       = "sqlite"
	defaultPath         = "uptimewatch.db"
	defaultRetention    = 30 * 24 * time.Hour
	defaultTick         = 30 * time.Second
	defaultRefresh      = 5 * time.Second
	defaultUserAgent    = "UptimeMonitorBot/1.0"
	defaultMaxRedirects = 10
	defaultMention      = "@everyone"
	defaultRedisPrefix  = "uptimewatch:"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
)

var (
	validDrivers    = map[string]bool{"sqlite": true, "postgres": true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

// Default returns a configuration with every default applied and no
// monitors, alerts or Redis.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, expands, parses, and validates the config file at path.
// A .env file next to the config, if present, is loaded into the
// environment first; ${VAR} references in the file are then expanded.
// Variables already set in the environment win over .env values.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	// Monitors are decoded with string durations so errors can name the
	// offending monitor.
	type rawMonitor struct {
		Name     string `yaml:"name"`
		URL      string `yaml:"url"`
		Interval string `yaml:"interval"`
		Timeout  string `yaml:"timeout"`
	}
	type rawConfig struct {
		Server    ServerConfig    `yaml:"server"`
		Storage   StorageConfig   `yaml:"storage"`
		Scheduler SchedulerConfig `yaml:"scheduler"`
		Probe     ProbeConfig     `yaml:"probe"`
		Dashboard DashboardConfig `yaml:"dashboard"`
		Alerts    AlertsConfig    `yaml:"alerts"`
		Redis     RedisConfig     `yaml:"redis"`
		Log       LogConfig       `yaml:"log"`
		Monitors  []rawMonitor    `yaml:"monitors"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg := &Config{
		Server:    raw.Server,
		Storage:   raw.Storage,
		Scheduler: raw.Scheduler,
		Probe:     raw.Probe,
		Dashboard: raw.Dashboard,
		Alerts:    raw.Alerts,
		Redis:     raw.Redis,
		Log:       raw.Log,
	}
	applyDefaults(cfg)

	names := make(map[string]bool, len(raw.Monitors))
	for i, rm := range raw.Monitors {
		if rm.Name == "" {
			return nil, fmt.Errorf("monitor[%d]: name is required", i)
		}
		if names[rm.Name] {
			return nil, fmt.Errorf("duplicate monitor name %q", rm.Name)
		}
		names[rm.Name] = true

		if rm.URL == "" {
			return nil, fmt.Errorf("monitor %q: url is required", rm.Name)
		}

		m := Monitor{Name: rm.Name, URL: rm.URL}
		if rm.Interval != "" {
			d, err := time.ParseDuration(rm.Interval)
			if err != nil {
				return nil, fmt.Errorf("monitor %q: invalid interval %q: %w", rm.Name, rm.Interval, err)
			}
			m.Interval = Duration{d}
		}
		if rm.Timeout != "" {
			d, err := time.ParseDuration(rm.Timeout)
			if err != nil {
				return nil, fmt.Errorf("monitor %q: invalid timeout %q: %w", rm.Name, rm.Timeout, err)
			}
			m.Timeout = Duration{d}
		}
		cfg.Monitors = append(cfg.Monitors, m)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultAddress
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaultDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = defaultPath
	}
	if cfg.Storage.Retention.Duration == 0 {
		cfg.Storage.Retention = Duration{defaultRetention}
	}
	if cfg.Scheduler.Tick.Duration == 0 {
		cfg.Scheduler.Tick = Duration{defaultTick}
	}
	if cfg.Probe.UserAgent == "" {
		cfg.Probe.UserAgent = defaultUserAgent
	}
	if cfg.Probe.MaxRedirects == 0 {
		cfg.Probe.MaxRedirects = defaultMaxRedirects
	}
	if cfg.Dashboard.Refresh.Duration == 0 {
		cfg.Dashboard.Refresh = Duration{defaultRefresh}
	}
	if cfg.Alerts.Mention == "" {
		cfg.Alerts.Mention = defaultMention
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = defaultRedisPrefix
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaultLogFormat
	}
}

func (c *Config) validate() error {
	if !validDrivers[c.Storage.Driver] {
		return fmt.Errorf("storage: invalid driver %q (must be sqlite or postgres)", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return fmt.Errorf("storage: dsn is required for the postgres driver")
	}
	if c.Storage.Retention.Duration < 0 {
		return fmt.Errorf("storage: retention must not be negative")
	}
	if c.Scheduler.Tick.Duration < 0 {
		return fmt.Errorf("scheduler: tick must be positive")
	}
	if c.Dashboard.Refresh.Duration < 0 {
		return fmt.Errorf("dashboard: refresh must be positive")
	}
	if c.Probe.MaxRedirects < 0 {
		return fmt.Errorf("probe: max_redirects must not be negative")
	}
	if c.Alerts.Cooldown.Duration < 0 {
		return fmt.Errorf("alerts: cooldown must not be negative")
	}
	if c.Alerts.Telegram.Token != "" && c.Alerts.Telegram.ChatID == 0 {
		return fmt.Errorf("alerts.telegram: chat_id is required when token is set")
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("log: invalid level %q (must be debug, info, warn, or error)", c.Log.Level)
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("log: invalid format %q (must be text or json)", c.Log.Format)
	}
	return nil
}
