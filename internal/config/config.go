package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. REMINDER_SCHEDULER__GRACE_WINDOW.
const EnvPrefix = "REMINDER_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Notify    NotifyConfig    `koanf:"notify"`
	Line      LineConfig      `koanf:"line"`
	Retention RetentionConfig `koanf:"retention"`
}

type ServerConfig struct {
	Port string `koanf:"port"`
}

type DatabaseConfig struct {
	Path   string `koanf:"path"`
	LogSQL bool   `koanf:"log_sql"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // console or json
}

type SchedulerConfig struct {
	GraceWindow  time.Duration `koanf:"grace_window"`
	CallTimeout  time.Duration `koanf:"call_timeout"`
	FireTimeout  time.Duration `koanf:"fire_timeout"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
	MaxRetries   int           `koanf:"max_retries"`
	ExactAlarms  bool          `koanf:"exact_alarms"`
}

type NotifyConfig struct {
	QueueSize  int           `koanf:"queue_size"`
	Workers    int           `koanf:"workers"`
	RatePerSec int           `koanf:"rate_per_sec"`
	Timeout    time.Duration `koanf:"timeout"`
}

type LineConfig struct {
	Enabled            bool   `koanf:"enabled"`
	ChannelSecret      string `koanf:"channel_secret"`
	ChannelAccessToken string `koanf:"channel_access_token"`
	To                 string `koanf:"to"` // User that receives reminder pushes
}

type RetentionConfig struct {
	History   time.Duration `koanf:"history"`
	PurgeSpec string        `koanf:"purge_spec"`
}

// legacyEnv maps the environment variables of earlier deployments to config keys.
var legacyEnv = map[string]string{
	"PORT":                 "server.port",
	"BLUEPRINT_DB_URL":     "database.path",
	"CHANNEL_SECRET":       "line.channel_secret",
	"CHANNEL_ACCESS_TOKEN": "line.channel_access_token",
	"MY_USER_ID":           "line.to",
}

// envKey turns REMINDER_SCHEDULER__GRACE_WINDOW into scheduler.grace_window.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load merges defaults, the optional YAML file at configPath and the environment.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(NewDefaultProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	for name, key := range legacyEnv {
		if v := os.Getenv(name); v != "" {
			k.Set(key, v)
		}
	}
	// Earlier deployments always pushed to LINE.
	if os.Getenv("CHANNEL_ACCESS_TOKEN") != "" {
		k.Set("line.enabled", true)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Scheduler.GraceWindow < 0 {
		return fmt.Errorf("scheduler.grace_window must not be negative")
	}
	if c.Scheduler.CallTimeout <= 0 {
		return fmt.Errorf("scheduler.call_timeout must be positive")
	}
	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("scheduler.max_retries must not be negative")
	}
	if c.Notify.Workers <= 0 || c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify.workers and notify.queue_size must be positive")
	}
	if c.Retention.History < 0 {
		return fmt.Errorf("retention.history must not be negative")
	}
	if c.Line.Enabled {
		if c.Line.ChannelSecret == "" || c.Line.ChannelAccessToken == "" {
			return fmt.Errorf("LINE channel secret and access token are required (set CHANNEL_SECRET and CHANNEL_ACCESS_TOKEN)")
		}
		if c.Line.To == "" {
			return fmt.Errorf("line.to is required when LINE is enabled (set MY_USER_ID)")
		}
	}
	return nil
}
