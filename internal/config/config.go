package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Server struct {
		Addr                string `yaml:"addr"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`

	Policy struct {
		CancelThresholdHours int `yaml:"cancel_threshold_hours"`
		CheckInGraceSeconds  int `yaml:"check_in_grace_seconds"`
		CheckOutGraceSeconds int `yaml:"check_out_grace_seconds"`
		AbsentGraceMinutes   int `yaml:"absent_grace_minutes"`
	} `yaml:"policy"`

	Sweeper struct {
		Enabled              bool   `yaml:"enabled"`
		Timezone             string `yaml:"timezone"`
		DailyHour            int    `yaml:"daily_hour"`
		DailyMinute          int    `yaml:"daily_minute"`
		CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
		LockTTLSeconds       int    `yaml:"lock_ttl_seconds"`
	} `yaml:"sweeper"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Telegram struct {
		BotToken      string  `yaml:"bot_token"`
		ChatID        int64   `yaml:"chat_id"`
		RatePerSecond float64 `yaml:"rate_per_second"`
	} `yaml:"telegram"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`
}

// Load reads the YAML config at path. A .env file next to the working
// directory is loaded first so ${ENV_VAR} placeholders can refer to it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/clinic.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []string
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, "auth.jwt_secret is required")
	}
	if c.Sweeper.DailyHour < 0 || c.Sweeper.DailyHour > 23 {
		errs = append(errs, "sweeper.daily_hour must be 0-23")
	}
	if c.Sweeper.DailyMinute < 0 || c.Sweeper.DailyMinute > 59 {
		errs = append(errs, "sweeper.daily_minute must be 0-59")
	}
	if c.Policy.CancelThresholdHours < 0 || c.Policy.CheckInGraceSeconds < 0 ||
		c.Policy.CheckOutGraceSeconds < 0 || c.Policy.AbsentGraceMinutes < 0 {
		errs = append(errs, "policy durations must not be negative")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, "rate_limit values must not be negative")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		errs = append(errs, "telegram.chat_id is required when bot_token is set")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be console or json", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

func (c *Config) SlotCacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) CancelThreshold() time.Duration {
	if c.Policy.CancelThresholdHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Policy.CancelThresholdHours) * time.Hour
}

func (c *Config) CheckInGrace() time.Duration {
	if c.Policy.CheckInGraceSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Policy.CheckInGraceSeconds) * time.Second
}

func (c *Config) CheckOutGrace() time.Duration {
	if c.Policy.CheckOutGraceSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Policy.CheckOutGraceSeconds) * time.Second
}

func (c *Config) AbsentGrace() time.Duration {
	if c.Policy.AbsentGraceMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Policy.AbsentGraceMinutes) * time.Minute
}

func (c *Config) SweeperTimezone() string {
	if c.Sweeper.Timezone == "" {
		return "UTC"
	}
	return c.Sweeper.Timezone
}

func (c *Config) SweeperCheckInterval() time.Duration {
	if c.Sweeper.CheckIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Sweeper.CheckIntervalSeconds) * time.Second
}

func (c *Config) SweeperLockTTL() time.Duration {
	if c.Sweeper.LockTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Sweeper.LockTTLSeconds) * time.Second
}

func (c *Config) HealthCheckPort() int {
	if c.Monitoring.HealthCheckPort == 0 {
		return 8090
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) PrometheusPort() int {
	if c.Monitoring.PrometheusPort == 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

func (c *Config) TelegramRate() float64 {
	if c.Telegram.RatePerSecond <= 0 {
		return 1
	}
	return c.Telegram.RatePerSecond
}

func (c *Config) RateLimitRPS() float64 {
	if c.RateLimit.RPS <= 0 {
		return 10
	}
	return c.RateLimit.RPS
}

func (c *Config) RateLimitBurst() int {
	if c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

func (c *Config) BackupPath() string {
	if c.Backup.Path == "" {
		return "backups"
	}
	return c.Backup.Path
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetentionDays() int {
	if c.Backup.RetentionDays <= 0 {
		return 14
	}
	return c.Backup.RetentionDays
}
