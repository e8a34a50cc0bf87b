package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("CLINIC_TEST_SECRET", "s3cret")
	dbPath := filepath.Join(t.TempDir(), "nested", "clinic.db")
	path := writeConfig(t, `
auth:
  jwt_secret: "${CLINIC_TEST_SECRET}"
database:
  path: `+dbPath+`
policy:
  absent_grace_minutes: 15
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.DirExists(t, filepath.Dir(dbPath))

	assert.Equal(t, 24*time.Hour, cfg.CancelThreshold())
	assert.Equal(t, time.Minute, cfg.CheckInGrace())
	assert.Equal(t, time.Minute, cfg.CheckOutGrace())
	assert.Equal(t, 15*time.Minute, cfg.AbsentGrace())
	assert.Equal(t, "UTC", cfg.SweeperTimezone())
	assert.Equal(t, 5*time.Minute, cfg.SlotCacheTTL())
	assert.Equal(t, 8090, cfg.HealthCheckPort())
	assert.Equal(t, 9090, cfg.PrometheusPort())
	assert.Equal(t, 14, cfg.BackupRetentionDays())
	assert.Equal(t, "backups", cfg.BackupPath())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "auth: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{}
		c.Auth.JWTSecret = "x"
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"ok", func(*Config) {}, ""},
		{"no secret", func(c *Config) { c.Auth.JWTSecret = " " }, "auth.jwt_secret"},
		{"bad hour", func(c *Config) { c.Sweeper.DailyHour = 24 }, "daily_hour"},
		{"bad minute", func(c *Config) { c.Sweeper.DailyMinute = -1 }, "daily_minute"},
		{"negative grace", func(c *Config) { c.Policy.AbsentGraceMinutes = -5 }, "policy"},
		{"telegram without chat", func(c *Config) { c.Telegram.BotToken = "tok" }, "chat_id"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
