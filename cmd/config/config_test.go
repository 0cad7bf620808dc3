package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	conf := LoadConfig("")
	assert.Equal(t, defaultConfig(), conf)
	assert.NoError(t, conf.Validate())
}

func TestLoadConfigMergesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  mode: debug
store:
  driver: redis
redis_keys:
  entry_prefix: "test:fact:"
  scan_count: 50
cache:
  ttl: 30m
  retry_base_delay: 10ms
  sweep_schedule: "@every 5m"
`)

	conf := LoadConfig(path)
	assert.Equal(t, 9090, conf.Server.Port)
	assert.Equal(t, DebugMode, conf.Server.Mode)
	assert.Equal(t, DriverRedis, conf.Store.Driver)
	assert.Equal(t, "test:fact:", conf.RedisKeys.EntryPrefix)
	assert.Equal(t, "nutricache:marker:", conf.RedisKeys.MarkerPrefix)
	assert.Equal(t, int64(50), conf.RedisKeys.ScanCount)
	assert.Equal(t, 30*time.Minute, conf.Cache.TTL)
	assert.Equal(t, 10*time.Millisecond, conf.Cache.RetryBaseDelay)
	assert.Equal(t, 3, conf.Cache.RetryAttempts)
	assert.Equal(t, "@every 5m", conf.Cache.SweepSchedule)
	assert.Equal(t, "localhost", conf.Postgres.Host)
}

func TestLoadConfigUsesConfigPathEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "store:\n  driver: postgres\n"))

	conf := LoadConfig("")
	assert.Equal(t, DriverPostgres, conf.Store.Driver)
}

func TestLoadConfigIgnoresBadYAML(t *testing.T) {
	conf := LoadConfig(writeConfig(t, "server: [unclosed"))
	assert.Equal(t, defaultConfig(), conf)
}

func TestLoadConfigPasswordsFromEnv(t *testing.T) {
	t.Setenv("REDIS_PASSWORD", "redis-secret")
	t.Setenv("POSTGRES_PASSWORD", "pg-secret")

	conf := LoadConfig(writeConfig(t, "redis_client:\n  password: from-file\n"))
	assert.Equal(t, "redis-secret", conf.RedisClient.Password)
	assert.Equal(t, "pg-secret", conf.Postgres.Password)
}

func TestLoadConfigEdamam(t *testing.T) {
	t.Setenv("EDAMAM_APP_KEY", "env-key")

	conf := LoadConfig(writeConfig(t, `
edamam:
  app_id: file-id
  timeout: 3s
`))
	assert.Equal(t, "file-id", conf.Edamam.AppID)
	assert.Equal(t, "env-key", conf.Edamam.AppKey)
	assert.Equal(t, 3*time.Second, conf.Edamam.Timeout)
	assert.Equal(t, "https://api.edamam.com", conf.Edamam.BaseURL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"negative ttl", func(c *Config) { c.Cache.TTL = -time.Second }},
		{"no retry attempts", func(c *Config) { c.Cache.RetryAttempts = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := defaultConfig()
			tt.modify(&conf)

			err := conf.Validate()
			require.Error(t, err)
			assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
		})
	}
}
