package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubikal7/ski-jumping-management/internal/config"
)

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, config.Defaults().Validate())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SKIJUMP_CONFIG", "")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 12*time.Hour, cfg.JWTExpiration)
	assert.Zero(t, cfg.TeamCacheTTL, "team cache is off unless configured")
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("SKIJUMP_CONFIG", "")
	t.Setenv("SKIJUMP_PORT", "9090")
	t.Setenv("SKIJUMP_TEAM_CACHE_TTL", "45s")
	t.Setenv("SKIJUMP_RATE_LIMIT_ENABLED", "false")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/x")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("OTEL_SERVICE_NAME", "skijump-test")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.TeamCacheTTL)
	assert.False(t, cfg.RateLimitEnabled)
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, "skijump-test", cfg.ServiceName)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skijump.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 7000
log_level: debug
login_rate_limit: 3
`), 0o600))
	t.Setenv("SKIJUMP_CONFIG", path)
	t.Setenv("SKIJUMP_PORT", "7001")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port, "environment overrides the file")
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.LoginRateLimit)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("SKIJUMP_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := config.Load()
	assert.ErrorContains(t, err, "config: load")
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"port", func(c *config.Config) { c.Port = 0 }, "port"},
		{"database", func(c *config.Config) { c.DatabaseURL = "" }, "DATABASE_URL"},
		{"half key pair", func(c *config.Config) { c.JWTPrivateKeyPath = "/k" }, "set together"},
		{"admin without password", func(c *config.Config) { c.AdminLogin = "admin" }, "admin_password"},
		{"rate window", func(c *config.Config) { c.RateLimitWindow = 0 }, "rate_limit_window"},
		{"negative cache ttl", func(c *config.Config) { c.TeamCacheTTL = -time.Second }, "team_cache_ttl"},
		{"body limit", func(c *config.Config) { c.MaxRequestBodyBytes = 0 }, "max_request_body_bytes"},
		{"log level", func(c *config.Config) { c.LogLevel = "loud" }, "log level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Defaults()
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestRateLimitsIgnoredWhenDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.RateLimitEnabled = false
	cfg.LoginRateLimit = 0
	assert.NoError(t, cfg.Validate())
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := config.ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)
}
