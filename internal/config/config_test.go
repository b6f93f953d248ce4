package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 24, cfg.SessionTimeoutHours)
	assert.Equal(t, 60*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 10, cfg.MaxSessionsPerClient)
	assert.Equal(t, 100, cfg.RateLimit.Points)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 10, cfg.Defaults.MaxConcurrency)
	assert.Equal(t, 8080, cfg.WebIDE.PortRangeLow)
}

func TestLoadYAML(t *testing.T) {
	yamlContent := `
data_dir: "/var/lib/broker"
session_timeout_hours: 12
max_sessions_per_client: 5
rate_limit:
  points: 50
  window_seconds: 30
store:
  host: "db.internal"
  port: 5433
`
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "test.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlContent), 0644))

	cfg, err := Load(yamlPath)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/broker", cfg.DataDir)
	assert.Equal(t, 12, cfg.SessionTimeoutHours)
	assert.Equal(t, 5, cfg.MaxSessionsPerClient)
	assert.Equal(t, 50, cfg.RateLimit.Points)
	assert.Equal(t, 30, cfg.RateLimit.WindowSeconds)
	assert.Equal(t, "db.internal", cfg.Store.Host)
	assert.Equal(t, 5433, cfg.Store.Port)
}

func TestLoadYAMLMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.DataDir)
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "bad.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("{{{{invalid yaml"), 0644))

	_, err := Load(yamlPath)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BROKER_DATA_DIR", "/srv/broker")
	t.Setenv("BROKER_API_KEY", "env-key")
	t.Setenv("MAX_CONCURRENT_EXECUTIONS", "42")
	t.Setenv("BROKER_RATE_LIMIT_POINTS", "7")
	t.Setenv("BROKER_RATE_LIMIT_WINDOW_SECONDS", "15")
	t.Setenv("BROKER_RATE_LIMIT_BLOCK_SECONDS", "120")
	t.Setenv("BROKER_METADATA_STORE_HOST", "pg.internal")
	t.Setenv("BROKER_METADATA_STORE_PORT", "5555")
	t.Setenv("BROKER_METADATA_STORE_PASSWORD", "secret")
	t.Setenv("BROKER_METADATA_STORE_DB", "3")
	t.Setenv("BROKER_SESSION_TIMEOUT_HOURS", "6")
	t.Setenv("BROKER_CLEANUP_INTERVAL_MINUTES", "15")
	t.Setenv("BROKER_MAX_SESSIONS_PER_CLIENT", "2")
	t.Setenv("BROKER_WEBIDE_HOST", "0.0.0.0")
	t.Setenv("BROKER_WEBIDE_PORT_LOW", "9000")
	t.Setenv("BROKER_WEBIDE_PORT_HIGH", "9100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/srv/broker", cfg.DataDir)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, 42, cfg.Defaults.MaxConcurrency)
	assert.Equal(t, 7, cfg.RateLimit.Points)
	assert.Equal(t, 15, cfg.RateLimit.WindowSeconds)
	assert.Equal(t, 120, cfg.RateLimit.BlockSeconds)
	assert.Equal(t, "pg.internal", cfg.Store.Host)
	assert.Equal(t, 5555, cfg.Store.Port)
	assert.Equal(t, "secret", cfg.Store.Password)
	assert.Equal(t, 3, cfg.Store.DB)
	assert.Equal(t, 6, cfg.SessionTimeoutHours)
	assert.Equal(t, 15*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 2, cfg.MaxSessionsPerClient)
	assert.Equal(t, "0.0.0.0", cfg.WebIDE.Host)
	assert.Equal(t, 9000, cfg.WebIDE.PortRangeLow)
	assert.Equal(t, 9100, cfg.WebIDE.PortRangeHigh)
}
