package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaconlabs/owinbridge/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	assert.Equal(t, "mux", cfg.Backend)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "owinbridge.yaml", `
server:
  addr: 0.0.0.0:9090
  path_base: /app
  shutdown_timeout: 3s
backend: gin
bridge:
  validate_environment: true
logging:
  level: debug
  format: json
rate_limit:
  rps: 20
  burst: 40
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr)
	assert.Equal(t, "/app", cfg.Server.PathBase)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "gin", cfg.Backend)
	assert.True(t, cfg.Bridge.ValidateEnvironment)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.InDelta(t, 20.0, cfg.RateLimit.RPS, 0.001)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.NotNil(t, cfg.Logger())
}

func TestEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "owinbridge.yaml", "backend: gin\nlogging:\n  level: debug\n")
	t.Setenv("OWINBRIDGE_BACKEND", "fiber")
	t.Setenv("OWINBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("OWINBRIDGE_METRICS", "false")
	t.Setenv("OWINBRIDGE_RATE_BURST", "7")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fiber", cfg.Backend)
	assert.Equal(t, slog.LevelWarn, cfg.Level())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "OWINBRIDGE_BACKEND=echo\nOWINBRIDGE_ADDR=127.0.0.1:7070\n")
	t.Setenv("OWINBRIDGE_ADDR", "127.0.0.1:6060")

	require.NoError(t, config.LoadDotEnv(path))
	t.Cleanup(func() { _ = os.Unsetenv("OWINBRIDGE_BACKEND") })

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "echo", cfg.Backend)
	assert.Equal(t, "127.0.0.1:6060", cfg.Server.Addr, "variables already set win over .env")

	assert.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, config.LoadDotEnv(""))
}

func TestInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown backend": "backend: nginx\n",
		"bad level":       "logging:\n  level: verbose\n",
		"relative base":   "server:\n  path_base: app\n",
		"user w/o hash":   "auth:\n  user: admin\n",
		"bad addr":        "server:\n  addr: nowhere\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, "c.yaml", content))
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)

	_, err = config.Load(writeFile(t, "broken.yaml", "server: [unterminated"))
	require.Error(t, err)

	t.Setenv("OWINBRIDGE_RATE_RPS", "fast")
	_, err = config.Load("")
	require.ErrorContains(t, err, "OWINBRIDGE_RATE_RPS")
}
