package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_ENV", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 30*time.Second, cfg.RingTimeout)
	assert.Equal(t, 50, cfg.RateLimit.Limit)
	assert.Equal(t, time.Second, cfg.RateLimit.Interval)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	yaml := []byte(`
mode: debug
port: 9000
ring_timeout: 5s
log_level: debug
rate_limit:
  limit: 7
ice_servers:
  - stun:a.example:3478
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))
	t.Chdir(dir)
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("RING_PORT", "9100")
	t.Setenv("RING_RATE_LIMIT_INTERVAL", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.RingTimeout)
	assert.Equal(t, 7, cfg.RateLimit.Limit)
	assert.Equal(t, 3*time.Second, cfg.RateLimit.Interval)
	assert.Equal(t, []string{"stun:a.example:3478"}, cfg.ICEServers)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
}

func TestICEServersFromEnvList(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RING_ICE_SERVERS", "stun:a:1,stun:b:2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"stun:a:1", "stun:b:2"}, cfg.ICEServers)
}

func TestApplyLogLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	require.NoError(t, ApplyLogLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.Error(t, ApplyLogLevel("loud"))
}
