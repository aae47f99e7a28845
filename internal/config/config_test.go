package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/alert-relay/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no stray .env files

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 3*time.Second, cfg.ScanInterval)
	assert.Equal(t, 5*time.Second, cfg.ScanErrorBackoff)
	assert.Equal(t, 5*time.Second, cfg.DequeueTimeout)
	assert.Equal(t, 5, cfg.MaxIdleCycles)
	assert.Equal(t, time.Second, cfg.ErrorBackoff)
	assert.Equal(t, 3, cfg.LoadRetries)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.False(t, cfg.WorkerLeaseEnabled)
	assert.Empty(t, cfg.KickPublicKeyPEM)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SCAN_INTERVAL", "1s")
	t.Setenv("MAX_IDLE_CYCLES", "2")
	t.Setenv("DELIVERY_RATE", "0.5")
	t.Setenv("WORKER_LEASE_ENABLED", "true")
	t.Setenv("REDIS_URL", "redis://:secret@cache:6380/2")
	t.Setenv("KICK_PUBLIC_KEY", `-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----`)
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.ScanInterval)
	assert.Equal(t, 2, cfg.MaxIdleCycles)
	assert.Equal(t, 0.5, cfg.DeliveryRate)
	assert.True(t, cfg.WorkerLeaseEnabled)
	assert.Equal(t, "redis://:secret@cache:6380/2", cfg.RedisURL)
	assert.Equal(t, "-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----", cfg.KickPublicKeyPEM)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HTTP_PORT=9999\nMAX_IDLE_CYCLES=7\n"), 0o600))
	t.Setenv("HTTP_PORT", "7000")
	// registered so the value read from .env is unset again after the test
	t.Setenv("MAX_IDLE_CYCLES", "")
	require.NoError(t, os.Unsetenv("MAX_IDLE_CYCLES"))

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.HTTPPort)
	assert.Equal(t, 7, cfg.MaxIdleCycles)
}

func TestLoad_PublicKeyFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "kick.pem")
	require.NoError(t, os.WriteFile(path, []byte("PEM"), 0o600))
	t.Setenv("KICK_PUBLIC_KEY_FILE", path)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "PEM", cfg.KickPublicKeyPEM)

	t.Setenv("KICK_PUBLIC_KEY_FILE", filepath.Join(dir, "missing.pem"))
	_, err = config.Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())

	tests := []struct {
		name string
		env  map[string]string
	}{
		{"sub-second dequeue timeout", map[string]string{"DEQUEUE_TIMEOUT": "500ms"}},
		{"zero idle cycles", map[string]string{"MAX_IDLE_CYCLES": "0"}},
		{"lease too short to refresh", map[string]string{"WORKER_LEASE_ENABLED": "true", "WORKER_LEASE_TTL": "2s"}},
		{"negative delivery rate", map[string]string{"DELIVERY_RATE": "-1"}},
		{"unknown log level", map[string]string{"LOG_LEVEL": "verbose"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
