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

func TestRead_Defaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 54*time.Second, cfg.Server.PingPeriod)
	assert.Equal(t, time.Second, cfg.Client.ReconnectInitial)
	assert.Equal(t, 10*time.Second, cfg.Client.ReconnectMax)
	assert.Equal(t, "ws://localhost:8080/messaging", cfg.Client.MessagingURL)
}

func TestRead_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.test.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server:\n  port: 9000\n  mode: debug\nclient:\n  reconnect_max: 5s\n"), 0o600))
	t.Setenv("CLASSROOM_SERVER_SECRET", "from-env")

	v := New()
	v.SetConfigFile(file)
	cfg, err := Read(v)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "from-env", cfg.Server.Secret)
	assert.Equal(t, 5*time.Second, cfg.Client.ReconnectMax)
}

func TestApplyLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	require.NoError(t, ApplyLogLevel("debug"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.NoError(t, ApplyLogLevel(""))
	assert.Error(t, ApplyLogLevel("loud"))
}
