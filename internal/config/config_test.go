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

	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "./relaychat.db", cfg.Database.Path)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.ReadTimeout)
	assert.Equal(t, 100, cfg.WebSocket.BufferSize)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Responder.BaseURL)
	assert.Empty(t, cfg.Responder.APIKey)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("RELAYCHAT_HTTP_PORT", "9090")
	t.Setenv("RELAYCHAT_RESPONDER_API_KEY", "sk-test")
	t.Setenv("RELAYCHAT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "sk-test", cfg.Responder.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
http:
  port: 7070
database:
  path: /tmp/custom.db
responder:
  model: gpt-4o
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, "gpt-4o", cfg.Responder.Model)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host, "unset keys keep their defaults")
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadPort(t *testing.T) {
	t.Setenv("RELAYCHAT_HTTP_PORT", "70000")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestEmptyEnvValueKeepsDefault(t *testing.T) {
	t.Setenv("RELAYCHAT_DATABASE_PATH", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./relaychat.db", cfg.Database.Path)
}

func TestValidateDirect(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Responder.Model = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")
}
