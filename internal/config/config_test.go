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
	t.Setenv("MISTRAL_API_KEY", "mistral-key")
	t.Setenv("ZAPIER_WEBHOOK_URL", "https://hooks.example.com/abc")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "mistral-key", cfg.LLM.APIKey)
	assert.Equal(t, 10, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 5*time.Minute, cfg.Knowledge.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL)
	assert.Equal(t, "https://hooks.example.com/abc", cfg.Registration.WebhookURL)
	assert.Same(t, cfg, Get())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
llm:
  provider: qwen
  api_key: from-file
retry:
  max_attempts: 4
  initial_delay: 250ms
storage:
  type: memory
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("MISTRAL_API_KEY", "ignored")
	t.Setenv("CHAT_RETRY_MAX_ATTEMPTS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qwen", cfg.LLM.Provider)
	assert.Equal(t, "from-file", cfg.LLM.APIKey)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, "memory", cfg.Storage.Type)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
