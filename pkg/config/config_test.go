package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_JSONDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"providers": {
			"openai": {"api_key": "sk-test", "model": "gpt-4o", "enabled": true, "vision": true},
			"ollama": {"model": "llama3", "enabled": false}
		}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, 10, cfg.Agent.HistoryLimit)
	assert.Equal(t, 3, cfg.Agent.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Agent.RetryBaseDelay.Duration)
	assert.Equal(t, time.Second, cfg.Agent.RetryIncrement.Duration)
	assert.Equal(t, "web", cfg.Device.Platform)
	assert.True(t, cfg.Device.IsHeadless())
	assert.Equal(t, "uipilot.db", cfg.Memory.Path)

	name, p := cfg.GetDefaultProvider()
	assert.Equal(t, "openai", name)
	assert.True(t, p.Vision)
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv("UIPILOT_TG_TOKEN", "123:abc")
	path := writeFile(t, "config.yaml", `
app:
  provider: anthropic
providers:
  anthropic:
    api_key: key
    model: claude
agent:
  max_steps: 25
  history_max_age: 10m
  retry_base_delay: 2
device:
  platform: desktop
  headless: false
gateways:
  telegram:
    token: ${UIPILOT_TG_TOKEN}
    chat_id: "-1001"
    enabled: true
  discord:
    token: ""
    enabled: true
policy:
  denied_tools: [navigate]
  denied_patterns: ['checkout/pay']
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Agent.MaxSteps)
	assert.Equal(t, 10*time.Minute, cfg.Agent.HistoryMaxAge.Duration)
	assert.Equal(t, 2*time.Second, cfg.Agent.RetryBaseDelay.Duration)
	assert.Equal(t, "desktop", cfg.Device.Platform)
	assert.False(t, cfg.Device.IsHeadless())
	assert.Equal(t, []string{"navigate"}, cfg.Policy.DeniedTools)

	name, _ := cfg.GetDefaultProvider()
	assert.Equal(t, "anthropic", name)

	tg, ok := cfg.GetTelegramConfig()
	require.True(t, ok)
	assert.Equal(t, "123:abc", tg.Token)

	_, ok = cfg.GetDiscordConfig()
	assert.False(t, ok)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad.json", `{"agent": {"retry_increment": "soon"}}`))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "platform.yaml", "device:\n  platform: tv\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeFile(t, "provider.yaml", "app:\n  provider: gemini\n"))
	assert.Error(t, err)
}
