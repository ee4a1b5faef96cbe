package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "https://chat.qwen.ai/", cfg.Browser.ChatURL)
	assert.Equal(t, 300*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, 30*time.Second, cfg.Poll.Timeout)
	assert.False(t, cfg.Screenshot.Enabled)
	assert.Equal(t, 20, cfg.Screenshot.Limit)
	assert.Equal(t, "file", cfg.Storage.Backend)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BRIDGE_HEADLESS", "false")
	t.Setenv("BRIDGE_CHAT_URL", "http://localhost:3000/")
	t.Setenv("BRIDGE_BROWSER_PATH", "/usr/bin/chromium")
	t.Setenv("BRIDGE_SCREENSHOTS", "true")
	t.Setenv("BRIDGE_POLL_INTERVAL", "50ms")
	t.Setenv("BRIDGE_STORE", "sqlite")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, "http://localhost:3000/", cfg.Browser.ChatURL)
	assert.Equal(t, "/usr/bin/chromium", cfg.Browser.BinPath)
	assert.True(t, cfg.Screenshot.Enabled)
	assert.Equal(t, 50*time.Millisecond, cfg.Poll.Interval)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty url", func(c *Config) { c.Browser.ChatURL = "" }},
		{"zero interval", func(c *Config) { c.Poll.Interval = 0 }},
		{"timeout below interval", func(c *Config) { c.Poll.Timeout = time.Millisecond }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }},
		{"zero screenshot limit", func(c *Config) { c.Screenshot.Limit = 0 }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
