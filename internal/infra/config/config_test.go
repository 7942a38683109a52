package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "stderr", cfg.Logger.Output)
	assert.Equal(t, "2m", cfg.Orchestrator.DefaultTimeout)
	assert.Equal(t, "100ms", cfg.Orchestrator.StepDelay)
	assert.Equal(t, "30s", cfg.Health.TTL)
	assert.Equal(t, "5s", cfg.Health.ProbeTimeout)
	assert.Equal(t, "127.0.0.1:8750", cfg.Gateway.Addr)
	assert.Equal(t, float64(10), cfg.Gateway.RateLimit)
	assert.Equal(t, 20, cfg.Gateway.RateBurst)
}

func TestLoadAppliesBridgeDefaults(t *testing.T) {
	path := writeConfig(t, `
bridges:
  - name: comet
    command: comet-agent
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Bridges, 1)
	assert.Equal(t, "30s", cfg.Bridges[0].CallTimeout)
	assert.Equal(t, 2, cfg.Bridges[0].MaxRestarts)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
logger:
  level: debug
  format: json
browser:
  remote_url: ws://127.0.0.1:9222/devtools/browser/abc
  extension_id: abcdefghijklmnop
  timeout: 45s
bridges:
  - name: comet
    command: comet-agent
    args: ["--stdio"]
    call_timeout: 90s
    max_restarts: 4
orchestrator:
  default_timeout: 5m
  step_delay: 250ms
gateway:
  enabled: true
  addr: 127.0.0.1:9000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser.RemoteURL)
	assert.Equal(t, "abcdefghijklmnop", cfg.Browser.ExtensionID)
	require.Len(t, cfg.Bridges, 1)
	assert.Equal(t, []string{"--stdio"}, cfg.Bridges[0].Args)
	assert.Equal(t, "90s", cfg.Bridges[0].CallTimeout)
	assert.Equal(t, 4, cfg.Bridges[0].MaxRestarts)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, "127.0.0.1:9000", cfg.Gateway.Addr)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
orchestrator:
  default_timeout: soon
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_timeout")
}

func TestLoadValidatesBridges(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing command", `
bridges:
  - name: comet
`},
		{"missing name", `
bridges:
  - command: comet-agent
`},
		{"duplicate names", `
bridges:
  - name: comet
    command: a
  - name: comet
    command: b
`},
		{"bad call_timeout", `
bridges:
  - name: comet
    command: comet-agent
    call_timeout: forever
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestDurationFallback(t *testing.T) {
	assert.Equal(t, 45*time.Second, Duration("45s", time.Second))
	assert.Equal(t, time.Second, Duration("garbage", time.Second))
	assert.Equal(t, time.Second, Duration("-5s", time.Second))
}
