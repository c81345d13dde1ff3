package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, 22, cfg.ESXi.SSHPort)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, 3, cfg.Gemini.MaxRetries)
	assert.Equal(t, "ubuntu01", cfg.Defaults.VMName)
	assert.Equal(t, "AutoSnap", cfg.Defaults.SnapshotName)
	assert.Equal(t, 10*time.Second, cfg.remoteSettings().Timeout)
	assert.Equal(t, 2*time.Second, cfg.gatewaySettings("").RetryDelay)
	assert.Equal(t, 5*time.Second, cfg.toolSettings().SettleDelay)

	_, err = loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), true)
	assert.Error(t, err)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
esxi:
  host: esxi01.lab
  user: root
  password: secret
  ssh_timeout: 2.5
gemini:
  api_key: key
  max_retries: 5
defaults:
  vm_name: web01
  snapshot_memory: true
prompts:
  system: "custom {{TOOL_DOCS}}"
`)
	cfg, err := loadConfig(path, true)
	require.NoError(t, err)
	require.NoError(t, cfg.validate())

	assert.Equal(t, "esxi01.lab:22", cfg.remoteSettings().Addr())
	assert.Equal(t, 2500*time.Millisecond, cfg.remoteSettings().Timeout)
	assert.Equal(t, 5, cfg.gatewaySettings("p").MaxAttempts)
	assert.Equal(t, "p", cfg.gatewaySettings("p").SystemPrompt)
	assert.Equal(t, "web01", cfg.planDefaults().VMName)
	assert.Equal(t, "AutoSnap", cfg.planDefaults().SnapshotName, "unset keys keep their default")
	assert.True(t, cfg.toolSettings().SnapshotMemory)
	assert.Equal(t, "custom {{TOOL_DOCS}}", cfg.Prompts.System)
}

func TestLoadConfig_Malformed(t *testing.T) {
	_, err := loadConfig(writeConfig(t, "esxi: [unclosed"), true)
	assert.ErrorContains(t, err, "parsing config file")
}

func TestApplyEnv(t *testing.T) {
	cfg := defaultConfig()
	cfg.ESXi.Host = "from-file"
	cfg.ESXi.User = "root"

	err := cfg.applyEnv([]string{
		"ESXI_HOST=10.0.0.5",
		"ESXI_PASS=pa=ss",
		"ESXI_SSH_PORT=2222",
		"GOOGLE_API_KEY=google",
		"GEMINI_API_KEY=gemini",
		"GEMINI_RETRY_DELAY=0.5",
		"SNAPSHOT_QUIESCE=1",
		"POWER_SETTLE_DELAY=0",
		"PATH=/usr/bin",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.ESXi.Host)
	assert.Equal(t, "root", cfg.ESXi.User, "unset variables leave file values alone")
	assert.Equal(t, "pa=ss", cfg.ESXi.Password)
	assert.Equal(t, "10.0.0.5:2222", cfg.remoteSettings().Addr())
	assert.Equal(t, "gemini", cfg.Gemini.APIKey, "GEMINI_API_KEY wins over GOOGLE_API_KEY")
	assert.Equal(t, 500*time.Millisecond, cfg.gatewaySettings("").RetryDelay)
	assert.True(t, cfg.toolSettings().SnapshotQuiesce)
	assert.Zero(t, cfg.toolSettings().SettleDelay)
	require.NoError(t, cfg.validate())
}

func TestApplyEnv_GoogleKeyFallback(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.applyEnv([]string{"GOOGLE_API_KEY=google"}))
	assert.Equal(t, "google", cfg.Gemini.APIKey)
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.applyEnv([]string{"ESXI_SSH_PORT=twenty-two"})
	assert.ErrorContains(t, err, "ESXI_SSH_PORT")
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "missing required settings: ESXI_HOST, ESXI_USER, ESXI_PASS, GEMINI_API_KEY")

	cfg.ESXi.Host, cfg.ESXi.User, cfg.ESXi.Password, cfg.Gemini.APIKey = "h", "u", "p", "k"
	require.NoError(t, cfg.validate())

	cfg.ESXi.SSHPort = 70000
	cfg.Gemini.MaxRetries = 0
	err = cfg.validate()
	assert.ErrorContains(t, err, "ssh port 70000 out of range")
	assert.ErrorContains(t, err, "max retries must be at least 1")
}
