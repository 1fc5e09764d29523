package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatch/bgwmonitor/pkg/bgwmonitor/config"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bgwmonitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "user: admin\n")
	c, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "admin", c.User)
	assert.Equal(t, 20, c.MaxPolling)
	assert.Equal(t, 20, c.TimeoutSecs)
	assert.Equal(t, 20, c.PollingSecs)
	assert.Equal(t, 999, c.StorageMaxLen)
	assert.Equal(t, "0.0.0.0", c.HTTPServer)
	assert.Equal(t, 8080, c.HTTPPort)
	assert.Equal(t, "/tmp", c.UploadDir)
	assert.NotEmpty(t, c.DiscoveryCommands)
	assert.NotEmpty(t, c.QueryCommands)
	assert.NotEmpty(t, c.CaptureSetup)
}

func TestLoad_ExplicitValuesOverrideDefaults(t *testing.T) {
	path := writeTempConfig(t, `
user: admin
passwd: secret
max_polling: 5
timeout: 10
polling_secs: 30
storage_maxlen: 100
http_server: ""
http_port: 9999
upload_dir: /data/uploads
nok_rtp_only: true
discovery_commands:
  - show system
query_commands:
  - show faults
capture_setup:
  - capture filter all
`)
	c, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, c.MaxPolling)
	assert.Equal(t, 10, c.TimeoutSecs)
	assert.Equal(t, 30, c.PollingSecs)
	assert.Equal(t, 100, c.StorageMaxLen)
	assert.True(t, c.UploadServerDisabled())
	assert.Equal(t, 9999, c.HTTPPort)
	assert.Equal(t, "/data/uploads", c.UploadDir)
	assert.True(t, c.NokRTPOnly)
	assert.Equal(t, []string{"show system"}, c.DiscoveryCommands)
	assert.Equal(t, []string{"show faults"}, c.QueryCommands)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/path/bgwmonitor.yaml")
	assert.Error(t, err)
}

func TestLoad_UnknownKeysAreIgnored(t *testing.T) {
	path := writeTempConfig(t, "user: admin\nsome_future_key: 123\n")
	_, err := config.Load(path)
	assert.NoError(t, err)
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("BGWMONITOR_CONFIG", "")
	assert.Equal(t, "/etc/bgwmonitor.yaml", config.PathFromEnv("/etc/bgwmonitor.yaml"))

	t.Setenv("BGWMONITOR_CONFIG", "/custom/path.yaml")
	assert.Equal(t, "/custom/path.yaml", config.PathFromEnv("/etc/bgwmonitor.yaml"))
}
