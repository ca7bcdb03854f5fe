package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "mangadex-dl", config.Download.Command)
	assert.Equal(t, 168*time.Hour, config.CacheTTL())
	assert.Equal(t, time.Hour, config.TaskTTL())
	assert.Equal(t, 10*time.Minute, config.DownloadTimeout())
	assert.Equal(t, 3, config.Queue.Concurrency)
	assert.Equal(t, 1, config.Queue.MaxReceive)
	require.NoError(t, config.Validate())

	// Claimed messages must outlive the subprocess, or a running download
	// would be redelivered mid-run.
	assert.Greater(t, config.VisibilityTimeout(), config.DownloadTimeout())
}

func TestLoadFromFilesOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mangadex-wui.toml")
	content := `
environment = "production"

[server]
port = 9090

[cache]
ttl = "24h"

[download]
command = "custom-dl"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 24*time.Hour, config.CacheTTL())
	assert.Equal(t, "custom-dl", config.Download.Command)
	assert.True(t, config.IsProduction())
	// Untouched sections keep defaults
	assert.Equal(t, "mangadex_downloads", config.Queue.QueueName)
}

func TestLoadFromFilesEnvOverride(t *testing.T) {
	t.Setenv("MDX_SERVER_PORT", "7070")
	t.Setenv("MDX_CACHE_TTL", "48h")
	t.Setenv("MDX_DOWNLOAD_COMMAND", "env-dl")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, 48*time.Hour, config.CacheTTL())
	assert.Equal(t, "env-dl", config.Download.Command)
}

func TestValidateRejectsBadDurations(t *testing.T) {
	config := NewDefaultConfig()
	config.Cache.TTL = "not-a-duration"
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Cache.SweepSchedule = "every five minutes"
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Queue.Concurrency = 0
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Download.Command = ""
	assert.Error(t, config.Validate())
}

func TestZeroTTLMeansNeverExpire(t *testing.T) {
	config := NewDefaultConfig()
	config.Cache.TTL = "0"
	require.NoError(t, config.Validate())
	assert.Equal(t, time.Duration(0), config.CacheTTL())
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 3000, "0.0.0.0")
	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
