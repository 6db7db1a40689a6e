package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))

	assert.Equal(t, DefaultTool, cfg.Tool)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.True(t, cfg.AutoOpenBrowser)
	assert.Equal(t, DefaultBrowserOpenDelay, cfg.BrowserOpenDelay())
	assert.NotNil(t, cfg.Settings)
}

func TestLoad_InvalidFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("tool = [unterminated"), 0o644))

	cfg := Load(path)
	assert.Equal(t, DefaultTool, cfg.Tool)
}

func TestSaveAndLoad_RoundTripKeepsEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Tool = "npx htflow"
	cfg.Workspace = "/srv/site"
	cfg.AutoOpenBrowser = false
	cfg.BrowserOpenDelayMs = 500
	require.NoError(t, Save(path, cfg))

	loaded := Load(path)
	assert.Equal(t, "npx htflow", loaded.Tool)
	assert.Equal(t, "/srv/site", loaded.Workspace)
	assert.False(t, loaded.AutoOpenBrowser)
	assert.Equal(t, 500*time.Millisecond, loaded.BrowserOpenDelay())
}

func TestLoad_PartialFileKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("workspace = \"/tmp/w\"\n"), 0o644))

	cfg := Load(path)
	assert.Equal(t, "/tmp/w", cfg.Workspace)
	assert.Equal(t, DefaultTool, cfg.Tool)
	assert.True(t, cfg.WatchFiles)
}

func TestApply_KnownSettings(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Apply("htflow.cliPath", "/usr/local/bin/htflow"))
	assert.Equal(t, "/usr/local/bin/htflow", cfg.Tool)

	require.NoError(t, cfg.Apply("autoOpenBrowser", false))
	assert.False(t, cfg.AutoOpenBrowser)

	require.NoError(t, cfg.Apply("watch_files", "false"))
	assert.False(t, cfg.WatchFiles)

	require.NoError(t, cfg.Apply("browserOpenDelayMs", float64(1200)))
	assert.Equal(t, 1200, cfg.BrowserOpenDelayMs)
}

func TestApply_RejectsBadValues(t *testing.T) {
	cfg := Default()

	assert.Error(t, cfg.Apply("tool", ""))
	assert.Error(t, cfg.Apply("autoOpenBrowser", 3))
	assert.Error(t, cfg.Apply("browserOpenDelayMs", -1))
	assert.Equal(t, DefaultTool, cfg.Tool)
}

func TestApply_UnknownSettingIsStored(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Apply("theme", "dark"))
	assert.Equal(t, "dark", cfg.Settings["theme"])
}
