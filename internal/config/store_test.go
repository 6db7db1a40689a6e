package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_UpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	s := NewStore(path, nil)

	require.NoError(t, s.Update("htflow.cliPath", "/opt/bin/htflow"))
	require.NoError(t, s.Update("autoOpenBrowser", false))
	require.NoError(t, s.Update("theme", "dark"))

	assert.Equal(t, "/opt/bin/htflow", s.Tool())
	assert.False(t, s.AutoOpenBrowser())

	reloaded := Load(path)
	assert.Equal(t, "/opt/bin/htflow", reloaded.Tool)
	assert.False(t, reloaded.AutoOpenBrowser)
	assert.Equal(t, "dark", reloaded.Settings["theme"])
}

func TestStore_RejectedUpdateLeavesConfig(t *testing.T) {
	s := NewStore("", nil)

	assert.Error(t, s.Update("tool", ""))
	assert.Equal(t, DefaultTool, s.Tool())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore("", nil)
	require.NoError(t, s.Update("theme", "light"))

	snap := s.Snapshot()
	snap.Settings["theme"] = "dark"
	snap.Tool = "other"

	assert.Equal(t, "light", s.Snapshot().Settings["theme"])
	assert.Equal(t, DefaultTool, s.Tool())
}
