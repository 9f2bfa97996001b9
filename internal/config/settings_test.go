package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_MissingFileGivesDefaults(t *testing.T) {
	s, err := LoadSettingsFrom(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	def := DefaultSettings()
	assert.Equal(t, def.Network, s.Network)
	assert.Equal(t, 5, s.General.LogRetentionCount)
	assert.True(t, s.Torrent.Enabled)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s := DefaultSettings()
	s.General.AutoResume = true
	s.Network.ProxyURL = "http://127.0.0.1:3128"
	s.Performance.ChunkRetries = 2

	require.NoError(t, SaveSettingsTo(path, s))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	got, err := LoadSettingsFrom(path)
	require.NoError(t, err)
	assert.True(t, got.General.AutoResume)
	assert.Equal(t, "http://127.0.0.1:3128", got.Network.ProxyURL)
	assert.Equal(t, 2, got.Performance.ChunkRetries)
}

func TestLoadSettings_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"network":{"user_agent":"ua/1"}}`), 0o644))

	s, err := LoadSettingsFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "ua/1", s.Network.UserAgent)
	assert.Equal(t, 4, s.Network.DefaultConnectionCount)
	assert.Equal(t, "info", s.General.LogLevel)
}

func TestLoadSettings_EnvOverrides(t *testing.T) {
	t.Setenv("DOWNITUP_GENERAL_AUTO_RESUME", "true")
	t.Setenv("DOWNITUP_NETWORK_MAX_BYTES_PER_SECOND", "1048576")
	t.Setenv("DOWNITUP_NETWORK_REQUEST_TIMEOUT", "45s")
	t.Setenv("DOWNITUP_NETWORK_DEFAULT_CONNECTION_COUNT", "99")

	s, err := LoadSettingsFrom(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	assert.True(t, s.General.AutoResume)
	assert.Equal(t, int64(1048576), s.Network.MaxBytesPerSecond)
	assert.Equal(t, 45*time.Second, s.Network.RequestTimeout)
	assert.Equal(t, 16, s.Network.DefaultConnectionCount, "connections are clamped")
}

func TestLoadSettings_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := LoadSettingsFrom(path)
	assert.Error(t, err)
}

func TestRuntime(t *testing.T) {
	s := DefaultSettings()
	s.Network.UserAgent = "x"
	s.Network.MaxBytesPerSecond = 10
	s.Performance.ChunkRetries = 3

	rt := s.Runtime()
	assert.Equal(t, "x", rt.GetUserAgent())
	assert.Equal(t, int64(10), rt.GetMaxBytesPerSecond())
	assert.Equal(t, 3, rt.GetChunkRetries())
}

func TestSettingsMetadataCoversCategories(t *testing.T) {
	meta := GetSettingsMetadata()
	for _, cat := range CategoryOrder() {
		assert.NotEmpty(t, meta[cat], cat)
	}
}
