package torrent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMagnetHex(t *testing.T) {
	m, err := ParseMagnet("magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567&dn=test&tr=udp%3A%2F%2Ftracker.example%3A80")
	require.NoError(t, err)
	assert.Equal(t, "test", m.DisplayName)
	assert.Equal(t, "0123456789abcdef0123456789abcdef01234567", m.HexHash())
	assert.Equal(t, []string{"udp://tracker.example:80"}, m.Trackers)
}

func TestParseMagnetBase32(t *testing.T) {
	m, err := ParseMagnet("magnet:?xt=urn:btih:AERUKZ4JVPG66AJDIVTYTK6N54ASGRLH")
	require.NoError(t, err)
	assert.Len(t, m.HexHash(), 40)
}

func TestParseMagnetRejectsGarbage(t *testing.T) {
	_, err := ParseMagnet("magnet:?dn=nohash")
	assert.Error(t, err)
}
