package torrent

import (
	"context"
	"crypto/sha1"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romreviewer/DOWNitUP/internal/engine/transport"
)

func singleFileTorrent(t *testing.T) (root, info []byte) {
	t.Helper()
	dict := map[string]any{
		"name":         "file.txt",
		"piece length": int64(16384),
		"length":       int64(5),
		"pieces":       []byte("12345678901234567890"),
	}
	info, err := bencode.Marshal(dict)
	require.NoError(t, err)
	root, err = bencode.Marshal(map[string]any{
		"announce": "http://tracker",
		"info":     dict,
	})
	require.NoError(t, err)
	return root, info
}

func TestParseTorrent_InfoHash(t *testing.T) {
	root, info := singleFileTorrent(t)

	meta, err := ParseTorrent(root)
	require.NoError(t, err)
	assert.Equal(t, metainfo.Hash(sha1.Sum(info)), meta.InfoHash)
	assert.Equal(t, "file.txt", meta.Name())
	assert.Equal(t, []File{{Path: []string{"file.txt"}, Length: 5}}, meta.Files())
	assert.Equal(t, []string{"http://tracker"}, meta.Trackers())
}

func TestParseTorrent_Multifile(t *testing.T) {
	dict := map[string]any{
		"name":         "dir",
		"piece length": int64(16384),
		"pieces":       []byte("1234567890123456789012345678901234567890"),
		"files": []any{
			map[string]any{"length": int64(3), "path": []any{[]byte("a.txt")}},
			map[string]any{"length": int64(4), "path": []any{[]byte("b.txt")}},
		},
	}
	info, err := bencode.Marshal(dict)
	require.NoError(t, err)
	root, err := bencode.Marshal(map[string]any{"announce": "http://tracker", "info": dict})
	require.NoError(t, err)

	meta, err := ParseTorrent(root)
	require.NoError(t, err)
	assert.Equal(t, int64(7), meta.TotalLength())
	assert.Equal(t, metainfo.Hash(sha1.Sum(info)), meta.InfoHash)
	files := meta.Files()
	require.Len(t, files, 2)
	assert.Equal(t, []string{"b.txt"}, files[1].Path)
	assert.Equal(t, int64(4), files[1].Length)
}

func TestParseTorrent_RejectsGarbage(t *testing.T) {
	_, err := ParseTorrent([]byte("not bencode"))
	assert.Error(t, err)

	noPieces, err := bencode.Marshal(map[string]any{
		"info": map[string]any{"name": "x", "piece length": int64(16384), "length": int64(1)},
	})
	require.NoError(t, err)
	_, err = ParseTorrent(noPieces)
	assert.ErrorContains(t, err, "incomplete")
}

func TestResolve(t *testing.T) {
	root, _ := singleFileTorrent(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(root)
	}))
	defer srv.Close()
	tr := transport.NewWithClient(srv.Client(), "")
	ctx := context.Background()

	t.Run("remote torrent file", func(t *testing.T) {
		src, err := Resolve(ctx, tr, srv.URL+"/file.torrent")
		require.NoError(t, err)
		assert.Equal(t, "file.txt", src.Name())
		assert.Equal(t, int64(5), src.TotalLength())
	})

	t.Run("local torrent file", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "x.torrent")
		require.NoError(t, os.WriteFile(p, root, 0o644))
		src, err := Resolve(ctx, tr, p)
		require.NoError(t, err)
		assert.NotNil(t, src.Meta)
		assert.Len(t, src.HexHash(), 40)
	})

	t.Run("magnet", func(t *testing.T) {
		src, err := Resolve(ctx, tr, testMagnet)
		require.NoError(t, err)
		assert.Equal(t, "ubuntu.iso", src.Name())
		assert.Zero(t, src.TotalLength())
	})

	t.Run("other", func(t *testing.T) {
		_, err := Resolve(ctx, tr, "/tmp/readme.txt")
		assert.Error(t, err)
	})
}
