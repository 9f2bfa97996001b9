package torrent

import (
	"context"
	"fmt"
	"io"

	"github.com/romreviewer/DOWNitUP/internal/engine/transport"
)

// maxTorrentFile bounds how much of a .torrent response is read.
const maxTorrentFile = 16 << 20

// FetchTorrent downloads and parses a .torrent file over tr.
func FetchTorrent(ctx context.Context, tr transport.Transport, url string) (*TorrentMeta, error) {
	resp, err := tr.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTorrentFile+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read torrent: %w", err)
	}
	if len(data) > maxTorrentFile {
		return nil, fmt.Errorf("torrent file larger than %d bytes", maxTorrentFile)
	}
	return ParseTorrent(data)
}
