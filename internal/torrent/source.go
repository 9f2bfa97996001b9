package torrent

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/romreviewer/DOWNitUP/internal/engine/transport"
	"github.com/romreviewer/DOWNitUP/internal/source"
)

// Source is what a torrent transfer's URL points at: a magnet link or a
// parsed .torrent file.
type Source struct {
	Magnet *Magnet
	Meta   *TorrentMeta
}

// Name is the best known display name; magnets without dn have none until
// their metadata arrives.
func (s *Source) Name() string {
	if s.Meta != nil {
		return s.Meta.Name()
	}
	return s.Magnet.DisplayName
}

func (s *Source) HexHash() string {
	if s.Meta != nil {
		return s.Meta.HexHash()
	}
	return s.Magnet.HexHash()
}

// TotalLength is 0 until the info dict is known.
func (s *Source) TotalLength() int64 {
	if s.Meta != nil {
		return s.Meta.TotalLength()
	}
	return 0
}

// Resolve turns a magnet link, a .torrent URL or a local .torrent path into
// a Source. Remote files are fetched over tr.
func Resolve(ctx context.Context, tr transport.Transport, raw string) (*Source, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case source.IsMagnet(raw):
		m, err := ParseMagnet(raw)
		if err != nil {
			return nil, err
		}
		return &Source{Magnet: m}, nil
	case source.IsHTTPURL(raw):
		meta, err := FetchTorrent(ctx, tr, raw)
		if err != nil {
			return nil, err
		}
		return &Source{Meta: meta}, nil
	}

	if !strings.HasSuffix(strings.ToLower(raw), ".torrent") {
		return nil, fmt.Errorf("not a torrent source: %q", raw)
	}
	data, err := os.ReadFile(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read torrent file: %w", err)
	}
	meta, err := ParseTorrent(data)
	if err != nil {
		return nil, err
	}
	return &Source{Meta: meta}, nil
}
