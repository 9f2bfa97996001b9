package torrent

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/anacrolix/torrent/metainfo"
)

// Magnet is a parsed magnet link. Hex and base32 info hashes are accepted.
type Magnet struct {
	metainfo.Magnet
	Raw string
}

func ParseMagnet(raw string) (*Magnet, error) {
	m, err := metainfo.ParseMagnetUri(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid magnet link: %w", err)
	}
	if m.InfoHash == (metainfo.Hash{}) {
		return nil, errors.New("invalid magnet link: missing info hash")
	}
	return &Magnet{Magnet: m, Raw: raw}, nil
}

func (m *Magnet) HexHash() string {
	return m.InfoHash.HexString()
}

// File is one entry of a torrent's payload.
type File struct {
	Path   []string
	Length int64
}

// TorrentMeta is a parsed .torrent file.
type TorrentMeta struct {
	MetaInfo *metainfo.MetaInfo
	Info     metainfo.Info
	InfoHash metainfo.Hash
}

// ParseTorrent decodes a bencoded .torrent file and checks that its info
// dict describes something downloadable.
func ParseTorrent(data []byte) (*TorrentMeta, error) {
	mi, err := metainfo.Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode torrent: %w", err)
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to decode info dict: %w", err)
	}
	switch {
	case info.BestName() == "", info.PieceLength == 0, len(info.Pieces) == 0:
		return nil, errors.New("invalid torrent: incomplete info dict")
	case info.TotalLength() == 0:
		return nil, errors.New("invalid torrent: empty payload")
	}
	return &TorrentMeta{MetaInfo: mi, Info: info, InfoHash: mi.HashInfoBytes()}, nil
}

func (m *TorrentMeta) Name() string {
	return m.Info.BestName()
}

func (m *TorrentMeta) TotalLength() int64 {
	return m.Info.TotalLength()
}

func (m *TorrentMeta) HexHash() string {
	return m.InfoHash.HexString()
}

// Files lists the payload; a single-file torrent yields one entry named
// after the torrent.
func (m *TorrentMeta) Files() []File {
	var out []File
	for _, f := range m.Info.UpvertedFiles() {
		path := f.BestPath()
		if len(path) == 0 {
			path = []string{m.Name()}
		}
		out = append(out, File{Path: append([]string(nil), path...), Length: f.Length})
	}
	return out
}

// Trackers flattens the announce list, falling back to the single announce
// URL, without duplicates.
func (m *TorrentMeta) Trackers() []string {
	var out []string
	seen := make(map[string]bool)
	for _, tier := range m.MetaInfo.UpvertedAnnounceList() {
		for _, u := range tier {
			if u != "" && !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}
