//go:build torrent

package torrent

import (
	"errors"
	"fmt"

	atorrent "github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"
)

// Available reports whether a real torrent client is compiled in.
const Available = true

type anacrolixSession struct {
	cl *atorrent.Client
}

// NewSession starts an anacrolix client listening on cfg.ListenPort.
func NewSession(cfg SessionConfig) (Session, error) {
	c := atorrent.NewDefaultClientConfig()
	c.DataDir = cfg.DataDir
	c.ListenPort = cfg.ListenPort
	c.Seed = false

	cl, err := atorrent.NewClient(c)
	if err != nil {
		return nil, fmt.Errorf("failed to start torrent client: %w", err)
	}
	return &anacrolixSession{cl: cl}, nil
}

func (s *anacrolixSession) Add(src *Source, dir string) (Handle, error) {
	var (
		spec *atorrent.TorrentSpec
		err  error
	)
	if src.Meta != nil {
		spec, err = atorrent.TorrentSpecFromMetaInfoErr(src.Meta.MetaInfo)
	} else {
		spec, err = atorrent.TorrentSpecFromMagnetUri(src.Magnet.Raw)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid torrent: %w", err)
	}
	spec.Storage = storage.NewFile(dir)

	t, _, err := s.cl.AddTorrentSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to add torrent: %w", err)
	}
	return &anacrolixHandle{t: t}, nil
}

func (s *anacrolixSession) Close() error {
	return errors.Join(s.cl.Close()...)
}

type anacrolixHandle struct {
	t *atorrent.Torrent
}

func (h *anacrolixHandle) GotInfo() <-chan struct{} { return h.t.GotInfo() }
func (h *anacrolixHandle) Name() string             { return h.t.Name() }
func (h *anacrolixHandle) Length() int64            { return h.t.Length() }
func (h *anacrolixHandle) BytesCompleted() int64    { return h.t.BytesCompleted() }
func (h *anacrolixHandle) Peers() int               { return h.t.Stats().ActivePeers }
func (h *anacrolixHandle) Start()                   { h.t.DownloadAll() }
func (h *anacrolixHandle) Drop()                    { h.t.Drop() }
