package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/romreviewer/DOWNitUP/internal/config"
	"github.com/romreviewer/DOWNitUP/internal/download"
	"github.com/romreviewer/DOWNitUP/internal/engine"
	"github.com/romreviewer/DOWNitUP/internal/engine/state"
	"github.com/romreviewer/DOWNitUP/internal/engine/transport"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
	"github.com/romreviewer/DOWNitUP/internal/source"
	"github.com/romreviewer/DOWNitUP/internal/torrent"
	"github.com/romreviewer/DOWNitUP/internal/utils"
)

// LocalDownloadService implements DownloadService on the embedded engine.
type LocalDownloadService struct {
	store     state.TransferStore
	router    *download.Router
	transport transport.Transport

	settings   *config.Settings
	settingsMu sync.RWMutex
}

var _ DownloadService = (*LocalDownloadService)(nil)

// NewLocalDownloadService wires the service. A nil settings uses defaults.
func NewLocalDownloadService(store state.TransferStore, router *download.Router, tr transport.Transport, settings *config.Settings) *LocalDownloadService {
	if settings == nil {
		settings = config.DefaultSettings()
	}
	return &LocalDownloadService{
		store:     store,
		router:    router,
		transport: tr,
		settings:  settings,
	}
}

// ReloadSettings reloads settings from disk.
func (s *LocalDownloadService) ReloadSettings() error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	s.settingsMu.Lock()
	s.settings = settings
	s.settingsMu.Unlock()
	return nil
}

func (s *LocalDownloadService) getSettings() *config.Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return s.settings
}

// Add validates req, fills in defaults and inserts a QUEUED transfer of the
// matching kind. An unfinished transfer of the same source is reported as a
// *DuplicateError.
func (s *LocalDownloadService) Add(ctx context.Context, req AddRequest) (int64, error) {
	raw := source.Normalize(req.URL)
	if !source.IsSupported(raw) {
		return 0, fmt.Errorf("%w: %q", ErrUnsupported, req.URL)
	}
	if id, ok, err := s.findUnfinished(ctx, raw); err != nil {
		return 0, err
	} else if ok {
		return 0, &DuplicateError{ID: id}
	}

	settings := s.getSettings()
	dir := req.Path
	if dir == "" {
		dir = settings.General.DefaultDownloadDir
	}
	if dir == "" {
		dir = "."
	}
	dir = utils.EnsureAbsPath(dir)

	var (
		id  int64
		err error
	)
	if source.TransferKind(raw) == types.KindTorrent {
		id, err = s.AddTorrentTransfer(ctx, raw, req.Name, dir)
	} else {
		conns := req.Connections
		if conns <= 0 {
			conns = settings.Network.DefaultConnectionCount
		}
		chunking := settings.Network.UseChunkingDefault
		if req.Chunking != nil {
			chunking = *req.Chunking
		}
		name := s.resolveName(ctx, raw, req.Name)
		savePath := utils.UniqueFilePath(filepath.Join(dir, name))
		id, err = s.AddHTTPTransfer(ctx, raw, filepath.Base(savePath), savePath, conns, chunking)
	}
	if err != nil {
		return 0, err
	}

	if req.Start {
		if err := s.router.Start(ctx, id); err != nil {
			return id, fmt.Errorf("failed to start transfer %d: %w", id, err)
		}
	}
	return id, nil
}

// resolveName asks the server for a filename only when none was given.
func (s *LocalDownloadService) resolveName(ctx context.Context, rawURL, explicit string) string {
	if explicit != "" || s.transport == nil {
		return utils.ResolveFilename(explicit, "", rawURL)
	}
	probe, err := engine.Probe(ctx, s.transport, rawURL)
	if err != nil {
		log.Debug().Err(err).Str("url", rawURL).Msg("probe for filename failed")
		return utils.ResolveFilename("", "", rawURL)
	}
	return utils.ResolveFilename("", probe.Filename, rawURL)
}

func (s *LocalDownloadService) findUnfinished(ctx context.Context, raw string) (int64, bool, error) {
	_, key := source.CanonicalKey(raw)
	if key == "" {
		return 0, false, nil
	}
	existing, err := s.store.GetByStatuses(ctx, types.StatusQueued, types.StatusDownloading, types.StatusPaused)
	if err != nil {
		return 0, false, fmt.Errorf("failed to list transfers: %w", err)
	}
	for _, t := range existing {
		if _, k := source.CanonicalKey(t.URL); k == key {
			return t.ID, true, nil
		}
	}
	return 0, false, nil
}

// AddHTTPTransfer inserts a QUEUED HTTP transfer writing to savePath.
func (s *LocalDownloadService) AddHTTPTransfer(ctx context.Context, rawURL, name, savePath string, connections int, useChunking bool) (int64, error) {
	id, err := s.store.Insert(ctx, types.NewTransfer{
		Name:            name,
		URL:             rawURL,
		Kind:            types.KindHTTP,
		SavePath:        savePath,
		ConnectionCount: types.ClampConnections(connections),
		UseChunking:     useChunking,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add transfer: %w", err)
	}
	log.Info().Int64("id", id).Str("url", rawURL).Str("path", savePath).Msg("transfer added")
	return id, nil
}

// AddTorrentTransfer resolves uri far enough to learn its info hash and, for
// .torrent files, its name and size, then inserts a QUEUED torrent transfer
// downloading into saveDir.
func (s *LocalDownloadService) AddTorrentTransfer(ctx context.Context, uri, name, saveDir string) (int64, error) {
	src, err := torrent.Resolve(ctx, s.transport, uri)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve torrent: %w", err)
	}
	if name == "" {
		name = src.Name()
	}
	if name == "" {
		name = src.HexHash()
	}

	id, err := s.store.Insert(ctx, types.NewTransfer{
		Name:       utils.SanitizeFilename(name),
		URL:        uri,
		Kind:       types.KindTorrent,
		SavePath:   saveDir,
		InfoHash:   src.HexHash(),
		TotalBytes: src.TotalLength(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add torrent: %w", err)
	}
	log.Info().Int64("id", id).Str("info_hash", src.HexHash()).Str("dir", saveDir).Msg("torrent added")
	return id, nil
}

func (s *LocalDownloadService) List(ctx context.Context, statuses ...types.Status) ([]types.Transfer, error) {
	if len(statuses) > 0 {
		return s.store.GetByStatuses(ctx, statuses...)
	}
	return s.store.GetAll(ctx)
}

// Get returns the transfer with its chunks.
func (s *LocalDownloadService) Get(ctx context.Context, id int64) (*types.Transfer, error) {
	snap, err := engine.Snapshot(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *LocalDownloadService) Start(ctx context.Context, id int64) error {
	return s.router.Start(ctx, id)
}

func (s *LocalDownloadService) Pause(ctx context.Context, id int64) error {
	return s.router.Pause(ctx, id)
}

func (s *LocalDownloadService) Cancel(ctx context.Context, id int64) error {
	return s.router.Cancel(ctx, id)
}

func (s *LocalDownloadService) Delete(ctx context.Context, id int64) error {
	return s.router.Delete(ctx, id)
}

func (s *LocalDownloadService) Requeue(ctx context.Context, id int64) error {
	return s.router.Requeue(ctx, id)
}

func (s *LocalDownloadService) Observe(ctx context.Context, id int64) (<-chan types.Transfer, error) {
	return s.router.Observe(ctx, id)
}

// RecoverInterrupted parks transfers a previous process left DOWNLOADING and,
// with General.AutoResume, starts every paused transfer again. It returns
// how many transfers were started.
func (s *LocalDownloadService) RecoverInterrupted(ctx context.Context) (int, error) {
	n, err := s.store.MarkInterrupted(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted transfers: %w", err)
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("parked interrupted transfers")
	}
	if !s.getSettings().General.AutoResume {
		return 0, nil
	}

	paused, err := s.store.GetByStatuses(ctx, types.StatusPaused)
	if err != nil {
		return 0, fmt.Errorf("failed to list paused transfers: %w", err)
	}
	started := 0
	for _, t := range paused {
		if err := s.router.Start(ctx, t.ID); err != nil {
			log.Warn().Err(err).Int64("id", t.ID).Msg("auto-resume failed")
			continue
		}
		started++
	}
	return started, nil
}

// Shutdown parks running HTTP transfers as PAUSED.
func (s *LocalDownloadService) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}
