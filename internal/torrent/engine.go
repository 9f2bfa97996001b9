package torrent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/romreviewer/DOWNitUP/internal/engine"
	"github.com/romreviewer/DOWNitUP/internal/engine/events"
	"github.com/romreviewer/DOWNitUP/internal/engine/state"
	"github.com/romreviewer/DOWNitUP/internal/engine/transport"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
	"github.com/romreviewer/DOWNitUP/internal/telemetry"
)

// DefaultPollInterval is how often torrent progress is sampled.
const DefaultPollInterval = time.Second

// Config wires an Engine.
type Config struct {
	Store     state.TransferStore
	Hub       *events.Hub
	Transport transport.Transport
	Telemetry *telemetry.Telemetry
	Session   SessionConfig
	// NewSession defaults to NewSession.
	NewSession   SessionFactory
	PollInterval time.Duration
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine runs TORRENT transfers on a lazily started peer-to-peer session
// and publishes their progress into the shared hub.
type Engine struct {
	cfg Config

	sessMu  sync.Mutex
	session Session

	mu    sync.Mutex
	tasks map[int64]*task
	wg    sync.WaitGroup
}

func NewEngine(cfg Config) *Engine {
	if cfg.NewSession == nil {
		cfg.NewSession = NewSession
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Engine{cfg: cfg, tasks: make(map[int64]*task)}
}

func (e *Engine) getSession() (Session, error) {
	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	if e.session != nil {
		return e.session, nil
	}
	s, err := e.cfg.NewSession(e.cfg.Session)
	if err != nil {
		return nil, err
	}
	e.session = s
	return s, nil
}

// Start resolves the transfer's source and downloads it in the background.
// Like the HTTP coordinator it is a no-op for a running transfer and refuses
// terminal ones.
func (e *Engine) Start(ctx context.Context, id int64) error {
	e.mu.Lock()
	if _, ok := e.tasks[id]; ok {
		e.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	tk := &task{cancel: cancel, done: make(chan struct{})}
	e.tasks[id] = tk
	e.mu.Unlock()

	release := func() {
		e.mu.Lock()
		if e.tasks[id] == tk {
			delete(e.tasks, id)
		}
		e.mu.Unlock()
		cancel()
		close(tk.done)
	}

	t, err := e.cfg.Store.GetByID(ctx, id)
	if err != nil {
		release()
		return err
	}
	if t.Status.Terminal() {
		release()
		return fmt.Errorf("transfer %d is %s: %w", id, t.Status, types.ErrTerminal)
	}
	sess, err := e.getSession()
	if err != nil {
		release()
		return err
	}

	if err := e.cfg.Store.UpdateStatus(ctx, id, types.StatusDownloading); err != nil {
		release()
		return err
	}
	e.emit(ctx, id)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer release()
		e.run(runCtx, sess, *t)
	}()
	return nil
}

func (e *Engine) run(ctx context.Context, sess Session, t types.Transfer) {
	persist := context.WithoutCancel(ctx)

	err := e.cfg.Telemetry.InstrumentTransfer(ctx, "torrent", func(ctx context.Context) error {
		return e.download(ctx, sess, t)
	})
	switch {
	case err == nil:
		if uerr := e.cfg.Store.UpdateCompleted(persist, t.ID, time.Now()); uerr != nil {
			log.Error().Err(uerr).Int64("id", t.ID).Msg("failed to mark torrent completed")
			return
		}
		log.Info().Int64("id", t.ID).Msg("torrent completed")
	case types.IsCancellation(err):
		// the caller that cancelled writes the status
		return
	default:
		log.Error().Err(err).Int64("id", t.ID).Msg("torrent failed")
		if uerr := e.cfg.Store.UpdateError(persist, t.ID, types.Summary(err)); uerr != nil {
			log.Error().Err(uerr).Int64("id", t.ID).Msg("failed to record torrent error")
		}
	}
	e.emit(persist, t.ID)
}

func (e *Engine) download(ctx context.Context, sess Session, t types.Transfer) error {
	persist := context.WithoutCancel(ctx)

	src, err := Resolve(ctx, e.cfg.Transport, t.URL)
	if err != nil {
		return err
	}
	dir := t.SavePath
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &types.IoError{Op: "mkdir", Path: dir, Err: err}
	}

	h, err := sess.Add(src, dir)
	if err != nil {
		return err
	}
	defer h.Drop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.GotInfo():
	}

	total := h.Length()
	if total > 0 && total != t.TotalBytes {
		if err := e.cfg.Store.UpdateTotalBytes(persist, t.ID, total); err != nil {
			return err
		}
	}
	log.Debug().Int64("id", t.ID).Str("name", h.Name()).Int64("total", total).Msg("torrent metadata ready")
	h.Start()

	meter := engine.NewMeter(e.cfg.PollInterval, h.BytesCompleted())
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		done := h.BytesCompleted()
		if err := e.cfg.Store.UpdateProgress(persist, t.ID, done, meter.Flush(done)); err != nil {
			return err
		}
		e.emit(persist, t.ID)
		log.Debug().Int64("id", t.ID).Int64("done", done).Int("peers", h.Peers()).Msg("torrent progress")
		if total > 0 && done >= total {
			return e.cfg.Store.UpdateProgress(persist, t.ID, done, 0)
		}

		select {
		case <-ctx.Done():
			if err := e.cfg.Store.UpdateProgress(persist, t.ID, h.BytesCompleted(), 0); err != nil {
				log.Debug().Err(err).Int64("id", t.ID).Msg("failed to persist torrent progress")
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *Engine) teardown(id int64) {
	e.mu.Lock()
	tk, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return
	}
	tk.cancel()
	<-tk.done
}

// Pause drops the torrent from the session; its files stay for a later Start.
func (e *Engine) Pause(ctx context.Context, id int64) error {
	e.teardown(id)
	t, err := e.cfg.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return nil
	}
	if err := e.cfg.Store.UpdateStatus(ctx, id, types.StatusPaused); err != nil {
		return err
	}
	e.emit(ctx, id)
	return nil
}

// Cancel stops the torrent, removes its data and marks it CANCELLED.
func (e *Engine) Cancel(ctx context.Context, id int64) error {
	e.teardown(id)
	t, err := e.cfg.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	e.removeData(t)
	if err := e.cfg.Store.UpdateStatus(ctx, id, types.StatusCancelled); err != nil {
		return err
	}
	e.emit(ctx, id)
	return nil
}

// Delete stops the torrent and removes it with its data.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	e.teardown(id)
	t, err := e.cfg.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	e.removeData(t)
	if err := e.cfg.Store.Delete(ctx, id); err != nil {
		return err
	}
	if e.cfg.Hub != nil {
		e.cfg.Hub.Forget(id)
	}
	return nil
}

// removeData deletes the torrent's named content inside its save dir.
func (e *Engine) removeData(t *types.Transfer) {
	if t.SavePath == "" || t.Name == "" {
		return
	}
	p := filepath.Join(t.SavePath, t.Name)
	if err := os.RemoveAll(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug().Err(err).Str("path", p).Msg("failed to remove torrent data")
	}
}

func (e *Engine) IsActive(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.tasks[id]
	return ok
}

// Close parks every running torrent as PAUSED and stops the session.
func (e *Engine) Close() error {
	e.mu.Lock()
	ids := make([]int64, 0, len(e.tasks))
	for id, tk := range e.tasks {
		ids = append(ids, id)
		tk.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()

	for _, id := range ids {
		if err := e.cfg.Store.UpdateStatus(context.Background(), id, types.StatusPaused); err != nil {
			log.Debug().Err(err).Int64("id", id).Msg("failed to park torrent")
		}
	}

	e.sessMu.Lock()
	defer e.sessMu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	return err
}

func (e *Engine) emit(ctx context.Context, id int64) {
	if e.cfg.Hub == nil {
		return
	}
	snap, err := engine.Snapshot(context.WithoutCancel(ctx), e.cfg.Store, id)
	if err != nil {
		log.Debug().Err(err).Int64("id", id).Msg("failed to load snapshot")
		return
	}
	e.cfg.Hub.Publish(snap)
}
