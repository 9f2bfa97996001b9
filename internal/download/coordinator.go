package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/romreviewer/DOWNitUP/internal/engine"
	"github.com/romreviewer/DOWNitUP/internal/engine/concurrent"
	"github.com/romreviewer/DOWNitUP/internal/engine/events"
	"github.com/romreviewer/DOWNitUP/internal/engine/single"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
	"github.com/romreviewer/DOWNitUP/internal/telemetry"
)

// Strategy names the download path chosen for a transfer.
type Strategy string

const (
	StrategySingle Strategy = "single"
	StrategyMulti  Strategy = "multi"
)

var timeNow = time.Now

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator owns the running HTTP transfers: it picks a strategy, runs it
// under a cancellable context and writes the terminal status when it ends.
type Coordinator struct {
	env *engine.Env
	hub *events.Hub
	tel *telemetry.Telemetry

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	tasks map[int64]*task
}

// NewCoordinator builds a coordinator around env. The hub becomes env's
// publisher when env has none. tel may be nil.
func NewCoordinator(env *engine.Env, hub *events.Hub, tel *telemetry.Telemetry) *Coordinator {
	if env.Publisher == nil {
		env.Publisher = hub
	}
	if env.Limiter == nil {
		env.Limiter = engine.NewLimiter(env.Runtime.GetMaxBytesPerSecond(), env.Runtime.GetBlockSize())
	}
	if env.OnBytes == nil && tel != nil {
		env.OnBytes = tel.AddBytes
	}

	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		env:      env,
		hub:      hub,
		tel:      tel,
		base:     base,
		shutdown: cancel,
		tasks:    make(map[int64]*task),
	}
}

// Hub returns the progress hub snapshots are published to.
func (c *Coordinator) Hub() *events.Hub {
	return c.hub
}

// Start launches transfer id in the background. Starting an already running
// transfer is a no-op. The returned error only reports why the transfer could
// not be launched; download failures are persisted on the transfer.
func (c *Coordinator) Start(ctx context.Context, id int64) error {
	c.mu.Lock()
	if _, ok := c.tasks[id]; ok {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(c.base)
	tk := &task{cancel: cancel, done: make(chan struct{})}
	c.tasks[id] = tk
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		if c.tasks[id] == tk {
			delete(c.tasks, id)
		}
		c.mu.Unlock()
		cancel()
		close(tk.done)
	}

	t, err := c.env.Store.GetByID(ctx, id)
	if err != nil {
		release()
		if errors.Is(err, types.ErrNotFound) {
			log.Warn().Int64("id", id).Msg("start: transfer not found")
		}
		return err
	}
	if t.Status.Terminal() {
		release()
		return fmt.Errorf("transfer %d is %s: %w", id, t.Status, types.ErrTerminal)
	}

	if err := c.env.Store.UpdateStatus(ctx, id, types.StatusDownloading); err != nil {
		release()
		return err
	}
	t.Status = types.StatusDownloading
	c.emit(ctx, id)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer release()
		c.run(runCtx, *t)
	}()
	return nil
}

func (c *Coordinator) run(ctx context.Context, t types.Transfer) {
	persist := context.WithoutCancel(ctx)

	strategy, err := c.chooseStrategy(ctx, &t)
	if err != nil {
		log.Error().Err(err).Int64("id", t.ID).Msg("failed to choose strategy")
		if uerr := c.env.Store.UpdateError(persist, t.ID, types.Summary(err)); uerr != nil {
			log.Error().Err(uerr).Int64("id", t.ID).Msg("failed to record transfer error")
		}
		c.settle(persist, t.ID)
		return
	}
	log.Info().Int64("id", t.ID).Str("url", t.URL).Str("strategy", string(strategy)).
		Int("connections", t.ConnectionCount).Int64("total", t.TotalBytes).Msg("starting transfer")

	err = c.tel.InstrumentTransfer(ctx, string(strategy), func(ctx context.Context) error {
		if strategy == StrategyMulti {
			return concurrent.NewConcurrentDownloader(c.env).Download(ctx, t)
		}
		return single.NewSingleDownloader(c.env).Download(ctx, t)
	})

	switch {
	case err == nil:
		if uerr := c.env.Store.UpdateCompleted(persist, t.ID, timeNow()); uerr != nil {
			log.Error().Err(uerr).Int64("id", t.ID).Msg("failed to mark transfer completed")
			return
		}
		log.Info().Int64("id", t.ID).Msg("transfer completed")
	case types.IsCancellation(err):
		// Pause, Cancel and Delete write their own status after joining.
		if ctx.Err() != nil && c.base.Err() == nil {
			return
		}
		if perr := c.parkChunks(persist, t.ID); perr != nil {
			log.Debug().Err(perr).Int64("id", t.ID).Msg("failed to park chunks")
		}
		if uerr := c.env.Store.UpdateStatus(persist, t.ID, types.StatusPaused); uerr != nil {
			log.Error().Err(uerr).Int64("id", t.ID).Msg("failed to mark transfer paused")
		}
	default:
		log.Error().Err(err).Int64("id", t.ID).Str("strategy", string(strategy)).Msg("transfer failed")
		if uerr := c.env.Store.UpdateError(persist, t.ID, types.Summary(err)); uerr != nil {
			log.Error().Err(uerr).Int64("id", t.ID).Msg("failed to record transfer error")
		}
	}
	c.settle(persist, t.ID)
}

// chooseStrategy decides between the single and multi paths. A transfer that
// already holds bytes keeps the path that wrote them. Otherwise chunking
// always probes the origin for range support; a total learned on the way is
// persisted and copied into t.
func (c *Coordinator) chooseStrategy(ctx context.Context, t *types.Transfer) (Strategy, error) {
	s, committed, err := c.committed(ctx, t)
	if err != nil || committed {
		return s, err
	}
	if !t.UseChunking || t.ConnectionCount <= 1 {
		return StrategySingle, nil
	}

	res, err := engine.Probe(ctx, c.env.Transport, t.URL)
	if err != nil {
		log.Debug().Err(err).Int64("id", t.ID).Msg("probe failed, using a single connection")
		return StrategySingle, nil
	}
	if t.TotalBytes <= 0 && res.ContentLength > 0 {
		if err := c.env.Store.UpdateTotalBytes(context.WithoutCancel(ctx), t.ID, res.ContentLength); err != nil {
			log.Debug().Err(err).Int64("id", t.ID).Msg("failed to persist probed size")
		} else {
			t.TotalBytes = res.ContentLength
		}
	}
	if err := engine.CheckRanges(res); err != nil {
		log.Debug().Int64("id", t.ID).Str("accept_ranges", res.AcceptRanges).Msg("ranges unsupported, using a single connection")
		return StrategySingle, nil
	}
	if t.TotalBytes < c.env.Runtime.GetMinChunkingSize() {
		log.Debug().Int64("id", t.ID).Int64("total", t.TotalBytes).Msg("too small to chunk")
		return StrategySingle, nil
	}
	return StrategyMulti, nil
}

// committed reports the strategy t is bound to by what is already on disk.
// Chunk rows mean the multi path; bytes without chunk rows are a contiguous
// prefix only the single path can extend.
func (c *Coordinator) committed(ctx context.Context, t *types.Transfer) (Strategy, bool, error) {
	chunks, err := c.env.Store.GetChunksByTransfer(context.WithoutCancel(ctx), t.ID)
	if err != nil {
		return "", false, err
	}
	if len(chunks) > 0 {
		if t.TotalBytes <= 0 {
			return "", false, fmt.Errorf("transfer %d has %d chunks but no total size", t.ID, len(chunks))
		}
		return StrategyMulti, true, nil
	}
	if t.DownloadedBytes > 0 || t.Status == types.StatusCompleted {
		return StrategySingle, true, nil
	}
	return "", false, nil
}

// teardown cancels the running task for id and waits for it to exit.
func (c *Coordinator) teardown(id int64) {
	c.mu.Lock()
	tk, ok := c.tasks[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	tk.cancel()
	<-tk.done
}

// Pause stops a running transfer and keeps its bytes for a later Start.
func (c *Coordinator) Pause(ctx context.Context, id int64) error {
	c.teardown(id)

	t, err := c.env.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return nil
	}

	if err := c.parkChunks(ctx, id); err != nil {
		return err
	}
	if err := c.env.Store.UpdateStatus(ctx, id, types.StatusPaused); err != nil {
		return err
	}
	log.Debug().Int64("id", id).Msg("transfer paused")
	c.settle(ctx, id)
	return nil
}

func (c *Coordinator) parkChunks(ctx context.Context, id int64) error {
	chunks, err := c.env.Store.GetChunksByTransfer(ctx, id)
	if err != nil {
		return err
	}
	for _, ch := range chunks {
		if ch.Status != types.ChunkDownloading {
			continue
		}
		if err := c.env.Store.UpdateChunkStatus(ctx, ch.ID, types.ChunkPaused); err != nil {
			return err
		}
	}
	return nil
}

// Cancel stops a transfer, drops its chunks and partial file and marks it
// CANCELLED.
func (c *Coordinator) Cancel(ctx context.Context, id int64) error {
	c.teardown(id)

	t, err := c.env.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := c.env.Store.DeleteChunksByTransfer(ctx, id); err != nil {
		return err
	}
	c.removePartial(t)
	if err := c.env.Store.UpdateStatus(ctx, id, types.StatusCancelled); err != nil {
		return err
	}
	log.Debug().Int64("id", id).Msg("transfer cancelled")
	c.settle(ctx, id)
	return nil
}

// Delete stops a transfer and removes it together with its file.
func (c *Coordinator) Delete(ctx context.Context, id int64) error {
	c.teardown(id)

	t, err := c.env.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	c.removePartial(t)
	if err := c.env.Store.Delete(ctx, id); err != nil {
		return err
	}

	c.hub.Forget(id)
	log.Debug().Int64("id", id).Msg("transfer deleted")
	return nil
}

func (c *Coordinator) removePartial(t *types.Transfer) {
	if t.SavePath == "" {
		return
	}
	if err := c.env.Sinks.Remove(t.SavePath); err != nil {
		log.Debug().Err(err).Str("path", t.SavePath).Msg("failed to remove partial file")
	}
}

// Requeue returns a finished transfer to QUEUED. FAILED transfers keep their
// bytes so the next Start resumes; COMPLETED and CANCELLED ones start over.
func (c *Coordinator) Requeue(ctx context.Context, id int64) error {
	if c.IsActive(id) {
		return fmt.Errorf("requeue transfer %d: %w", id, types.ErrActive)
	}
	t, err := c.env.Store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	reset := t.Status == types.StatusCompleted || t.Status == types.StatusCancelled
	if err := c.env.Store.Requeue(ctx, id, reset); err != nil {
		return err
	}
	c.emit(ctx, id)
	return nil
}

// IsActive reports whether a task for id is registered.
func (c *Coordinator) IsActive(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tasks[id]
	return ok
}

// Strategy returns the path transfer id is bound to. ok is false while the
// transfer has written nothing and the choice is still open.
func (c *Coordinator) Strategy(ctx context.Context, id int64) (Strategy, bool, error) {
	t, err := c.env.Store.GetByID(ctx, id)
	if err != nil {
		return "", false, err
	}
	return c.committed(ctx, t)
}

// Observe streams snapshots of id until ctx ends. The first value is the
// current state with its chunks.
func (c *Coordinator) Observe(ctx context.Context, id int64) (<-chan types.Transfer, error) {
	snap, err := engine.Snapshot(ctx, c.env.Store, id)
	if err != nil {
		return nil, err
	}
	return c.hub.Observe(ctx, id, snap), nil
}

// Shutdown cancels every running transfer and waits for them to park as
// PAUSED, or for ctx to expire.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.shutdown()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) emit(ctx context.Context, id int64) {
	snap, err := engine.Snapshot(context.WithoutCancel(ctx), c.env.Store, id)
	if err != nil {
		log.Debug().Err(err).Int64("id", id).Msg("failed to load snapshot")
		return
	}
	c.hub.Publish(snap)
}

// settle publishes the final state of a stopped transfer and drops its cached
// snapshot; later observers read it back from the store.
func (c *Coordinator) settle(ctx context.Context, id int64) {
	c.emit(ctx, id)
	c.hub.Release(id)
}
