package concurrent

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/romreviewer/DOWNitUP/internal/engine"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// ConcurrentDownloader fetches a transfer as parallel byte ranges.
type ConcurrentDownloader struct {
	env *engine.Env
}

func NewConcurrentDownloader(env *engine.Env) *ConcurrentDownloader {
	return &ConcurrentDownloader{env: env}
}

// Download runs every unfinished chunk of t concurrently and succeeds only
// when all of them do. Persisted chunk progress survives a failure.
func (d *ConcurrentDownloader) Download(ctx context.Context, t types.Transfer) error {
	persist := context.WithoutCancel(ctx)

	total := t.TotalBytes
	if total <= 0 {
		res, err := engine.Probe(ctx, d.env.Transport, t.URL)
		if err != nil {
			return err
		}
		if res.ContentLength <= 0 {
			return fmt.Errorf("cannot split %s: unknown size", t.URL)
		}
		total = res.ContentLength
		if err := d.env.Store.UpdateTotalBytes(persist, t.ID, total); err != nil {
			return err
		}
		t.TotalBytes = total
	}

	chunks, err := d.loadOrPlan(persist, t)
	if err != nil {
		return err
	}

	agg := &aggregator{env: d.env, base: t}
	if err := agg.refresh(persist); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range chunks {
		if c.Status == types.ChunkCompleted {
			continue
		}
		w := &Worker{env: d.env, url: t.URL, savePath: t.SavePath, agg: agg}
		c := c
		g.Go(func() error {
			return w.Run(gctx, c)
		})
	}

	err = g.Wait()
	if refreshErr := agg.refresh(persist); refreshErr != nil && err == nil {
		err = refreshErr
	}
	if err != nil && !types.IsCancellation(err) {
		d.parkRunningChunks(persist, t.ID)
	}
	return err
}

func (d *ConcurrentDownloader) loadOrPlan(ctx context.Context, t types.Transfer) ([]types.Chunk, error) {
	chunks, err := d.env.Store.GetChunksByTransfer(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		log.Debug().Int64("id", t.ID).Int("chunks", len(chunks)).Msg("resuming existing chunks")
		return chunks, nil
	}

	ranges, err := Plan(t.TotalBytes, types.ClampConnections(t.ConnectionCount))
	if err != nil {
		return nil, err
	}
	for _, r := range ranges {
		if _, err := d.env.Store.InsertChunk(ctx, types.Chunk{
			TransferID: t.ID,
			Index:      r.Index,
			StartByte:  r.Start,
			EndByte:    r.End,
			Status:     types.ChunkQueued,
		}); err != nil {
			return nil, err
		}
	}
	log.Debug().Int64("id", t.ID).Int("chunks", len(ranges)).Int64("total", t.TotalBytes).Msg("planned chunks")
	return d.env.Store.GetChunksByTransfer(ctx, t.ID)
}

// parkRunningChunks pauses the siblings a failed chunk interrupted so they
// resume cleanly after a requeue.
func (d *ConcurrentDownloader) parkRunningChunks(ctx context.Context, id int64) {
	chunks, err := d.env.Store.GetChunksByTransfer(ctx, id)
	if err != nil {
		return
	}
	for _, c := range chunks {
		if c.Status == types.ChunkDownloading {
			_ = d.env.Store.UpdateChunkStatus(ctx, c.ID, types.ChunkPaused)
		}
	}
}

// aggregator recomputes transfer progress from every chunk row. Calls are
// serialized so the transfer row has a single writer.
type aggregator struct {
	mu   sync.Mutex
	env  *engine.Env
	base types.Transfer
}

func (a *aggregator) refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	chunks, err := a.env.Store.GetChunksByTransfer(ctx, a.base.ID)
	if err != nil {
		return err
	}
	var downloaded, speed int64
	for _, c := range chunks {
		downloaded += c.DownloadedBytes
		speed += c.Speed
	}
	if err := a.env.Store.UpdateProgress(ctx, a.base.ID, downloaded, speed); err != nil {
		return err
	}

	snap := a.base
	snap.Status = types.StatusDownloading
	snap.DownloadedBytes = downloaded
	snap.Speed = speed
	snap.Chunks = chunks
	a.env.Publish(snap)
	return nil
}
