package concurrent

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/romreviewer/DOWNitUP/internal/engine"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// Worker downloads one chunk of a transfer.
type Worker struct {
	env      *engine.Env
	url      string
	savePath string
	agg      *aggregator
}

// Run drives chunk c to completion, retrying up to the configured number of
// times. Cancellation leaves the chunk as it is for Pause to settle.
func (w *Worker) Run(ctx context.Context, c types.Chunk) error {
	retries := w.env.Runtime.GetChunkRetries()
	for attempt := 0; ; attempt++ {
		err := w.attempt(ctx, &c)
		if err == nil || types.IsCancellation(err) {
			return err
		}
		if attempt >= retries {
			w.setStatus(ctx, c.ID, types.ChunkFailed)
			return fmt.Errorf("chunk %d: %w", c.Index, err)
		}
		log.Debug().
			Int64("transfer", c.TransferID).
			Int("chunk", c.Index).
			Int("attempt", attempt+1).
			Err(err).
			Msg("retrying chunk")
	}
}

func (w *Worker) attempt(ctx context.Context, c *types.Chunk) error {
	persist := context.WithoutCancel(ctx)

	if err := w.env.Store.UpdateChunkStatus(persist, c.ID, types.ChunkDownloading); err != nil {
		return err
	}
	if c.Remaining() <= 0 {
		return w.complete(persist, c)
	}

	out, err := w.env.Sinks.Create(w.savePath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	resume := c.ResumeOffset()
	if err := out.SeekTo(resume); err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", resume, c.EndByte))
	resp, err := w.env.Transport.Get(ctx, w.url, header)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		return &types.TransportError{Op: "GET", URL: w.url, StatusCode: resp.StatusCode}
	}

	base := c.DownloadedBytes
	pump := w.env.NewPump(w.url)
	pump.OnProgress = func(written, speed int64) error {
		c.DownloadedBytes = base + written
		c.Speed = speed
		if err := w.env.Store.UpdateChunkProgress(persist, c.ID, c.DownloadedBytes, speed); err != nil {
			return err
		}
		return w.agg.refresh(persist)
	}

	want := c.Remaining()
	written, runErr := pump.Run(ctx, resp.Body, out, want)
	c.DownloadedBytes = base + written
	c.Speed = 0
	if err := w.env.Store.UpdateChunkProgress(persist, c.ID, c.DownloadedBytes, 0); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}
	if written < want {
		return types.NewTransportError("GET", w.url, fmt.Errorf("chunk ended %d bytes short: %w", want-written, io.ErrUnexpectedEOF))
	}

	return w.complete(persist, c)
}

func (w *Worker) complete(ctx context.Context, c *types.Chunk) error {
	if err := w.env.Store.UpdateChunkStatus(ctx, c.ID, types.ChunkCompleted); err != nil {
		return err
	}
	c.Status = types.ChunkCompleted
	log.Debug().Int64("transfer", c.TransferID).Int("chunk", c.Index).Msg("chunk completed")
	return w.agg.refresh(ctx)
}

func (w *Worker) setStatus(ctx context.Context, id int64, status types.ChunkStatus) {
	if err := w.env.Store.UpdateChunkStatus(context.WithoutCancel(ctx), id, status); err != nil {
		log.Debug().Err(err).Int64("chunk_id", id).Msg("failed to update chunk status")
	}
}
