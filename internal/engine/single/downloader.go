package single

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/romreviewer/DOWNitUP/internal/engine"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// SingleDownloader fetches a transfer over one connection, resuming from
// the persisted byte count.
type SingleDownloader struct {
	env *engine.Env
}

func NewSingleDownloader(env *engine.Env) *SingleDownloader {
	return &SingleDownloader{env: env}
}

// Download streams t into its save path. Progress is persisted and
// published at most once per progress interval.
func (d *SingleDownloader) Download(ctx context.Context, t types.Transfer) error {
	persist := context.WithoutCancel(ctx)

	out, err := d.env.Sinks.Create(t.SavePath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	resume := t.DownloadedBytes
	if resume < 0 || (t.TotalBytes > 0 && resume > t.TotalBytes) {
		resume = 0
	}
	if t.TotalBytes > 0 && resume == t.TotalBytes {
		return nil
	}

	header := http.Header{}
	if resume > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-", resume))
	}

	resp, err := d.env.Transport.Get(ctx, t.URL, header)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resume > 0 && resp.StatusCode != http.StatusPartialContent {
		log.Debug().Int64("id", t.ID).Int("status", resp.StatusCode).Msg("origin ignored range, restarting from zero")
		resume = 0
	}
	if err := out.SeekTo(resume); err != nil {
		return err
	}

	if resp.ContentLength > 0 {
		total := resume + resp.ContentLength
		if total != t.TotalBytes {
			if err := d.env.Store.UpdateTotalBytes(persist, t.ID, total); err != nil {
				return err
			}
			t.TotalBytes = total
		}
	}

	snap := t
	snap.Status = types.StatusDownloading
	snap.Chunks = nil

	pump := d.env.NewPump(t.URL)
	if resume == 0 {
		contentType := resp.Header.Get("Content-Type")
		pump.OnFirstBlock = func(block []byte) {
			if mime := engine.SniffMIME(block, contentType); mime != "" {
				snap.MimeType = mime
				if err := d.env.Store.UpdateMimeType(persist, t.ID, mime); err != nil {
					log.Debug().Err(err).Int64("id", t.ID).Msg("failed to store mime type")
				}
			}
		}
	}
	pump.OnProgress = func(written, speed int64) error {
		if err := d.env.Store.UpdateProgress(persist, t.ID, resume+written, speed); err != nil {
			return err
		}
		snap.DownloadedBytes = resume + written
		snap.Speed = speed
		d.env.Publish(snap)
		return nil
	}

	written, runErr := pump.Run(ctx, resp.Body, out, 0)
	downloaded := resume + written
	if err := d.env.Store.UpdateProgress(persist, t.ID, downloaded, 0); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}

	if t.TotalBytes > 0 && downloaded < t.TotalBytes {
		return types.NewTransportError("GET", t.URL, fmt.Errorf("stream ended at %d of %d bytes", downloaded, t.TotalBytes))
	}

	// A resumed restart may leave stale bytes past the new end.
	if size, err := out.Size(); err == nil && size > downloaded {
		if err := out.Truncate(downloaded); err != nil {
			return err
		}
	}

	log.Debug().Int64("id", t.ID).Int64("bytes", downloaded).Msg("single download finished")
	return nil
}
