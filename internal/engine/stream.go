package engine

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/h2non/filetype"
	"golang.org/x/time/rate"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// NewLimiter returns a shared bandwidth limiter, or nil when bytesPerSec is 0.
func NewLimiter(bytesPerSec int64, blockSize int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := int(bytesPerSec)
	if burst < blockSize {
		burst = blockSize
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// SniffMIME detects the media type of the first block, falling back to the
// server's Content-Type.
func SniffMIME(head []byte, contentType string) string {
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return MediaType(contentType)
}

// Pump copies a response body into a sink in fixed-size blocks.
type Pump struct {
	URL       string
	BlockSize int
	Interval  time.Duration
	Limiter   *rate.Limiter

	// OnProgress is called at most once per Interval with the bytes written
	// so far in this run and the speed over the last window. A returned
	// error aborts the copy.
	OnProgress func(written, speed int64) error
	// OnFirstBlock sees the first non-empty block before it is written.
	OnFirstBlock func(block []byte)
	// OnBytes counts every block written.
	OnBytes func(n int64)
}

// Run copies from r into w until EOF, ctx ends, or max bytes have been
// written (max <= 0 means unbounded). It returns the bytes written.
func (p *Pump) Run(ctx context.Context, r io.Reader, w io.Writer, max int64) (int64, error) {
	blockSize := p.BlockSize
	if blockSize <= 0 {
		blockSize = types.BlockSize
	}
	interval := p.Interval
	if interval <= 0 {
		interval = types.ProgressInterval
	}

	buf := make([]byte, blockSize)
	meter := NewMeter(interval, 0)
	var written int64
	first := true

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		want := len(buf)
		if max > 0 {
			remaining := max - written
			if remaining <= 0 {
				return written, nil
			}
			if remaining < int64(want) {
				want = int(remaining)
			}
		}

		n, readErr := r.Read(buf[:want])
		if n > 0 {
			if p.Limiter != nil {
				if err := p.Limiter.WaitN(ctx, n); err != nil {
					if ctx.Err() != nil {
						return written, ctx.Err()
					}
					return written, err
				}
			}
			if first {
				first = false
				if p.OnFirstBlock != nil {
					p.OnFirstBlock(buf[:n])
				}
			}
			if _, err := w.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if p.OnBytes != nil {
				p.OnBytes(int64(n))
			}
			if speed, ok := meter.Due(written); ok && p.OnProgress != nil {
				if err := p.OnProgress(written, speed); err != nil {
					return written, err
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, types.NewTransportError("GET", p.URL, readErr)
		}
	}
}
