package engine

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/romreviewer/DOWNitUP/internal/engine/sink"
	"github.com/romreviewer/DOWNitUP/internal/engine/state"
	"github.com/romreviewer/DOWNitUP/internal/engine/transport"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// Publisher receives transfer snapshots for live observers.
type Publisher interface {
	Publish(snap types.Transfer)
}

// Env carries the collaborators shared by both download strategies.
type Env struct {
	Store     state.TransferStore
	Sinks     sink.Opener
	Transport transport.Transport
	Publisher Publisher
	Runtime   *types.RuntimeConfig
	// Limiter caps bandwidth across every running transfer; nil is unlimited.
	Limiter *rate.Limiter
	// OnBytes counts payload bytes as they are written.
	OnBytes func(n int64)
}

// NewPump returns a block pump configured from the runtime settings.
func (e *Env) NewPump(rawURL string) *Pump {
	return &Pump{
		URL:       rawURL,
		BlockSize: e.Runtime.GetBlockSize(),
		Interval:  e.Runtime.GetProgressInterval(),
		Limiter:   e.Limiter,
		OnBytes:   e.OnBytes,
	}
}

// Publish forwards snap when a publisher is configured.
func (e *Env) Publish(snap types.Transfer) {
	if e.Publisher != nil {
		e.Publisher.Publish(snap)
	}
}

// Snapshot loads a transfer together with its chunks.
func Snapshot(ctx context.Context, store state.TransferStore, id int64) (types.Transfer, error) {
	t, err := store.GetByID(ctx, id)
	if err != nil {
		return types.Transfer{}, err
	}
	chunks, err := store.GetChunksByTransfer(ctx, id)
	if err != nil {
		return types.Transfer{}, fmt.Errorf("failed to load chunks: %w", err)
	}
	t.Chunks = chunks
	return *t, nil
}
