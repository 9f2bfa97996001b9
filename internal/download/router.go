package download

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/romreviewer/DOWNitUP/internal/engine/state"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// Engine runs transfers of one kind.
type Engine interface {
	Start(ctx context.Context, id int64) error
	Pause(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	IsActive(id int64) bool
}

// Router sends each control call to the engine that owns the transfer's
// kind. The kind is read from the store on every call.
type Router struct {
	store   state.TransferStore
	http    *Coordinator
	torrent Engine
}

// NewRouter wires the HTTP coordinator and an optional torrent engine.
func NewRouter(store state.TransferStore, http *Coordinator, torrent Engine) *Router {
	return &Router{store: store, http: http, torrent: torrent}
}

// Coordinator returns the HTTP engine.
func (r *Router) Coordinator() *Coordinator {
	return r.http
}

func (r *Router) engineFor(ctx context.Context, op string, id int64) (Engine, error) {
	t, err := r.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			log.Warn().Int64("id", id).Str("op", op).Msg("transfer not found, ignoring")
			return nil, nil
		}
		return nil, err
	}
	if t.Kind == types.KindTorrent {
		if r.torrent == nil {
			return nil, errTorrentUnavailable
		}
		return r.torrent, nil
	}
	return r.http, nil
}

var errTorrentUnavailable = errors.New("torrent engine unavailable")

func (r *Router) Start(ctx context.Context, id int64) error {
	e, err := r.engineFor(ctx, "start", id)
	if e == nil {
		return err
	}
	return e.Start(ctx, id)
}

func (r *Router) Pause(ctx context.Context, id int64) error {
	e, err := r.engineFor(ctx, "pause", id)
	if e == nil {
		return err
	}
	return e.Pause(ctx, id)
}

func (r *Router) Cancel(ctx context.Context, id int64) error {
	e, err := r.engineFor(ctx, "cancel", id)
	if e == nil {
		return err
	}
	return e.Cancel(ctx, id)
}

func (r *Router) Delete(ctx context.Context, id int64) error {
	e, err := r.engineFor(ctx, "delete", id)
	if e == nil {
		return err
	}
	return e.Delete(ctx, id)
}

// Requeue is HTTP-only bookkeeping; torrents are requeued the same way since
// the store holds all of their state.
func (r *Router) Requeue(ctx context.Context, id int64) error {
	if r.torrent != nil && r.torrent.IsActive(id) {
		return fmt.Errorf("requeue transfer %d: %w", id, types.ErrActive)
	}
	return r.http.Requeue(ctx, id)
}

// IsActive reports whether either engine is running id.
func (r *Router) IsActive(id int64) bool {
	if r.http.IsActive(id) {
		return true
	}
	return r.torrent != nil && r.torrent.IsActive(id)
}

// Observe streams snapshots of id. Both engines publish into the same hub.
func (r *Router) Observe(ctx context.Context, id int64) (<-chan types.Transfer, error) {
	return r.http.Observe(ctx, id)
}

// Shutdown stops the HTTP engine; the torrent engine is closed by its owner.
func (r *Router) Shutdown(ctx context.Context) error {
	return r.http.Shutdown(ctx)
}
