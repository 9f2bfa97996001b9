package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// Hub fans transfer snapshots out to observers. Every observer channel holds
// at most one value and a publish replaces whatever is still unread, so a
// slow reader only ever sees the newest state.
type Hub struct {
	mu     sync.Mutex
	latest map[int64]types.Transfer
	subs   map[int64]map[uuid.UUID]*subscription
}

type subscription struct {
	ch   chan types.Transfer
	stop func() bool
}

func NewHub() *Hub {
	return &Hub{
		latest: make(map[int64]types.Transfer),
		subs:   make(map[int64]map[uuid.UUID]*subscription),
	}
}

// Publish records snap as the latest state of its transfer and offers it to
// every observer.
func (h *Hub) Publish(snap types.Transfer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.latest[snap.ID] = snap
	for _, sub := range h.subs[snap.ID] {
		replace(sub.ch, snap)
	}
}

// Latest returns the last published snapshot for id.
func (h *Hub) Latest(id int64) (types.Transfer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.latest[id]
	return t, ok
}

// Observe subscribes to id. The channel immediately holds the latest
// snapshot, or initial when nothing has been published yet, and is closed
// when ctx ends or the transfer is forgotten.
func (h *Hub) Observe(ctx context.Context, id int64, initial types.Transfer) <-chan types.Transfer {
	sub := &subscription{ch: make(chan types.Transfer, 1)}
	key := uuid.New()

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[uuid.UUID]*subscription)
	}
	h.subs[id][key] = sub
	if snap, ok := h.latest[id]; ok {
		sub.ch <- snap
	} else {
		sub.ch <- initial
	}
	sub.stop = context.AfterFunc(ctx, func() { h.unsubscribe(id, key) })
	h.mu.Unlock()

	return sub.ch
}

// Forget drops the latest snapshot for id and closes its observers.
func (h *Hub) Forget(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.latest, id)
	for key, sub := range h.subs[id] {
		sub.stop()
		close(sub.ch)
		delete(h.subs[id], key)
	}
	delete(h.subs, id)
}

// Release drops the latest snapshot for id once nobody observes it. Finished
// transfers are reloaded from the store by the next Observe.
func (h *Hub) Release(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.subs[id]) == 0 {
		delete(h.latest, id)
	}
}

// Tracked returns the number of transfers with a cached snapshot.
func (h *Hub) Tracked() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.latest)
}

// Observers returns the number of live subscriptions for id.
func (h *Hub) Observers(id int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}

func (h *Hub) unsubscribe(id int64, key uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.subs[id]
	if !ok {
		return
	}
	if sub, ok := subs[key]; ok {
		close(sub.ch)
		delete(subs, key)
	}
	if len(subs) == 0 {
		delete(h.subs, id)
	}
}

func replace(ch chan types.Transfer, snap types.Transfer) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
