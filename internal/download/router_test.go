package download

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

type fakeEngine struct {
	mu     sync.Mutex
	calls  []string
	active map[int64]bool
}

func (f *fakeEngine) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
}

func (f *fakeEngine) Start(_ context.Context, _ int64) error  { f.record("start"); return nil }
func (f *fakeEngine) Pause(_ context.Context, _ int64) error  { f.record("pause"); return nil }
func (f *fakeEngine) Cancel(_ context.Context, _ int64) error { f.record("cancel"); return nil }
func (f *fakeEngine) Delete(_ context.Context, _ int64) error { f.record("delete"); return nil }

func (f *fakeEngine) IsActive(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[id]
}

func TestRouter_DispatchesOnKind(t *testing.T) {
	c, store, dir := newCoordinator(t, nil)
	ctx := context.Background()
	fake := &fakeEngine{active: map[int64]bool{}}
	r := NewRouter(store, c, fake)

	id, err := store.Insert(ctx, types.NewTransfer{
		Name: "ubuntu", URL: "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567",
		Kind: types.KindTorrent, SavePath: filepath.Join(dir, "ubuntu"),
	})
	require.NoError(t, err)

	require.NoError(t, r.Start(ctx, id))
	require.NoError(t, r.Pause(ctx, id))
	require.NoError(t, r.Cancel(ctx, id))
	require.NoError(t, r.Delete(ctx, id))
	assert.Equal(t, []string{"start", "pause", "cancel", "delete"}, fake.calls)
	assert.False(t, c.IsActive(id))
}

func TestRouter_HTTPGoesToCoordinator(t *testing.T) {
	c, store, dir := newCoordinator(t, nil)
	ctx := context.Background()
	fake := &fakeEngine{active: map[int64]bool{}}
	r := NewRouter(store, c, fake)

	id := addHTTP(t, store, "http://127.0.0.1:1/x", filepath.Join(dir, "x"), 1)
	require.NoError(t, r.Pause(ctx, id))

	got, _ := store.GetByID(ctx, id)
	assert.Equal(t, types.StatusPaused, got.Status)
	assert.Empty(t, fake.calls)
}

func TestRouter_UnknownIDIsNoop(t *testing.T) {
	c, store, _ := newCoordinator(t, nil)
	r := NewRouter(store, c, &fakeEngine{})
	ctx := context.Background()

	assert.NoError(t, r.Start(ctx, 404))
	assert.NoError(t, r.Pause(ctx, 404))
	assert.NoError(t, r.Cancel(ctx, 404))
	assert.NoError(t, r.Delete(ctx, 404))
}

func TestRouter_IsActiveChecksBothEngines(t *testing.T) {
	c, store, _ := newCoordinator(t, nil)
	fake := &fakeEngine{active: map[int64]bool{7: true}}
	r := NewRouter(store, c, fake)

	assert.True(t, r.IsActive(7))
	assert.False(t, r.IsActive(8))
}

func TestRouter_TorrentWithoutEngine(t *testing.T) {
	c, store, dir := newCoordinator(t, nil)
	ctx := context.Background()
	r := NewRouter(store, c, nil)

	id, err := store.Insert(ctx, types.NewTransfer{
		Name: "t", URL: "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567",
		Kind: types.KindTorrent, SavePath: filepath.Join(dir, "t"),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, r.Start(ctx, id), errTorrentUnavailable)
}
