package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

func recv(t *testing.T, ch <-chan types.Transfer) types.Transfer {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return types.Transfer{}
}

func TestObserve_InitialThenLatest(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.Observe(ctx, 1, types.Transfer{ID: 1, Status: types.StatusQueued})
	assert.Equal(t, types.StatusQueued, recv(t, ch).Status)

	h.Publish(types.Transfer{ID: 1, Status: types.StatusDownloading, DownloadedBytes: 10})
	snap := recv(t, ch)
	assert.Equal(t, types.StatusDownloading, snap.Status)
	assert.Equal(t, int64(10), snap.DownloadedBytes)
}

func TestPublish_ReplacesUnread(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := h.Observe(ctx, 1, types.Transfer{ID: 1})
	for i := int64(1); i <= 50; i++ {
		h.Publish(types.Transfer{ID: 1, DownloadedBytes: i})
	}

	assert.Equal(t, int64(50), recv(t, ch).DownloadedBytes, "only the newest value is kept")
	select {
	case snap := <-ch:
		t.Fatalf("unexpected stale snapshot %+v", snap)
	default:
	}
}

func TestObserve_ResubscribeGetsLatest(t *testing.T) {
	h := NewHub()
	h.Publish(types.Transfer{ID: 3, DownloadedBytes: 99})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.Observe(ctx, 3, types.Transfer{ID: 3})
	assert.Equal(t, int64(99), recv(t, ch).DownloadedBytes, "initial is ignored once something was published")

	latest, ok := h.Latest(3)
	assert.True(t, ok)
	assert.Equal(t, int64(99), latest.DownloadedBytes)
}

func TestObserve_IsolatedByID(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := h.Observe(ctx, 1, types.Transfer{ID: 1})
	recv(t, a)

	h.Publish(types.Transfer{ID: 2, DownloadedBytes: 5})
	select {
	case snap := <-a:
		t.Fatalf("observer of 1 received %+v", snap)
	default:
	}
}

func TestObserve_ClosesOnContextDone(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch := h.Observe(ctx, 1, types.Transfer{ID: 1})
	recv(t, ch)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, h.Observers(1))
}

func TestForget(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.Publish(types.Transfer{ID: 1, DownloadedBytes: 1})
	ch := h.Observe(ctx, 1, types.Transfer{ID: 1})
	recv(t, ch)

	h.Forget(1)
	_, ok := <-ch
	assert.False(t, ok, "forget closes observers")
	_, ok = h.Latest(1)
	assert.False(t, ok)

	// a later cancel must not double-close
	cancel()
	time.Sleep(10 * time.Millisecond)
}

func TestForget_ReleasesLongLivedObservers(t *testing.T) {
	h := NewHub()
	var chans []<-chan types.Transfer
	for i := 0; i < 20; i++ {
		chans = append(chans, h.Observe(context.Background(), 7, types.Transfer{ID: 7}))
	}
	assert.Equal(t, 20, h.Observers(7))

	h.Forget(7)
	assert.Zero(t, h.Observers(7))
	for _, ch := range chans {
		recv(t, ch)
		_, ok := <-ch
		assert.False(t, ok)
	}
}

func TestRelease(t *testing.T) {
	h := NewHub()
	h.Publish(types.Transfer{ID: 1, Status: types.StatusCompleted})
	h.Publish(types.Transfer{ID: 2, Status: types.StatusCompleted})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := h.Observe(ctx, 2, types.Transfer{ID: 2})
	recv(t, ch)

	h.Release(1)
	h.Release(2)
	_, ok := h.Latest(1)
	assert.False(t, ok)
	_, ok = h.Latest(2)
	assert.True(t, ok, "observed transfers keep their snapshot")
	assert.Equal(t, 1, h.Tracked())

	fresh := h.Observe(ctx, 1, types.Transfer{ID: 1, Status: types.StatusPaused})
	assert.Equal(t, types.StatusPaused, recv(t, fresh).Status)
}
