package concurrent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romreviewer/DOWNitUP/internal/engine"
	"github.com/romreviewer/DOWNitUP/internal/engine/sink"
	"github.com/romreviewer/DOWNitUP/internal/engine/state"
	"github.com/romreviewer/DOWNitUP/internal/engine/transport"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
	"github.com/romreviewer/DOWNitUP/internal/testutil"
)

type recorder struct {
	mu    sync.Mutex
	snaps []types.Transfer
}

func (r *recorder) Publish(snap types.Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) all() []types.Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Transfer(nil), r.snaps...)
}

type fixture struct {
	env   *engine.Env
	store *state.DB
	pub   *recorder
	dir   string
}

func newFixture(t *testing.T, rt *types.RuntimeConfig) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := state.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if rt == nil {
		rt = &types.RuntimeConfig{}
	}
	if rt.ProgressInterval == 0 {
		rt.ProgressInterval = 5 * time.Millisecond
	}
	pub := &recorder{}
	return &fixture{
		env: &engine.Env{
			Store:     store,
			Sinks:     sink.NewFS(),
			Transport: transport.New(rt),
			Publisher: pub,
			Runtime:   rt,
		},
		store: store,
		pub:   pub,
		dir:   dir,
	}
}

func (f *fixture) insert(t *testing.T, url string, total int64, conns int) types.Transfer {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.Insert(ctx, types.NewTransfer{
		Name:            "file.bin",
		URL:             url,
		Kind:            types.KindHTTP,
		SavePath:        filepath.Join(f.dir, "out", "file.bin"),
		ConnectionCount: conns,
		UseChunking:     true,
		TotalBytes:      total,
	})
	require.NoError(t, err)
	tr, err := f.store.GetByID(ctx, id)
	require.NoError(t, err)
	return *tr
}

func assertAggregateConsistent(t *testing.T, snaps []types.Transfer) {
	t.Helper()
	for _, s := range snaps {
		var sum int64
		for _, c := range s.Chunks {
			sum += c.DownloadedBytes
		}
		assert.Equal(t, sum, s.DownloadedBytes, "snapshot progress must equal the chunk sum")
	}
}

func TestDownload_AllChunks(t *testing.T) {
	data := testutil.Payload(256 * 1024)
	srv := testutil.NewRangeServer(data, testutil.ServerOptions{})
	defer srv.Close()

	f := newFixture(t, nil)
	tr := f.insert(t, srv.FileURL("file.bin"), int64(len(data)), 4)

	err := NewConcurrentDownloader(f.env).Download(context.Background(), tr)
	require.NoError(t, err)

	ok, err := testutil.FileEquals(tr.SavePath, data)
	require.NoError(t, err)
	assert.True(t, ok, "file content mismatch")

	chunks, err := f.store.GetChunksByTransfer(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for _, c := range chunks {
		assert.Equal(t, types.ChunkCompleted, c.Status)
		assert.Equal(t, c.Size(), c.DownloadedBytes)
	}

	got, _ := f.store.GetByID(context.Background(), tr.ID)
	assert.Equal(t, int64(len(data)), got.DownloadedBytes)
	assert.Equal(t, 4, srv.RangedGets())
	assert.Zero(t, srv.CountMethod("HEAD"), "known size needs no probe")

	snaps := f.pub.all()
	require.NotEmpty(t, snaps)
	assertAggregateConsistent(t, snaps)
}

func TestDownload_ResolvesTotalWithHead(t *testing.T) {
	data := testutil.Payload(64 * 1024)
	srv := testutil.NewRangeServer(data, testutil.ServerOptions{})
	defer srv.Close()

	f := newFixture(t, nil)
	tr := f.insert(t, srv.FileURL("file.bin"), 0, 2)

	require.NoError(t, NewConcurrentDownloader(f.env).Download(context.Background(), tr))

	got, _ := f.store.GetByID(context.Background(), tr.ID)
	assert.Equal(t, int64(len(data)), got.TotalBytes)
	assert.Equal(t, 1, srv.CountMethod("HEAD"))
}

func TestDownload_OneChunkFails(t *testing.T) {
	data := testutil.Payload(1024 * 1024)
	ranges, _ := Plan(int64(len(data)), 4)
	srv := testutil.NewRangeServer(data, testutil.ServerOptions{
		FailOffset: ranges[2].Start,
		FailAfter:  10 * 1024,
		Throttle:   50 * time.Millisecond,
	})
	defer srv.Close()

	f := newFixture(t, nil)
	tr := f.insert(t, srv.FileURL("file.bin"), int64(len(data)), 4)

	err := NewConcurrentDownloader(f.env).Download(context.Background(), tr)
	require.Error(t, err)
	assert.False(t, types.IsCancellation(err), "chunk failure is not a pause")

	var te *types.TransportError
	assert.True(t, errors.As(err, &te))

	chunks, err := f.store.GetChunksByTransfer(context.Background(), tr.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	var sum int64
	for _, c := range chunks {
		sum += c.DownloadedBytes
		if c.Index == 2 {
			assert.Equal(t, types.ChunkFailed, c.Status)
			assert.Equal(t, int64(10*1024), c.DownloadedBytes)
			continue
		}
		assert.NotEqual(t, types.ChunkCompleted, c.Status)
		assert.NotEqual(t, types.ChunkDownloading, c.Status, "interrupted siblings are parked")
		assert.Less(t, c.DownloadedBytes, c.Size())
	}

	got, _ := f.store.GetByID(context.Background(), tr.ID)
	assert.Equal(t, sum, got.DownloadedBytes, "partial bytes stay persisted")
}

func TestDownload_RetriesFailedChunk(t *testing.T) {
	data := testutil.Payload(128 * 1024)
	srv := testutil.NewRangeServer(data, testutil.ServerOptions{
		FailOffset: 0,
		FailAfter:  4 * 1024,
	})
	defer srv.Close()

	f := newFixture(t, &types.RuntimeConfig{ChunkRetries: 1})
	tr := f.insert(t, srv.FileURL("file.bin"), int64(len(data)), 2)

	require.NoError(t, NewConcurrentDownloader(f.env).Download(context.Background(), tr))

	ok, err := testutil.FileEquals(tr.SavePath, data)
	require.NoError(t, err)
	assert.True(t, ok)

	resumed := false
	for _, r := range srv.Requests() {
		if r.Range == fmt.Sprintf("bytes=%d-%d", 4*1024, 64*1024-1) {
			resumed = true
		}
	}
	assert.True(t, resumed, "retry resumes from the persisted offset: %+v", srv.Requests())
}

func TestDownload_ResumesExistingChunks(t *testing.T) {
	data := testutil.Payload(128 * 1024)
	srv := testutil.NewRangeServer(data, testutil.ServerOptions{})
	defer srv.Close()

	f := newFixture(t, nil)
	ctx := context.Background()
	tr := f.insert(t, srv.FileURL("file.bin"), int64(len(data)), 2)

	// chunk 0 is 1000 bytes in, chunk 1 is done
	require.NoError(t, os.MkdirAll(filepath.Dir(tr.SavePath), 0o755))
	partial := make([]byte, len(data))
	copy(partial[:1000], data[:1000])
	copy(partial[64*1024:], data[64*1024:])
	require.NoError(t, os.WriteFile(tr.SavePath, partial, 0o644))

	_, err := f.store.InsertChunk(ctx, types.Chunk{TransferID: tr.ID, Index: 0, StartByte: 0, EndByte: 64*1024 - 1, DownloadedBytes: 1000, Status: types.ChunkPaused})
	require.NoError(t, err)
	_, err = f.store.InsertChunk(ctx, types.Chunk{TransferID: tr.ID, Index: 1, StartByte: 64 * 1024, EndByte: 128*1024 - 1, DownloadedBytes: 64 * 1024, Status: types.ChunkCompleted})
	require.NoError(t, err)

	require.NoError(t, NewConcurrentDownloader(f.env).Download(ctx, tr))

	ok, err := testutil.FileEquals(tr.SavePath, data)
	require.NoError(t, err)
	assert.True(t, ok)

	reqs := srv.Requests()
	require.Len(t, reqs, 1, "only the unfinished chunk is fetched")
	assert.Equal(t, fmt.Sprintf("bytes=1000-%d", 64*1024-1), reqs[0].Range)
}

func TestDownload_RejectsFullResponse(t *testing.T) {
	data := testutil.Payload(64 * 1024)
	srv := testutil.NewRangeServer(data, testutil.ServerOptions{IgnoreRange: true})
	defer srv.Close()

	f := newFixture(t, nil)
	tr := f.insert(t, srv.FileURL("file.bin"), int64(len(data)), 2)

	err := NewConcurrentDownloader(f.env).Download(context.Background(), tr)
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 200, te.StatusCode)
}

func TestDownload_CancelLeavesChunksResumable(t *testing.T) {
	data := testutil.Payload(512 * 1024)
	srv := testutil.NewRangeServer(data, testutil.ServerOptions{Throttle: 20 * time.Millisecond})
	defer srv.Close()

	f := newFixture(t, nil)
	tr := f.insert(t, srv.FileURL("file.bin"), int64(len(data)), 4)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(60*time.Millisecond, cancel)

	err := NewConcurrentDownloader(f.env).Download(ctx, tr)
	require.Error(t, err)
	assert.True(t, types.IsCancellation(err))

	chunks, _ := f.store.GetChunksByTransfer(context.Background(), tr.ID)
	for _, c := range chunks {
		assert.NotEqual(t, types.ChunkFailed, c.Status)
	}
}
