package state

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
	"github.com/romreviewer/DOWNitUP/internal/telemetry"
)

func newHTTP(url string) types.NewTransfer {
	return types.NewTransfer{
		Name:            filepath.Base(url),
		URL:             url,
		Kind:            types.KindHTTP,
		SavePath:        filepath.Join("/tmp", filepath.Base(url)),
		ConnectionCount: 4,
		UseChunking:     true,
	}
}

func chunkAt(transferID int64, index int, size int64) types.Chunk {
	return types.Chunk{
		TransferID: transferID,
		Index:      index,
		StartByte:  int64(index) * size,
		EndByte:    int64(index+1)*size - 1,
	}
}

func TestInsertAndGet(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, err := d.Insert(ctx, types.NewTransfer{
		Name:            "file.iso",
		URL:             "https://example.com/file.iso",
		SavePath:        "/downloads/file.iso",
		ConnectionCount: 64,
		UseChunking:     true,
		InfoHash:        "",
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	tr, err := d.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, tr.ID)
	assert.Equal(t, "file.iso", tr.Name)
	assert.Equal(t, types.KindHTTP, tr.Kind, "kind defaults to HTTP")
	assert.Equal(t, types.StatusQueued, tr.Status)
	assert.Equal(t, types.MaxConnectionCount, tr.ConnectionCount, "connections are clamped")
	assert.True(t, tr.UseChunking)
	assert.Nil(t, tr.CompletedAt)
	assert.Empty(t, tr.LastError)
	assert.WithinDuration(t, time.Now(), tr.CreatedAt, 5*time.Second)
}

func TestGetByID_NotFound(t *testing.T) {
	d := setupTestDB(t)

	_, err := d.GetByID(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	var nf *types.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, int64(999), nf.ID)
}

func TestUpdates_NotFound(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	checks := map[string]error{
		"status":    d.UpdateStatus(ctx, 7, types.StatusPaused),
		"progress":  d.UpdateProgress(ctx, 7, 1, 1),
		"total":     d.UpdateTotalBytes(ctx, 7, 10),
		"error":     d.UpdateError(ctx, 7, "boom"),
		"completed": d.UpdateCompleted(ctx, 7, time.Now()),
		"mime":      d.UpdateMimeType(ctx, 7, "video/mp4"),
		"delete":    d.Delete(ctx, 7),
		"requeue":   d.Requeue(ctx, 7, true),
		"chunk":     d.UpdateChunkStatus(ctx, 7, types.ChunkPaused),
	}
	for name, err := range checks {
		assert.ErrorIs(t, err, types.ErrNotFound, name)
	}
}

func TestGetAllAndByStatuses(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	a, _ := d.Insert(ctx, newHTTP("http://x/a"))
	b, _ := d.Insert(ctx, newHTTP("http://x/b"))
	c, _ := d.Insert(ctx, newHTTP("http://x/c"))

	require.NoError(t, d.UpdateStatus(ctx, a, types.StatusPaused))
	require.NoError(t, d.UpdateStatus(ctx, b, types.StatusDownloading))

	all, err := d.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, c, all[0].ID, "newest first")

	some, err := d.GetByStatuses(ctx, types.StatusPaused, types.StatusDownloading)
	require.NoError(t, err)
	assert.Len(t, some, 2)

	none, err := d.GetByStatuses(ctx)
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err := d.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = d.CountByStatus(ctx, types.StatusQueued)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProgressAndCompletion(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, _ := d.Insert(ctx, newHTTP("http://x/file"))
	require.NoError(t, d.UpdateTotalBytes(ctx, id, 1000))
	require.NoError(t, d.UpdateProgress(ctx, id, 400, 2048))
	require.NoError(t, d.UpdateMimeType(ctx, id, "application/zip"))

	tr, err := d.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tr.TotalBytes)
	assert.Equal(t, int64(400), tr.DownloadedBytes)
	assert.Equal(t, int64(2048), tr.Speed)
	assert.Equal(t, "application/zip", tr.MimeType)

	at := time.Now().Truncate(time.Millisecond)
	require.NoError(t, d.UpdateCompleted(ctx, id, at))

	tr, err = d.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, tr.Status)
	assert.Equal(t, int64(1000), tr.DownloadedBytes, "completion fills the byte counter")
	assert.Zero(t, tr.Speed)
	require.NotNil(t, tr.CompletedAt)
	assert.True(t, at.Equal(*tr.CompletedAt))
}

func TestUpdateCompleted_UnknownTotal(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, _ := d.Insert(ctx, newHTTP("http://x/stream"))
	require.NoError(t, d.UpdateProgress(ctx, id, 777, 10))
	require.NoError(t, d.UpdateCompleted(ctx, id, time.Now()))

	tr, err := d.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(777), tr.TotalBytes)
	assert.Equal(t, int64(777), tr.DownloadedBytes)
}

func TestUpdateError(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, _ := d.Insert(ctx, newHTTP("http://x/file"))
	require.NoError(t, d.UpdateError(ctx, id, "GET http://x/file: unexpected status 500"))

	tr, err := d.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, tr.Status)
	assert.Equal(t, "GET http://x/file: unexpected status 500", tr.LastError)

	// an empty message still satisfies FAILED => last error set
	require.NoError(t, d.UpdateError(ctx, id, ""))
	tr, _ = d.GetByID(ctx, id)
	assert.NotEmpty(t, tr.LastError)
}

func TestDelete_CascadesChunks(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, _ := d.Insert(ctx, newHTTP("http://x/file"))
	for i := 0; i < 4; i++ {
		_, err := d.InsertChunk(ctx, chunkAt(id, i, 100))
		require.NoError(t, err)
	}

	require.NoError(t, d.Delete(ctx, id))

	chunks, err := d.GetChunksByTransfer(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRequeue(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	t.Run("keep progress", func(t *testing.T) {
		id, _ := d.Insert(ctx, newHTTP("http://x/failed"))
		_, _ = d.InsertChunk(ctx, chunkAt(id, 0, 100))
		require.NoError(t, d.UpdateProgress(ctx, id, 50, 0))
		require.NoError(t, d.UpdateError(ctx, id, "boom"))

		require.NoError(t, d.Requeue(ctx, id, false))

		tr, _ := d.GetByID(ctx, id)
		assert.Equal(t, types.StatusQueued, tr.Status)
		assert.Equal(t, int64(50), tr.DownloadedBytes)
		assert.Empty(t, tr.LastError)
		chunks, _ := d.GetChunksByTransfer(ctx, id)
		assert.Len(t, chunks, 1)
	})

	t.Run("reset progress", func(t *testing.T) {
		id, _ := d.Insert(ctx, newHTTP("http://x/done"))
		_, _ = d.InsertChunk(ctx, chunkAt(id, 0, 100))
		require.NoError(t, d.UpdateTotalBytes(ctx, id, 100))
		require.NoError(t, d.UpdateCompleted(ctx, id, time.Now()))

		require.NoError(t, d.Requeue(ctx, id, true))

		tr, _ := d.GetByID(ctx, id)
		assert.Equal(t, types.StatusQueued, tr.Status)
		assert.Zero(t, tr.DownloadedBytes)
		assert.Nil(t, tr.CompletedAt)
		chunks, _ := d.GetChunksByTransfer(ctx, id)
		assert.Empty(t, chunks)
	})
}

func TestMarkInterrupted(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	running, _ := d.Insert(ctx, newHTTP("http://x/running"))
	queued, _ := d.Insert(ctx, newHTTP("http://x/queued"))
	require.NoError(t, d.UpdateStatus(ctx, running, types.StatusDownloading))

	cid, _ := d.InsertChunk(ctx, chunkAt(running, 0, 100))
	require.NoError(t, d.UpdateChunkStatus(ctx, cid, types.ChunkDownloading))

	n, err := d.MarkInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tr, _ := d.GetByID(ctx, running)
	assert.Equal(t, types.StatusPaused, tr.Status)
	tr, _ = d.GetByID(ctx, queued)
	assert.Equal(t, types.StatusQueued, tr.Status)

	chunks, _ := d.GetChunksByTransfer(ctx, running)
	require.Len(t, chunks, 1)
	assert.Equal(t, types.ChunkPaused, chunks[0].Status)
}

func TestInstrumentedStore_Delegates(t *testing.T) {
	tel, err := telemetry.New(telemetry.Config{Enabled: false})
	require.NoError(t, err)

	store := NewInstrumented(setupTestDB(t), tel)
	ctx := context.Background()

	id, err := store.Insert(ctx, newHTTP("http://x/file"))
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, id, types.StatusPaused))

	tr, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, tr.Status)

	_, err = store.GetByID(ctx, id+100)
	assert.ErrorIs(t, err, types.ErrNotFound)

	var nilTel *telemetry.Telemetry
	plain := NewInstrumented(setupTestDB(t), nilTel)
	_, err = plain.Insert(ctx, newHTTP("http://x/other"))
	assert.NoError(t, err, "nil telemetry is a no-op")
}

func TestConcurrentChunkWrites(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	id, _ := d.Insert(ctx, newHTTP("http://x/big"))
	const n = 8
	ids := make([]int64, n)
	for i := range ids {
		ids[i], _ = d.InsertChunk(ctx, chunkAt(id, i, 1000))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for b := int64(1); b <= 50; b++ {
				assert.NoError(t, d.UpdateChunkProgress(ctx, ids[i], b*10, b))
			}
		}(i)
	}
	wg.Wait()

	chunks, err := d.GetChunksByTransfer(ctx, id)
	require.NoError(t, err)
	require.Len(t, chunks, n)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, int64(500), c.DownloadedBytes)
	}
}
