package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "downitup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestOpen_CreatesDirAndTables(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state", "downitup.db")

	d, err := Open(dbPath)
	require.NoError(t, err)
	defer d.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file should exist")
	assert.Equal(t, dbPath, d.Path())

	for _, table := range []string{"transfers", "chunks"} {
		_, err := d.db.Exec("SELECT * FROM " + table + " LIMIT 1")
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestOpen_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "downitup.db")

	d, err := Open(dbPath)
	require.NoError(t, err)
	_, err = d.Insert(context.Background(), newHTTP("http://example.com/a"))
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d2, err := Open(dbPath)
	require.NoError(t, err)
	defer d2.Close()

	n, err := d2.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWithTx_Commit(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	err := d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO transfers (url, kind, status, save_path, created_at) VALUES (?, 'HTTP', 'QUEUED', ?, 0)`,
			"http://tx.com/1", "/tmp/1")
		return err
	})
	require.NoError(t, err)

	var url string
	require.NoError(t, d.db.QueryRow("SELECT url FROM transfers WHERE save_path = ?", "/tmp/1").Scan(&url))
	assert.Equal(t, "http://tx.com/1", url)
}

func TestWithTx_Rollback(t *testing.T) {
	d := setupTestDB(t)
	ctx := context.Background()

	expectedErr := fmt.Errorf("intentional error")
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO transfers (url, kind, status, save_path, created_at) VALUES (?, 'HTTP', 'QUEUED', ?, 0)`,
			"http://tx.com/2", "/tmp/2")
		if err != nil {
			return err
		}
		return expectedErr
	})
	assert.Equal(t, expectedErr, err)

	var count int
	require.NoError(t, d.db.QueryRow("SELECT count(*) FROM transfers WHERE save_path = ?", "/tmp/2").Scan(&count))
	assert.Zero(t, count, "transaction should have rolled back")
}

func BenchmarkUpdateChunkProgress(b *testing.B) {
	d, err := Open(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	ctx := context.Background()
	id, err := d.Insert(ctx, newHTTP("https://bench.example.com/file.zip"))
	if err != nil {
		b.Fatalf("Insert failed: %v", err)
	}

	const numChunks = 16
	chunkIDs := make([]int64, numChunks)
	for i := 0; i < numChunks; i++ {
		chunkIDs[i], err = d.InsertChunk(ctx, chunkAt(id, i, 1000))
		if err != nil {
			b.Fatalf("InsertChunk failed: %v", err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := d.UpdateChunkProgress(ctx, chunkIDs[i%numChunks], int64(i%1000), 100); err != nil {
			b.Fatalf("UpdateChunkProgress failed: %v", err)
		}
		if _, err := d.GetChunksByTransfer(ctx, id); err != nil {
			b.Fatalf("GetChunksByTransfer failed: %v", err)
		}
	}
}
