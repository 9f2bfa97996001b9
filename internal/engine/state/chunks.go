package state

import (
	"context"
	"fmt"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

func (d *DB) InsertChunk(ctx context.Context, c types.Chunk) (int64, error) {
	if c.Status == "" {
		c.Status = types.ChunkQueued
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO chunks (transfer_id, chunk_index, start_byte, end_byte, downloaded_bytes, status, speed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.TransferID, c.Index, c.StartByte, c.EndByte, c.DownloadedBytes, string(c.Status), c.Speed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunk: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read chunk id: %w", err)
	}
	return id, nil
}

// GetChunksByTransfer returns the chunks of a transfer ordered by index.
func (d *DB) GetChunksByTransfer(ctx context.Context, transferID int64) ([]types.Chunk, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, transfer_id, chunk_index, start_byte, end_byte, downloaded_bytes, status, speed
		FROM chunks WHERE transfer_id = ? ORDER BY chunk_index`, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer closeRows(rows)

	var out []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var status string
		if err := rows.Scan(&c.ID, &c.TransferID, &c.Index, &c.StartByte, &c.EndByte, &c.DownloadedBytes, &status, &c.Speed); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.Status = types.ChunkStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return out, nil
}

func (d *DB) UpdateChunkStatus(ctx context.Context, chunkID int64, status types.ChunkStatus) error {
	query := "UPDATE chunks SET status = ? WHERE id = ?"
	if status != types.ChunkDownloading {
		query = "UPDATE chunks SET status = ?, speed = 0 WHERE id = ?"
	}
	return d.execChunk(ctx, chunkID, query, string(status), chunkID)
}

func (d *DB) UpdateChunkProgress(ctx context.Context, chunkID int64, downloaded, speed int64) error {
	return d.execChunk(ctx, chunkID, "UPDATE chunks SET downloaded_bytes = ?, speed = ? WHERE id = ?", downloaded, speed, chunkID)
}

// DeleteChunksByTransfer drops every chunk row of a transfer. Deleting none
// is not an error.
func (d *DB) DeleteChunksByTransfer(ctx context.Context, transferID int64) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM chunks WHERE transfer_id = ?", transferID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (d *DB) execChunk(ctx context.Context, chunkID int64, query string, args ...any) error {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chunk %d: %w", chunkID, types.ErrNotFound)
	}
	return nil
}
