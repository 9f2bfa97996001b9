package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

const transferColumns = `id, name, url, kind, status, total_bytes, downloaded_bytes, speed, save_path,
	mime_type, info_hash, connection_count, use_chunking, created_at, completed_at, last_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(s rowScanner) (*types.Transfer, error) {
	var t types.Transfer
	var kind, status string
	var useChunking int
	var createdAt int64
	var completedAt sql.NullInt64
	var mimeType, infoHash, lastError sql.NullString

	err := s.Scan(
		&t.ID, &t.Name, &t.URL, &kind, &status, &t.TotalBytes, &t.DownloadedBytes, &t.Speed, &t.SavePath,
		&mimeType, &infoHash, &t.ConnectionCount, &useChunking, &createdAt, &completedAt, &lastError,
	)
	if err != nil {
		return nil, err
	}

	t.Kind = types.Kind(kind)
	t.Status = types.Status(status)
	t.UseChunking = useChunking != 0
	t.CreatedAt = time.UnixMilli(createdAt)
	if completedAt.Valid {
		ts := time.UnixMilli(completedAt.Int64)
		t.CompletedAt = &ts
	}
	t.MimeType = mimeType.String
	t.InfoHash = infoHash.String
	t.LastError = lastError.String
	return &t, nil
}

// Insert creates a QUEUED transfer and returns its id.
func (d *DB) Insert(ctx context.Context, nt types.NewTransfer) (int64, error) {
	if nt.Kind == "" {
		nt.Kind = types.KindHTTP
	}
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO transfers (name, url, kind, status, total_bytes, save_path, info_hash, connection_count, use_chunking, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nt.Name, nt.URL, string(nt.Kind), string(types.StatusQueued), nt.TotalBytes, nt.SavePath,
		nullString(nt.InfoHash), types.ClampConnections(nt.ConnectionCount), boolToInt(nt.UseChunking),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transfer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read transfer id: %w", err)
	}
	return id, nil
}

// GetByID loads one transfer without its chunks.
func (d *DB) GetByID(ctx context.Context, id int64) (*types.Transfer, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+transferColumns+" FROM transfers WHERE id = ?", id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &types.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to query transfer: %w", err)
	}
	return t, nil
}

// GetAll returns every transfer, newest first.
func (d *DB) GetAll(ctx context.Context) ([]types.Transfer, error) {
	return d.queryTransfers(ctx, "SELECT "+transferColumns+" FROM transfers ORDER BY created_at DESC, id DESC")
}

// GetByStatuses returns transfers whose status is any of statuses.
func (d *DB) GetByStatuses(ctx context.Context, statuses ...types.Status) ([]types.Transfer, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return d.queryTransfers(ctx,
		"SELECT "+transferColumns+" FROM transfers WHERE status IN ("+placeholders+") ORDER BY created_at DESC, id DESC",
		args...)
}

func (d *DB) queryTransfers(ctx context.Context, query string, args ...any) ([]types.Transfer, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer closeRows(rows)

	var out []types.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transfers: %w", err)
	}
	return out, nil
}

func (d *DB) UpdateStatus(ctx context.Context, id int64, status types.Status) error {
	return d.execOne(ctx, id, "update status",
		"UPDATE transfers SET status = ? WHERE id = ?", string(status), id)
}

// UpdateProgress writes the byte counter and last observed speed.
func (d *DB) UpdateProgress(ctx context.Context, id int64, downloaded, speed int64) error {
	return d.execOne(ctx, id, "update progress",
		"UPDATE transfers SET downloaded_bytes = ?, speed = ? WHERE id = ?", downloaded, speed, id)
}

func (d *DB) UpdateTotalBytes(ctx context.Context, id int64, total int64) error {
	return d.execOne(ctx, id, "update total bytes",
		"UPDATE transfers SET total_bytes = ? WHERE id = ?", total, id)
}

// UpdateError marks the transfer FAILED with msg as its last error.
func (d *DB) UpdateError(ctx context.Context, id int64, msg string) error {
	if msg == "" {
		msg = "unknown error"
	}
	return d.execOne(ctx, id, "update error",
		"UPDATE transfers SET status = ?, last_error = ?, speed = 0 WHERE id = ?",
		string(types.StatusFailed), msg, id)
}

// UpdateCompleted marks the transfer COMPLETED at the given time. The byte
// counter is set to the total; when the total was never learned, the bytes
// written become the total.
func (d *DB) UpdateCompleted(ctx context.Context, id int64, at time.Time) error {
	return d.execOne(ctx, id, "update completed", `
		UPDATE transfers SET
			status = ?,
			total_bytes = CASE WHEN total_bytes > 0 THEN total_bytes ELSE downloaded_bytes END,
			downloaded_bytes = CASE WHEN total_bytes > 0 THEN total_bytes ELSE downloaded_bytes END,
			speed = 0,
			completed_at = ?,
			last_error = NULL
		WHERE id = ?`,
		string(types.StatusCompleted), at.UnixMilli(), id)
}

func (d *DB) UpdateMimeType(ctx context.Context, id int64, mime string) error {
	return d.execOne(ctx, id, "update mime type",
		"UPDATE transfers SET mime_type = ? WHERE id = ?", nullString(mime), id)
}

// Delete removes the transfer row. Chunk rows go with it via the foreign key.
func (d *DB) Delete(ctx context.Context, id int64) error {
	return d.execOne(ctx, id, "delete transfer", "DELETE FROM transfers WHERE id = ?", id)
}

func (d *DB) Requeue(ctx context.Context, id int64, resetProgress bool) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		query := "UPDATE transfers SET status = ?, speed = 0, last_error = NULL, completed_at = NULL WHERE id = ?"
		if resetProgress {
			query = "UPDATE transfers SET status = ?, speed = 0, last_error = NULL, completed_at = NULL, downloaded_bytes = 0 WHERE id = ?"
		}
		res, err := tx.ExecContext(ctx, query, string(types.StatusQueued), id)
		if err != nil {
			return fmt.Errorf("failed to requeue transfer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &types.NotFoundError{ID: id}
		}
		if resetProgress {
			if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE transfer_id = ?", id); err != nil {
				return fmt.Errorf("failed to delete chunks: %w", err)
			}
		}
		return nil
	})
}

func (d *DB) MarkInterrupted(ctx context.Context) (int64, error) {
	var changed int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "UPDATE transfers SET status = ?, speed = 0 WHERE status = ?",
			string(types.StatusPaused), string(types.StatusDownloading))
		if err != nil {
			return fmt.Errorf("failed to mark transfers: %w", err)
		}
		changed, _ = res.RowsAffected()

		if _, err := tx.ExecContext(ctx, "UPDATE chunks SET status = ?, speed = 0 WHERE status = ?",
			string(types.ChunkPaused), string(types.ChunkDownloading)); err != nil {
			return fmt.Errorf("failed to mark chunks: %w", err)
		}
		return nil
	})
	return changed, err
}

// Count returns the number of transfer rows.
func (d *DB) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transfers").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return n, nil
}

func (d *DB) CountByStatus(ctx context.Context, status types.Status) (int64, error) {
	var n int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transfers WHERE status = ?", string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transfers: %w", err)
	}
	return n, nil
}

// execOne runs a single-row write and reports a NotFoundError when no row
// matched.
func (d *DB) execOne(ctx context.Context, id int64, op, query string, args ...any) error {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if rows == 0 {
		return &types.NotFoundError{ID: id}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
