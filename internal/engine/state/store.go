package state

import (
	"context"
	"time"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// TransferStore is the persisted table of transfers and their chunks. All
// writes are single-row and keyed by id. Unknown ids yield an error wrapping
// types.ErrNotFound.
type TransferStore interface {
	Insert(ctx context.Context, nt types.NewTransfer) (int64, error)
	GetByID(ctx context.Context, id int64) (*types.Transfer, error)
	GetAll(ctx context.Context) ([]types.Transfer, error)
	GetByStatuses(ctx context.Context, statuses ...types.Status) ([]types.Transfer, error)

	UpdateStatus(ctx context.Context, id int64, status types.Status) error
	UpdateProgress(ctx context.Context, id int64, downloaded, speed int64) error
	UpdateTotalBytes(ctx context.Context, id int64, total int64) error
	UpdateError(ctx context.Context, id int64, msg string) error
	UpdateCompleted(ctx context.Context, id int64, at time.Time) error
	UpdateMimeType(ctx context.Context, id int64, mime string) error
	Delete(ctx context.Context, id int64) error

	// Requeue resets a transfer to QUEUED. With resetProgress the byte
	// counters are zeroed and chunk rows dropped.
	Requeue(ctx context.Context, id int64, resetProgress bool) error
	// MarkInterrupted flips DOWNLOADING transfers and chunks left over from
	// a previous process to PAUSED and returns how many transfers changed.
	MarkInterrupted(ctx context.Context) (int64, error)

	InsertChunk(ctx context.Context, c types.Chunk) (int64, error)
	GetChunksByTransfer(ctx context.Context, transferID int64) ([]types.Chunk, error)
	UpdateChunkStatus(ctx context.Context, chunkID int64, status types.ChunkStatus) error
	UpdateChunkProgress(ctx context.Context, chunkID int64, downloaded, speed int64) error
	DeleteChunksByTransfer(ctx context.Context, transferID int64) error

	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context, status types.Status) (int64, error)
}
