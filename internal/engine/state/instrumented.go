package state

import (
	"context"
	"time"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
	"github.com/romreviewer/DOWNitUP/internal/telemetry"
)

// InstrumentedStore wraps a TransferStore with telemetry.
type InstrumentedStore struct {
	next      TransferStore
	telemetry *telemetry.Telemetry
}

var _ TransferStore = (*InstrumentedStore)(nil)

// NewInstrumented returns store wrapped with db operation metrics and spans.
func NewInstrumented(store TransferStore, tel *telemetry.Telemetry) *InstrumentedStore {
	return &InstrumentedStore{next: store, telemetry: tel}
}

func (s *InstrumentedStore) Insert(ctx context.Context, nt types.NewTransfer) (int64, error) {
	var id int64
	err := s.telemetry.InstrumentDBOperation(ctx, "insert", func(ctx context.Context) error {
		var err error
		id, err = s.next.Insert(ctx, nt)
		return err
	})
	return id, err
}

func (s *InstrumentedStore) GetByID(ctx context.Context, id int64) (*types.Transfer, error) {
	var t *types.Transfer
	err := s.telemetry.InstrumentDBOperation(ctx, "get_by_id", func(ctx context.Context) error {
		var err error
		t, err = s.next.GetByID(ctx, id)
		return err
	})
	return t, err
}

func (s *InstrumentedStore) GetAll(ctx context.Context) ([]types.Transfer, error) {
	var out []types.Transfer
	err := s.telemetry.InstrumentDBOperation(ctx, "get_all", func(ctx context.Context) error {
		var err error
		out, err = s.next.GetAll(ctx)
		return err
	})
	return out, err
}

func (s *InstrumentedStore) GetByStatuses(ctx context.Context, statuses ...types.Status) ([]types.Transfer, error) {
	var out []types.Transfer
	err := s.telemetry.InstrumentDBOperation(ctx, "get_by_statuses", func(ctx context.Context) error {
		var err error
		out, err = s.next.GetByStatuses(ctx, statuses...)
		return err
	})
	return out, err
}

func (s *InstrumentedStore) UpdateStatus(ctx context.Context, id int64, status types.Status) error {
	return s.telemetry.InstrumentDBOperation(ctx, "update_status", func(ctx context.Context) error {
		return s.next.UpdateStatus(ctx, id, status)
	})
}

func (s *InstrumentedStore) UpdateProgress(ctx context.Context, id int64, downloaded, speed int64) error {
	return s.telemetry.InstrumentDBOperation(ctx, "update_progress", func(ctx context.Context) error {
		return s.next.UpdateProgress(ctx, id, downloaded, speed)
	})
}

func (s *InstrumentedStore) UpdateTotalBytes(ctx context.Context, id int64, total int64) error {
	return s.telemetry.InstrumentDBOperation(ctx, "update_total_bytes", func(ctx context.Context) error {
		return s.next.UpdateTotalBytes(ctx, id, total)
	})
}

func (s *InstrumentedStore) UpdateError(ctx context.Context, id int64, msg string) error {
	return s.telemetry.InstrumentDBOperation(ctx, "update_error", func(ctx context.Context) error {
		return s.next.UpdateError(ctx, id, msg)
	})
}

func (s *InstrumentedStore) UpdateCompleted(ctx context.Context, id int64, at time.Time) error {
	return s.telemetry.InstrumentDBOperation(ctx, "update_completed", func(ctx context.Context) error {
		return s.next.UpdateCompleted(ctx, id, at)
	})
}

func (s *InstrumentedStore) UpdateMimeType(ctx context.Context, id int64, mime string) error {
	return s.telemetry.InstrumentDBOperation(ctx, "update_mime_type", func(ctx context.Context) error {
		return s.next.UpdateMimeType(ctx, id, mime)
	})
}

func (s *InstrumentedStore) Delete(ctx context.Context, id int64) error {
	return s.telemetry.InstrumentDBOperation(ctx, "delete", func(ctx context.Context) error {
		return s.next.Delete(ctx, id)
	})
}

func (s *InstrumentedStore) Requeue(ctx context.Context, id int64, resetProgress bool) error {
	return s.telemetry.InstrumentDBOperation(ctx, "requeue", func(ctx context.Context) error {
		return s.next.Requeue(ctx, id, resetProgress)
	})
}

func (s *InstrumentedStore) MarkInterrupted(ctx context.Context) (int64, error) {
	var n int64
	err := s.telemetry.InstrumentDBOperation(ctx, "mark_interrupted", func(ctx context.Context) error {
		var err error
		n, err = s.next.MarkInterrupted(ctx)
		return err
	})
	return n, err
}

func (s *InstrumentedStore) InsertChunk(ctx context.Context, c types.Chunk) (int64, error) {
	var id int64
	err := s.telemetry.InstrumentDBOperation(ctx, "insert_chunk", func(ctx context.Context) error {
		var err error
		id, err = s.next.InsertChunk(ctx, c)
		return err
	})
	return id, err
}

func (s *InstrumentedStore) GetChunksByTransfer(ctx context.Context, transferID int64) ([]types.Chunk, error) {
	var out []types.Chunk
	err := s.telemetry.InstrumentDBOperation(ctx, "get_chunks", func(ctx context.Context) error {
		var err error
		out, err = s.next.GetChunksByTransfer(ctx, transferID)
		return err
	})
	return out, err
}

func (s *InstrumentedStore) UpdateChunkStatus(ctx context.Context, chunkID int64, status types.ChunkStatus) error {
	return s.telemetry.InstrumentDBOperation(ctx, "update_chunk_status", func(ctx context.Context) error {
		return s.next.UpdateChunkStatus(ctx, chunkID, status)
	})
}

func (s *InstrumentedStore) UpdateChunkProgress(ctx context.Context, chunkID int64, downloaded, speed int64) error {
	return s.telemetry.InstrumentDBOperation(ctx, "update_chunk_progress", func(ctx context.Context) error {
		return s.next.UpdateChunkProgress(ctx, chunkID, downloaded, speed)
	})
}

func (s *InstrumentedStore) DeleteChunksByTransfer(ctx context.Context, transferID int64) error {
	return s.telemetry.InstrumentDBOperation(ctx, "delete_chunks", func(ctx context.Context) error {
		return s.next.DeleteChunksByTransfer(ctx, transferID)
	})
}

func (s *InstrumentedStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.telemetry.InstrumentDBOperation(ctx, "count", func(ctx context.Context) error {
		var err error
		n, err = s.next.Count(ctx)
		return err
	})
	return n, err
}

func (s *InstrumentedStore) CountByStatus(ctx context.Context, status types.Status) (int64, error) {
	var n int64
	err := s.telemetry.InstrumentDBOperation(ctx, "count_by_status", func(ctx context.Context) error {
		var err error
		n, err = s.next.CountByStatus(ctx, status)
		return err
	})
	return n, err
}
