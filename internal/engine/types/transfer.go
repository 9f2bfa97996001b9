package types

import "time"

// Kind selects the engine that owns a transfer.
type Kind string

const (
	KindHTTP    Kind = "HTTP"
	KindTorrent Kind = "TORRENT"
)

// Status is the lifecycle state of a Transfer.
type Status string

const (
	StatusQueued      Status = "QUEUED"
	StatusDownloading Status = "DOWNLOADING"
	StatusPaused      Status = "PAUSED"
	StatusCompleted   Status = "COMPLETED"
	StatusFailed      Status = "FAILED"
	StatusCancelled   Status = "CANCELLED"
)

// Terminal reports whether a transfer in this state can no longer be started
// without an explicit requeue.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusDownloading, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ChunkStatus is the lifecycle state of a single byte range.
type ChunkStatus string

const (
	ChunkQueued      ChunkStatus = "QUEUED"
	ChunkDownloading ChunkStatus = "DOWNLOADING"
	ChunkCompleted   ChunkStatus = "COMPLETED"
	ChunkFailed      ChunkStatus = "FAILED"
	ChunkPaused      ChunkStatus = "PAUSED"
)

// Transfer is one user-requested download.
type Transfer struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	Kind            Kind       `json:"kind"`
	Status          Status     `json:"status"`
	TotalBytes      int64      `json:"total_bytes"`
	DownloadedBytes int64      `json:"downloaded_bytes"`
	Speed           int64      `json:"speed"` // bytes/sec, last observed
	SavePath        string     `json:"save_path"`
	MimeType        string     `json:"mime_type,omitempty"`
	InfoHash        string     `json:"info_hash,omitempty"`
	ConnectionCount int        `json:"connection_count"`
	UseChunking     bool       `json:"use_chunking"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	LastError       string     `json:"last_error,omitempty"`

	Chunks []Chunk `json:"chunks,omitempty"`
}

// Progress returns the completed fraction in [0, 1].
func (t *Transfer) Progress() float64 {
	if t.TotalBytes <= 0 {
		return 0
	}
	p := float64(t.DownloadedBytes) / float64(t.TotalBytes)
	if p > 1 {
		return 1
	}
	return p
}

func (t *Transfer) IsActive() bool {
	return t.Status == StatusDownloading || t.Status == StatusQueued
}

// Chunk is one contiguous, inclusive byte range of a chunked transfer.
type Chunk struct {
	ID              int64       `json:"id"`
	TransferID      int64       `json:"transfer_id"`
	Index           int         `json:"index"`
	StartByte       int64       `json:"start_byte"`
	EndByte         int64       `json:"end_byte"`
	DownloadedBytes int64       `json:"downloaded_bytes"`
	Status          ChunkStatus `json:"status"`
	Speed           int64       `json:"speed"`
}

// Size is the number of bytes in the range.
func (c *Chunk) Size() int64 {
	return c.EndByte - c.StartByte + 1
}

func (c *Chunk) Remaining() int64 {
	return c.Size() - c.DownloadedBytes
}

// ResumeOffset is the absolute file position the next byte belongs at.
func (c *Chunk) ResumeOffset() int64 {
	return c.StartByte + c.DownloadedBytes
}

// NewTransfer carries the caller-supplied fields of a transfer to be inserted.
type NewTransfer struct {
	Name            string
	URL             string
	Kind            Kind
	SavePath        string
	ConnectionCount int
	UseChunking     bool
	InfoHash        string
	TotalBytes      int64
}
