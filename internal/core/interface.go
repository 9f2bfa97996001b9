package core

import (
	"context"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// AddRequest describes a transfer to add. Zero values fall back to settings.
type AddRequest struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	// Path is the destination directory.
	Path        string `json:"path,omitempty"`
	Connections int    `json:"connections,omitempty"`
	// Chunking overrides Network.UseChunkingDefault when set.
	Chunking *bool `json:"chunking,omitempty"`
	Start    bool  `json:"start,omitempty"`
}

// DownloadService is the control surface shared by the in-process engine and
// the daemon client, so the CLI works the same against either.
type DownloadService interface {
	Add(ctx context.Context, req AddRequest) (int64, error)
	List(ctx context.Context, statuses ...types.Status) ([]types.Transfer, error)
	Get(ctx context.Context, id int64) (*types.Transfer, error)

	Start(ctx context.Context, id int64) error
	Pause(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	Requeue(ctx context.Context, id int64) error

	// Observe yields the current snapshot of id, then every update, until
	// ctx ends.
	Observe(ctx context.Context, id int64) (<-chan types.Transfer, error)

	Shutdown(ctx context.Context) error
}
