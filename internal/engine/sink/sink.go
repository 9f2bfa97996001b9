package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// Sink is a seekable byte sink over one file. Callers must Close it on every
// exit path.
type Sink interface {
	io.Writer
	// WriteRange writes p[off:off+n] at the current position.
	WriteRange(p []byte, off, n int) (int, error)
	SeekTo(pos int64) error
	Size() (int64, error)
	Truncate(size int64) error
	Close() error
	// Delete closes the handle and removes the file.
	Delete() error
	Path() string
}

// Opener creates sinks and removes files.
type Opener interface {
	Create(path string) (Sink, error)
	Remove(path string) error
}

// FS is the filesystem-backed Opener.
type FS struct {
	FileMode os.FileMode
	DirMode  os.FileMode
}

var _ Opener = (*FS)(nil)

// NewFS returns an Opener with 0644 files and 0755 directories.
func NewFS() *FS {
	return &FS{FileMode: 0o644, DirMode: 0o755}
}

// Create opens path for writing, creating it and its parents if absent.
// Existing content is kept so a transfer can resume into it.
func (fs *FS) Create(path string) (Sink, error) {
	if path == "" {
		return nil, &types.IoError{Op: "create", Path: path, Err: errors.New("empty path")}
	}
	if err := os.MkdirAll(filepath.Dir(path), fs.DirMode); err != nil {
		return nil, &types.IoError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, fs.FileMode)
	if err != nil {
		return nil, &types.IoError{Op: "open", Path: path, Err: err}
	}
	return &fileSink{f: f, path: path}, nil
}

// Remove deletes path. A missing file is not an error.
func (fs *FS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &types.IoError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

type fileSink struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	closed bool
}

func (s *fileSink) Path() string { return s.path }

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, &types.IoError{Op: "write", Path: s.path, Err: os.ErrClosed}
	}
	n, err := s.f.Write(p)
	if err != nil {
		return n, &types.IoError{Op: "write", Path: s.path, Err: err}
	}
	return n, nil
}

func (s *fileSink) WriteRange(p []byte, off, n int) (int, error) {
	if off < 0 || n < 0 || off+n > len(p) {
		return 0, &types.IoError{Op: "write", Path: s.path, Err: fmt.Errorf("range [%d:%d] out of bounds for %d bytes", off, off+n, len(p))}
	}
	return s.Write(p[off : off+n])
}

func (s *fileSink) SeekTo(pos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.IoError{Op: "seek", Path: s.path, Err: os.ErrClosed}
	}
	if _, err := s.f.Seek(pos, io.SeekStart); err != nil {
		return &types.IoError{Op: "seek", Path: s.path, Err: err}
	}
	return nil
}

func (s *fileSink) Size() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, &types.IoError{Op: "stat", Path: s.path, Err: os.ErrClosed}
	}
	info, err := s.f.Stat()
	if err != nil {
		return 0, &types.IoError{Op: "stat", Path: s.path, Err: err}
	}
	return info.Size(), nil
}

func (s *fileSink) Truncate(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.IoError{Op: "truncate", Path: s.path, Err: os.ErrClosed}
	}
	if err := s.f.Truncate(size); err != nil {
		return &types.IoError{Op: "truncate", Path: s.path, Err: err}
	}
	return nil
}

// Close is idempotent.
func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.f.Close(); err != nil {
		return &types.IoError{Op: "close", Path: s.path, Err: err}
	}
	return nil
}

func (s *fileSink) Delete() error {
	_ = s.Close()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &types.IoError{Op: "remove", Path: s.path, Err: err}
	}
	return nil
}
