package types

import (
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

// Connection limits
const (
	DefaultConnectionCount = 4
	MinConnectionCount     = 1
	MaxConnectionCount     = 16
)

// Engine tuning
const (
	MinChunkSize     = 1 * MB  // Smallest range handed to a single connection
	MinChunkingSize  = 10 * MB // Files below this always use one connection
	BlockSize        = 8 * KB  // Read/write block for both strategies
	ProgressInterval = 500 * time.Millisecond
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
	ProbeTimeout                 = 30 * time.Second
)

const defaultUserAgent = "DOWNitUP/1.0 (+https://github.com/romreviewer/DOWNitUP)"

// ClampConnections bounds n to the supported connection range.
func ClampConnections(n int) int {
	if n < MinConnectionCount {
		return MinConnectionCount
	}
	if n > MaxConnectionCount {
		return MaxConnectionCount
	}
	return n
}

// RuntimeConfig holds dynamic settings that can override defaults
type RuntimeConfig struct {
	UserAgent         string
	ProxyURL          string
	RequestTimeout    time.Duration
	MaxBytesPerSecond int64
	ChunkRetries      int

	// Overrides used mostly by tests to keep fixtures small
	BlockSize        int
	ProgressInterval time.Duration
	MinChunkingSize  int64
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return defaultUserAgent
	}
	return r.UserAgent
}

func (r *RuntimeConfig) GetProxyURL() string {
	if r == nil {
		return ""
	}
	return r.ProxyURL
}

// GetRequestTimeout returns the per-request header timeout. Zero means the
// transport default.
func (r *RuntimeConfig) GetRequestTimeout() time.Duration {
	if r == nil || r.RequestTimeout <= 0 {
		return DefaultResponseHeaderTimeout
	}
	return r.RequestTimeout
}

// GetMaxBytesPerSecond returns the bandwidth cap, 0 meaning unlimited
func (r *RuntimeConfig) GetMaxBytesPerSecond() int64 {
	if r == nil || r.MaxBytesPerSecond < 0 {
		return 0
	}
	return r.MaxBytesPerSecond
}

// GetChunkRetries returns how many times a failed chunk is retried before the
// whole transfer fails.
func (r *RuntimeConfig) GetChunkRetries() int {
	if r == nil || r.ChunkRetries < 0 {
		return 0
	}
	if r.ChunkRetries > 10 {
		return 10
	}
	return r.ChunkRetries
}

func (r *RuntimeConfig) GetBlockSize() int {
	if r == nil || r.BlockSize <= 0 {
		return BlockSize
	}
	return r.BlockSize
}

func (r *RuntimeConfig) GetProgressInterval() time.Duration {
	if r == nil || r.ProgressInterval <= 0 {
		return ProgressInterval
	}
	return r.ProgressInterval
}

func (r *RuntimeConfig) GetMinChunkingSize() int64 {
	if r == nil || r.MinChunkingSize <= 0 {
		return MinChunkingSize
	}
	return r.MinChunkingSize
}
