package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

type failingReader struct {
	data []byte
	err  error
}

func (f *failingReader) Read(p []byte) (int, error) {
	if len(f.data) == 0 {
		return 0, f.err
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func TestPump_CopiesInBlocks(t *testing.T) {
	src := bytes.Repeat([]byte("abcdefgh"), 1000)
	var dst bytes.Buffer
	var first []byte
	var counted int64

	p := &Pump{
		BlockSize:    100,
		OnFirstBlock: func(b []byte) { first = append([]byte(nil), b...) },
		OnBytes:      func(n int64) { counted += n },
	}
	n, err := p.Run(context.Background(), bytes.NewReader(src), &dst, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), n)
	assert.Equal(t, src, dst.Bytes())
	assert.Len(t, first, 100)
	assert.Equal(t, int64(len(src)), counted)
}

func TestPump_StopsAtMax(t *testing.T) {
	var dst bytes.Buffer
	p := &Pump{BlockSize: 7}
	n, err := p.Run(context.Background(), bytes.NewReader(make([]byte, 100)), &dst, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), n)
	assert.Equal(t, 30, dst.Len())
}

func TestPump_ProgressIsThrottled(t *testing.T) {
	calls := 0
	p := &Pump{
		BlockSize:  1,
		Interval:   time.Hour,
		OnProgress: func(written, speed int64) error { calls++; return nil },
	}
	_, err := p.Run(context.Background(), bytes.NewReader(make([]byte, 500)), io.Discard, 0)
	require.NoError(t, err)
	assert.Zero(t, calls, "no update before the interval elapses")
}

func TestPump_ProgressErrorAborts(t *testing.T) {
	boom := errors.New("store down")
	p := &Pump{
		BlockSize:  10,
		Interval:   time.Nanosecond,
		OnProgress: func(written, speed int64) error { return boom },
	}
	_, err := p.Run(context.Background(), bytes.NewReader(make([]byte, 100)), io.Discard, 0)
	assert.ErrorIs(t, err, boom)
}

func TestPump_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Pump{}
	n, err := p.Run(ctx, bytes.NewReader(make([]byte, 100)), io.Discard, 0)
	assert.True(t, types.IsCancellation(err))
	assert.Zero(t, n)
}

func TestPump_ReadErrorIsTransport(t *testing.T) {
	p := &Pump{URL: "http://x/f", BlockSize: 4}
	r := &failingReader{data: []byte("12345678"), err: errors.New("connection reset by peer")}

	n, err := p.Run(context.Background(), r, io.Discard, 0)
	assert.Equal(t, int64(8), n)
	var te *types.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "http://x/f", te.URL)
}

func TestPump_Limiter(t *testing.T) {
	p := &Pump{BlockSize: 1024, Limiter: NewLimiter(64*1024, 1024)}
	start := time.Now()
	n, err := p.Run(context.Background(), bytes.NewReader(make([]byte, 96*1024)), io.Discard, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(96*1024), n)
	// burst covers the first 64 KiB, the rest waits about half a second
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestNewLimiter_Unlimited(t *testing.T) {
	assert.Nil(t, NewLimiter(0, 1024))
	l := NewLimiter(10, 1024)
	require.NotNil(t, l)
	assert.Equal(t, 1024, l.Burst())
}

func TestSniffMIME(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}
	assert.Equal(t, "image/png", SniffMIME(png, "application/octet-stream"))
	assert.Equal(t, "text/csv", SniffMIME([]byte("a,b,c\n"), "text/csv; charset=utf-8"))
}

func TestMeter(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewMeter(500*time.Millisecond, 0)
	m.now = func() time.Time { return now }
	m.last = now

	_, ok := m.Due(100)
	assert.False(t, ok)

	now = now.Add(500 * time.Millisecond)
	speed, ok := m.Due(1000)
	assert.True(t, ok)
	assert.Equal(t, int64(2000), speed)

	assert.Equal(t, int64(0), m.Flush(1000), "zero elapsed gives zero speed")
}
