package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ServerOptions shapes how a RangeServer misbehaves.
type ServerOptions struct {
	// NoRanges omits Accept-Ranges and always answers 200 with the full body.
	NoRanges bool
	// IgnoreRange advertises ranges but still answers 200 with the full body.
	IgnoreRange bool
	// FailHead answers HEAD with 500.
	FailHead bool
	// FailAfter, when positive, cuts the connection after that many bytes of
	// any GET whose range starts at FailOffset.
	FailAfter  int64
	FailOffset int64
	// Throttle sleeps between 16 KiB writes.
	Throttle    time.Duration
	ContentType string
	Filename    string
}

// RequestLog is one request seen by a RangeServer.
type RequestLog struct {
	Method string
	Range  string
}

// RangeServer serves a fixed payload with HTTP range support.
type RangeServer struct {
	*httptest.Server
	Data []byte
	opts ServerOptions

	mu       sync.Mutex
	requests []RequestLog
}

// Payload returns size deterministic, non-repeating-looking bytes.
func Payload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*7 + i/251) % 256)
	}
	return data
}

// NewRangeServer starts a server for data. Close it when done.
func NewRangeServer(data []byte, opts ServerOptions) *RangeServer {
	s := &RangeServer{Data: data, opts: opts}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// FileURL returns a URL for the payload under name.
func (s *RangeServer) FileURL(name string) string {
	return s.Server.URL + "/" + name
}

// Update changes the server's behaviour for subsequent requests.
func (s *RangeServer) Update(fn func(*ServerOptions)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.opts)
}

// Requests returns a copy of the request log.
func (s *RangeServer) Requests() []RequestLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RequestLog(nil), s.requests...)
}

// CountMethod counts logged requests with the given method.
func (s *RangeServer) CountMethod(method string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

// RangedGets counts GETs that carried a Range header.
func (s *RangeServer) RangedGets() int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == http.MethodGet && r.Range != "" {
			n++
		}
	}
	return n
}

func (s *RangeServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, RequestLog{Method: r.Method, Range: r.Header.Get("Range")})
	opts := s.opts
	s.mu.Unlock()

	total := int64(len(s.Data))
	if opts.ContentType != "" {
		w.Header().Set("Content-Type", opts.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if opts.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, opts.Filename))
	}
	if !opts.NoRanges {
		w.Header().Set("Accept-Ranges", "bytes")
	}

	if r.Method == http.MethodHead {
		if opts.FailHead {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	start, end := int64(0), total-1
	status := http.StatusOK
	if rng := r.Header.Get("Range"); rng != "" && !opts.NoRanges && !opts.IgnoreRange {
		var ok bool
		start, end, ok = parseRange(rng, total)
		if !ok {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", total))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, total))
	}

	length := end - start + 1
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	limit := length
	if opts.FailAfter > 0 && start == opts.FailOffset && opts.FailAfter < length {
		limit = opts.FailAfter
	}

	const block = 16 * 1024
	flusher, _ := w.(http.Flusher)
	for sent := int64(0); sent < limit; {
		n := int64(block)
		if limit-sent < n {
			n = limit - sent
		}
		if _, err := w.Write(s.Data[start+sent : start+sent+n]); err != nil {
			return
		}
		sent += n
		if flusher != nil {
			flusher.Flush()
		}
		if opts.Throttle > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(opts.Throttle):
			}
		}
	}
	// Returning before Content-Length bytes makes the server drop the
	// connection, which the client sees as an unexpected EOF.
}

func parseRange(h string, total int64) (int64, int64, bool) {
	spec, ok := strings.CutPrefix(h, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, false
	}
	from, to, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil || start < 0 || start >= total {
		return 0, 0, false
	}
	end := total - 1
	if to != "" {
		e, err := strconv.ParseInt(to, 10, 64)
		if err != nil || e < start {
			return 0, 0, false
		}
		if e < end {
			end = e
		}
	}
	return start, end, true
}
