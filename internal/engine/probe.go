package engine

import (
	"context"
	"errors"
	"mime"
	"path"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vfaronov/httpheader"

	"github.com/romreviewer/DOWNitUP/internal/engine/transport"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// errRangeUnsupported makes the coordinator fall back to one connection. It
// never reaches a caller.
var errRangeUnsupported = errors.New("origin does not support range requests")

// IsRangeUnsupported reports whether err is the single-connection fallback
// signal.
func IsRangeUnsupported(err error) bool {
	return errors.Is(err, errRangeUnsupported)
}

// ProbeResult is what a HEAD request tells us about a resource.
type ProbeResult struct {
	ContentLength int64
	AcceptRanges  string
	Filename      string
	ContentType   string
}

// SupportsRanges is true when the origin advertises a range unit other than
// "none".
func (r *ProbeResult) SupportsRanges() bool {
	v := strings.TrimSpace(strings.ToLower(r.AcceptRanges))
	return v != "" && v != "none"
}

// CheckRanges returns errRangeUnsupported unless the origin accepts ranges.
func CheckRanges(r *ProbeResult) error {
	if r == nil || !r.SupportsRanges() {
		return errRangeUnsupported
	}
	return nil
}

// Probe issues a HEAD request for rawURL.
func Probe(ctx context.Context, tr transport.Transport, rawURL string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, types.ProbeTimeout)
	defer cancel()

	resp, err := tr.Head(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	res := &ProbeResult{
		ContentLength: resp.ContentLength,
		AcceptRanges:  resp.Header.Get("Accept-Ranges"),
		ContentType:   resp.Header.Get("Content-Type"),
	}
	if res.ContentLength <= 0 {
		if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			res.ContentLength = n
		}
	}
	if res.ContentLength < 0 {
		res.ContentLength = 0
	}

	if _, name, _ := httpheader.ContentDisposition(resp.Header); name != "" {
		res.Filename = path.Base(strings.ReplaceAll(name, "\\", "/"))
	}

	log.Debug().
		Str("url", rawURL).
		Int64("content_length", res.ContentLength).
		Str("accept_ranges", res.AcceptRanges).
		Str("filename", res.Filename).
		Msg("probe finished")
	return res, nil
}

// MediaType strips parameters from a Content-Type value.
func MediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mt
}
