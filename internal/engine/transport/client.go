package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// Transport issues the HEAD and GET requests the engine needs.
type Transport interface {
	Head(ctx context.Context, rawURL string) (*Response, error)
	Get(ctx context.Context, rawURL string, header http.Header) (*Response, error)
}

// Response is a status, headers and a streamed body. Head responses carry
// an empty body. The caller closes Body.
type Response struct {
	StatusCode    int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// Client is the net/http backed Transport.
type Client struct {
	client    *http.Client
	userAgent string
}

var _ Transport = (*Client)(nil)

// New builds a Client from the runtime settings. A nil cfg uses defaults.
func New(cfg *types.RuntimeConfig) *Client {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   types.DialTimeout,
			KeepAlive: types.KeepAliveDuration,
		}).DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   types.MaxConnectionCount,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.GetRequestTimeout(),
		// byte counts must match Content-Length
		DisableCompression: true,
	}
	if raw := cfg.GetProxyURL(); raw != "" {
		if proxyURL, err := url.Parse(raw); err == nil {
			base.Proxy = http.ProxyURL(proxyURL)
		} else {
			log.Warn().Err(err).Str("proxy", raw).Msg("ignoring invalid proxy url")
		}
	}

	return NewWithClient(&http.Client{Transport: otelhttp.NewTransport(base)}, cfg.GetUserAgent())
}

// NewWithClient wraps an existing http.Client, as used by tests.
func NewWithClient(c *http.Client, userAgent string) *Client {
	if userAgent == "" {
		userAgent = (*types.RuntimeConfig)(nil).GetUserAgent()
	}
	return &Client{client: c, userAgent: userAgent}
}

// Head issues a HEAD request. Non-2xx statuses are errors.
func (c *Client) Head(ctx context.Context, rawURL string) (*Response, error) {
	resp, err := c.do(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          http.NoBody,
	}, nil
}

// Get issues a streaming GET with the extra headers. Non-2xx statuses are
// errors; on success the caller owns Body.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, header)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, &types.TransportError{Op: method, URL: rawURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, types.NewTransportError(method, rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, &types.TransportError{Op: method, URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
