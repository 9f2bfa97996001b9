package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// SSEEventTransfer names the server-sent event carrying a transfer snapshot.
const SSEEventTransfer = "transfer"

// RemoteDownloadService implements DownloadService against a running daemon.
type RemoteDownloadService struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

var _ DownloadService = (*RemoteDownloadService)(nil)

func NewRemoteDownloadService(baseURL, token string) *RemoteDownloadService {
	return &RemoteDownloadService{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx daemon response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

func (s *RemoteDownloadService) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	s.authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer func() { _ = resp.Body.Close() }()
		// bounded so a misbehaving daemon cannot flood the client
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func (s *RemoteDownloadService) authorize(req *http.Request) {
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
}

func (s *RemoteDownloadService) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := s.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func transferPath(id int64, action string) string {
	p := "/transfers/" + strconv.FormatInt(id, 10)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (s *RemoteDownloadService) Add(ctx context.Context, req AddRequest) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := s.doJSON(ctx, http.MethodPost, "/transfers", req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (s *RemoteDownloadService) List(ctx context.Context, statuses ...types.Status) ([]types.Transfer, error) {
	path := "/transfers"
	if len(statuses) > 0 {
		q := url.Values{}
		for _, st := range statuses {
			q.Add("status", string(st))
		}
		path += "?" + q.Encode()
	}
	var out []types.Transfer
	if err := s.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RemoteDownloadService) Get(ctx context.Context, id int64) (*types.Transfer, error) {
	var out types.Transfer
	if err := s.doJSON(ctx, http.MethodGet, transferPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *RemoteDownloadService) Start(ctx context.Context, id int64) error {
	return s.doJSON(ctx, http.MethodPost, transferPath(id, "start"), nil, nil)
}

func (s *RemoteDownloadService) Pause(ctx context.Context, id int64) error {
	return s.doJSON(ctx, http.MethodPost, transferPath(id, "pause"), nil, nil)
}

func (s *RemoteDownloadService) Cancel(ctx context.Context, id int64) error {
	return s.doJSON(ctx, http.MethodPost, transferPath(id, "cancel"), nil, nil)
}

func (s *RemoteDownloadService) Delete(ctx context.Context, id int64) error {
	return s.doJSON(ctx, http.MethodDelete, transferPath(id, ""), nil, nil)
}

func (s *RemoteDownloadService) Requeue(ctx context.Context, id int64) error {
	return s.doJSON(ctx, http.MethodPost, transferPath(id, "requeue"), nil, nil)
}

// Observe follows the daemon's event stream for id, reconnecting with
// backoff until ctx ends. The channel holds only the newest snapshot.
func (s *RemoteDownloadService) Observe(ctx context.Context, id int64) (<-chan types.Transfer, error) {
	// fail fast on unknown ids instead of retrying forever
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	ch := make(chan types.Transfer, 1)
	go s.streamWithReconnect(ctx, id, ch)
	return ch, nil
}

func (s *RemoteDownloadService) streamWithReconnect(ctx context.Context, id int64, ch chan types.Transfer) {
	defer close(ch)
	backoff := time.Second
	for {
		err := s.connectSSE(ctx, id, ch)
		if ctx.Err() != nil {
			return
		}
		log.Debug().Err(err).Int64("id", id).Dur("backoff", backoff).Msg("event stream dropped")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *RemoteDownloadService) connectSSE(ctx context.Context, id int64, ch chan types.Transfer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+transferPath(id, "events"), nil)
	if err != nil {
		return err
	}
	s.authorize(req)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// the stream outlives the client's request timeout
	client := *s.Client
	client.Timeout = 0
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to connect to event stream: %s", resp.Status)
	}

	return readSSE(resp.Body, func(event, data string) {
		if event != SSEEventTransfer {
			return
		}
		var snap types.Transfer
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			log.Debug().Err(err).Msg("skipping malformed event")
			return
		}
		replaceLatest(ch, snap)
	})
}

// readSSE calls fn for every complete event in r.
func readSSE(r io.Reader, fn func(event, data string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)

	var event string
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				fn(event, strings.Join(data, "\n"))
			}
			event, data = "", nil
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

func replaceLatest(ch chan types.Transfer, snap types.Transfer) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Shutdown is a no-op; the daemon owns the engine.
func (s *RemoteDownloadService) Shutdown(context.Context) error {
	return nil
}
