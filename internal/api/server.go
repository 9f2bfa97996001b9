package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/romreviewer/DOWNitUP/internal/core"
	"github.com/romreviewer/DOWNitUP/internal/engine/types"
	"github.com/romreviewer/DOWNitUP/internal/telemetry"
)

// Handler serves the control API over a DownloadService.
type Handler struct {
	service   core.DownloadService
	telemetry *telemetry.Telemetry
	token     string
	port      int
}

// Config wires a Handler. An empty Token disables authentication.
type Config struct {
	Service   core.DownloadService
	Telemetry *telemetry.Telemetry
	Token     string
	Port      int
}

func NewHandler(cfg Config) *Handler {
	return &Handler{
		service:   cfg.Service,
		telemetry: cfg.Telemetry,
		token:     cfg.Token,
		port:      cfg.Port,
	}
}

// Routes builds the chi router. /health and /metrics are public.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(h.telemetry).Middleware)

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", h.telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Route("/transfers", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Add)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Get)
				r.Delete("/", h.Delete)
				r.Post("/start", h.Start)
				r.Post("/pause", h.Pause)
				r.Post("/cancel", h.Cancel)
				r.Post("/requeue", h.Requeue)
				r.Get("/events", h.Events)
			})
		})
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{"status": "ok", "port": h.port})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []types.Status
	for _, s := range r.URL.Query()["status"] {
		statuses = append(statuses, types.Status(strings.ToUpper(s)))
	}
	list, err := h.service.List(r.Context(), statuses...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []types.Transfer{}
	}
	writeJSON(w, r, http.StatusOK, list)
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	var req core.AddRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	if strings.Contains(req.Path, "..") || strings.ContainsAny(req.Name, `/\`) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	id, err := h.service.Add(r.Context(), req)
	if err != nil {
		var dup *core.DuplicateError
		if errors.As(err, &dup) {
			writeJSON(w, r, http.StatusConflict, map[string]any{"error": err.Error(), "id": dup.ID})
			return
		}
		if id == 0 {
			writeError(w, r, err)
			return
		}
		// added but not started
		telemetry.Logger(r.Context()).Warn().Err(err).Int64("id", id).Msg("transfer added without starting")
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "started", h.service.Start)
}

func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "paused", h.service.Pause)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "cancelled", h.service.Cancel)
}

func (h *Handler) Requeue(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "queued", h.service.Requeue)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "deleted", h.service.Delete)
}

func (h *Handler) control(w http.ResponseWriter, r *http.Request, result string, op func(ctx context.Context, id int64) error) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"status": result, "id": id})
}

// Events streams snapshots of one transfer as server-sent events until the
// client goes away.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream, err := h.service.Observe(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-stream:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				telemetry.Logger(r.Context()).Debug().Err(err).Msg("failed to encode event")
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\n", core.SSEEventTransfer)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		provided, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if found && subtle.ConstantTimeCompare([]byte(provided), []byte(h.token)) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrTerminal), errors.Is(err, types.ErrActive), errors.Is(err, core.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, core.ErrUnsupported):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		telemetry.Logger(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		if id := telemetry.RequestIDFrom(r.Context()); id != "" {
			msg = fmt.Sprintf("%s (request %s)", msg, id)
		}
	}
	http.Error(w, msg, code)
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		telemetry.Logger(r.Context()).Debug().Err(err).Msg("failed to encode response")
	}
}
