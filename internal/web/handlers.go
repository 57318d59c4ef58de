package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cjeanneret/SnapGo/internal/logic/schedule"
)

// Scheduler is the part of the capture loop exposed over HTTP.
type Scheduler interface {
	Status() schedule.Status
	Trigger() bool
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Scheduler   Scheduler
	Metrics     http.Handler
	heartbeat   time.Duration
}

// NewHandlers creates handlers with the given dependencies.
// If scheduler is nil, /status and /capture return 503 Service Unavailable.
// If metrics is nil, /metrics is not registered.
func NewHandlers(broadcaster *StatusBroadcaster, scheduler Scheduler, metrics http.Handler) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Scheduler:   scheduler,
		Metrics:     metrics,
		heartbeat:   30 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// HandleHealthz is a liveness probe.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

// HandleStatus returns the scheduler status as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		http.Error(w, "scheduler not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}

// HandleCapture handles POST /capture to run the next cycle now.
// A second request while one is pending gets 409 Conflict.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		http.Error(w, "scheduler not configured", http.StatusServiceUnavailable)
		return
	}
	if !h.Scheduler.Trigger() {
		http.Error(w, "capture already pending", http.StatusConflict)
		return
	}
	if h.Broadcaster != nil {
		h.Broadcaster.BroadcastMsg("Manual capture requested")
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
