package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/logic/schedule"
	"github.com/cjeanneret/SnapGo/internal/metrics"
)

// fakeScheduler coalesces triggers like the real scheduler.
type fakeScheduler struct {
	mu      sync.Mutex
	status  schedule.Status
	pending bool
}

func (f *fakeScheduler) Status() schedule.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeScheduler) Trigger() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending {
		return false
	}
	f.pending = true
	return true
}

func newTestServer(t *testing.T, sched Scheduler) (*httptest.Server, *StatusBroadcaster) {
	t.Helper()
	b := NewStatusBroadcaster()
	m, err := metrics.New("http://cam.local/snapshot.jpg")
	if err != nil {
		t.Fatalf("metrics.New: %v", err)
	}
	srv := httptest.NewServer(NewServer("", NewHandlers(b, sched, m.Handler())).Mux())
	t.Cleanup(srv.Close)
	return srv, b
}

func TestHandleHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	NewHandlers(NewStatusBroadcaster(), nil, nil).HandleHealthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "ok" {
		t.Errorf("got %d %q, want 200 ok", w.Code, w.Body.String())
	}
}

func TestHandleStatus_JSON(t *testing.T) {
	sched := &fakeScheduler{status: schedule.Status{
		State:    "idle",
		Cycles:   4,
		Accepted: 3,
		Failed:   1,
		Last:     &schedule.LastResult{ID: "c-4", Result: "failed", Category: "network"},
	}}
	w := httptest.NewRecorder()
	NewHandlers(NewStatusBroadcaster(), sched, nil).HandleStatus(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got schedule.Status
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Cycles != 4 || got.Accepted != 3 || got.Last == nil || got.Last.Category != "network" {
		t.Errorf("decoded status = %+v", got)
	}
}

func TestHandlers_NilScheduler(t *testing.T) {
	h := NewHandlers(NewStatusBroadcaster(), nil, nil)
	for name, fn := range map[string]http.HandlerFunc{
		"status":  h.HandleStatus,
		"capture": h.HandleCapture,
	} {
		w := httptest.NewRecorder()
		fn(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", name, w.Code)
		}
	}
}

func TestHandleCapture_QueuedThenConflict(t *testing.T) {
	b := NewStatusBroadcaster()
	ch, unsub := b.Subscribe()
	defer unsub()
	h := NewHandlers(b, &fakeScheduler{}, nil)

	w1 := httptest.NewRecorder()
	h.HandleCapture(w1, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w1.Code != http.StatusAccepted {
		t.Fatalf("first: status = %d, want 202", w1.Code)
	}
	var body map[string]string
	json.NewDecoder(w1.Body).Decode(&body)
	if body["status"] != "queued" {
		t.Errorf("body = %v", body)
	}
	if evt := recv(t, ch); !strings.Contains(evt.Msg, "Manual capture") {
		t.Errorf("broadcast Msg = %q", evt.Msg)
	}

	w2 := httptest.NewRecorder()
	h.HandleCapture(w2, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w2.Code != http.StatusConflict {
		t.Errorf("second: status = %d, want 409", w2.Code)
	}
}

func TestMux_Routes(t *testing.T) {
	srv, _ := newTestServer(t, &fakeScheduler{status: schedule.Status{State: "running"}})

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/status", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/capture", http.StatusAccepted},
		{http.MethodGet, "/capture", http.StatusMethodNotAllowed},
		{http.MethodPost, "/status", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+tc.path, func(t *testing.T) {
			req, _ := http.NewRequest(tc.method, srv.URL+tc.path, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestMux_MetricsExposeCounter(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	found := false
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), metrics.SnapshotCount+"{") {
			found = true
		}
	}
	if !found {
		t.Errorf("%s not exposed on /metrics", metrics.SnapshotCount)
	}
}

func TestHandleStatusStream_DeliversOutcome(t *testing.T) {
	srv, b := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/status/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	// subscription is in place once the connected comment arrives
	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("first line = %q, %v", line, err)
	}

	b.Report(capture.Outcome{ID: "c-9", Result: capture.Accepted, Path: "/data/1.jpg"})

	for {
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var evt StatusEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
		t.Fatalf("unmarshal %q: %v", line, err)
	}
	if evt.Cycle != "c-9" || evt.Result != "accepted" {
		t.Errorf("event = %+v", evt)
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", NewHandlers(NewStatusBroadcaster(), nil, nil))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_PortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	s := NewServer(busy.Addr().String(), NewHandlers(NewStatusBroadcaster(), nil, nil))
	if ln, err := s.Listen(); err == nil {
		ln.Close()
		t.Fatal("Listen on a taken port should fail")
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Run on a taken port should return an error")
		}
	case <-time.After(time.Second):
		t.Fatal("Run should fail fast when the port is taken")
	}
}
