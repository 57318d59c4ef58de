package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/logic/placeholder"
	"github.com/cjeanneret/SnapGo/internal/logic/snapshot"
)

// fakeSource returns a fixed frame or error and records calls.
type fakeSource struct {
	frame    camera.Frame
	err      error
	calls    int
	deadline bool
	panicMsg string
}

func (f *fakeSource) Acquire(ctx context.Context) (camera.Frame, error) {
	f.calls++
	_, f.deadline = ctx.Deadline()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.frame, f.err
}

// recordingWriter records written frames.
type recordingWriter struct {
	writes [][]byte
	err    error
}

func (w *recordingWriter) Write(data []byte) (string, error) {
	if w.err != nil {
		return "", w.err
	}
	w.writes = append(w.writes, data)
	return fmt.Sprintf("/snapshots/%d.jpg", len(w.writes)), nil
}

var sentinel = []byte("preview not available")

func newDetector() *placeholder.Detector {
	return placeholder.New(placeholder.Fingerprint(sentinel))
}

func TestRun_HTTPFrameAccepted(t *testing.T) {
	src := &fakeSource{frame: camera.Frame{Data: []byte("jpeg")}}
	w := &recordingWriter{}
	out := NewCycle(src, newDetector(), w, 0).Run(context.Background())

	if out.Result != Accepted {
		t.Fatalf("Result = %v, want accepted (err=%v)", out.Result, out.Err)
	}
	if out.Path != "/snapshots/1.jpg" {
		t.Errorf("Path = %q", out.Path)
	}
	if len(w.writes) != 1 || string(w.writes[0]) != "jpeg" {
		t.Errorf("writes = %q, want [jpeg]", w.writes)
	}
	if out.ID == "" {
		t.Error("outcome should carry a cycle ID")
	}
	if out.Category() != CategoryNone {
		t.Errorf("Category() = %v, want none", out.Category())
	}
}

func TestRun_PlaceholderRejectedWithoutWrite(t *testing.T) {
	src := &fakeSource{frame: camera.Frame{Data: append([]byte(nil), sentinel...)}}
	w := &recordingWriter{}
	out := NewCycle(src, newDetector(), w, 0).Run(context.Background())

	if out.Result != Rejected {
		t.Fatalf("Result = %v, want rejected", out.Result)
	}
	if out.Reason != ReasonPlaceholder {
		t.Errorf("Reason = %q, want %q", out.Reason, ReasonPlaceholder)
	}
	if out.Err != nil {
		t.Errorf("Err = %v, want nil (rejection is not an error)", out.Err)
	}
	if len(w.writes) != 0 {
		t.Errorf("expected no write, got %d", len(w.writes))
	}
}

func TestRun_PersistedFrameSkipsDetectorAndWriter(t *testing.T) {
	// A persisted frame is accepted as-is even if the detector would match everything.
	src := &fakeSource{frame: camera.Frame{Path: "/snapshots/1700000000.jpg"}}
	w := &recordingWriter{}
	out := NewCycle(src, matchAll{}, w, 0).Run(context.Background())

	if out.Result != Accepted {
		t.Fatalf("Result = %v, want accepted", out.Result)
	}
	if out.Path != "/snapshots/1700000000.jpg" {
		t.Errorf("Path = %q", out.Path)
	}
	if len(w.writes) != 0 {
		t.Errorf("writer must not be used for persisted frames, got %d writes", len(w.writes))
	}
}

type matchAll struct{}

func (matchAll) IsPlaceholder([]byte) bool { return true }

func TestRun_FailuresBecomeFailedOutcome(t *testing.T) {
	cases := []struct {
		name     string
		src      *fakeSource
		writer   *recordingWriter
		category Category
	}{
		{
			name:     "network",
			src:      &fakeSource{err: fmt.Errorf("%w: connection refused", camera.ErrNetwork)},
			writer:   &recordingWriter{},
			category: CategoryNetwork,
		},
		{
			name:     "process",
			src:      &fakeSource{err: fmt.Errorf("%w: exit status 1", camera.ErrProcess)},
			writer:   &recordingWriter{},
			category: CategoryProcess,
		},
		{
			name:     "io",
			src:      &fakeSource{frame: camera.Frame{Data: []byte("jpeg")}},
			writer:   &recordingWriter{err: fmt.Errorf("%w: disk full", snapshot.ErrIO)},
			category: CategoryIO,
		},
		{
			name:     "unclassified",
			src:      &fakeSource{err: errors.New("boom")},
			writer:   &recordingWriter{},
			category: CategoryUnknown,
		},
		{
			name:     "panic",
			src:      &fakeSource{panicMsg: "driver exploded"},
			writer:   &recordingWriter{},
			category: CategoryUnknown,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := NewCycle(tc.src, newDetector(), tc.writer, 0).Run(context.Background())

			if out.Result != Failed {
				t.Fatalf("Result = %v, want failed", out.Result)
			}
			if out.Err == nil {
				t.Fatal("Err = nil, want cause")
			}
			if out.Path != "" {
				t.Errorf("Path = %q, want empty", out.Path)
			}
			if out.Category() != tc.category {
				t.Errorf("Category() = %v, want %v", out.Category(), tc.category)
			}
			if tc.src.calls != 1 {
				t.Errorf("source called %d times, want exactly 1 (no retry)", tc.src.calls)
			}
		})
	}
}

func TestRun_TimeoutAppliedToAttempt(t *testing.T) {
	src := &fakeSource{frame: camera.Frame{Data: []byte("x")}}
	NewCycle(src, newDetector(), &recordingWriter{}, time.Second).Run(context.Background())
	if !src.deadline {
		t.Error("expected a deadline on the acquisition context")
	}

	src = &fakeSource{frame: camera.Frame{Data: []byte("x")}}
	NewCycle(src, newDetector(), &recordingWriter{}, 0).Run(context.Background())
	if src.deadline {
		t.Error("zero timeout should not set a deadline")
	}
}

func TestRun_EndToEndWithSnapshotWriter(t *testing.T) {
	dir := t.TempDir()
	now := time.Unix(1700000000, 0)
	w := snapshot.NewWriter(dir, func() time.Time { return now })
	data := []byte{0xFF, 0xD8, 0x42, 0xFF, 0xD9}

	out := NewCycle(&fakeSource{frame: camera.Frame{Data: data}}, placeholder.Default(), w, 0).Run(context.Background())
	if out.Result != Accepted {
		t.Fatalf("Result = %v (err=%v)", out.Result, out.Err)
	}
	want := filepath.Join(dir, "1700000000.jpg")
	if out.Path != want {
		t.Errorf("Path = %q, want %q", out.Path, want)
	}
	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(data) {
		t.Errorf("file content mismatch")
	}
}

func TestRun_EndToEndSentinelWritesNothing(t *testing.T) {
	dir := t.TempDir()
	w := snapshot.NewWriter(dir, nil)

	out := NewCycle(&fakeSource{frame: camera.Frame{Data: sentinel}}, newDetector(), w, 0).Run(context.Background())
	if out.Result != Rejected {
		t.Fatalf("Result = %v, want rejected", out.Result)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty folder, got %d files", len(entries))
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryNone},
		{"network", fmt.Errorf("wrap: %w", camera.ErrNetwork), CategoryNetwork},
		{"network_wrapping_deadline", fmt.Errorf("%w: %w", camera.ErrNetwork, context.DeadlineExceeded), CategoryNetwork},
		{"process", camera.ErrProcess, CategoryProcess},
		{"io", snapshot.ErrIO, CategoryIO},
		{"canceled", context.Canceled, CategoryCanceled},
		{"other", errors.New("x"), CategoryUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Errorf("Classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResultAndCategoryStrings(t *testing.T) {
	if Accepted.String() != "accepted" || Rejected.String() != "rejected" || Failed.String() != "failed" {
		t.Error("unexpected Result strings")
	}
	if CategoryNetwork.String() != "network" || CategoryIO.String() != "io" || CategoryProcess.String() != "process" {
		t.Error("unexpected Category strings")
	}
}
