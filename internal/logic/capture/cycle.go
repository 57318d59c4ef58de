package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/logic/snapshot"
)

// ReasonPlaceholder is the Rejected reason for a "preview not available" frame.
const ReasonPlaceholder = "placeholder frame"

// Result is the kind of outcome of one cycle.
type Result int

const (
	Accepted Result = iota
	Rejected
	Failed
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome describes one fetch-validate-persist attempt.
type Outcome struct {
	ID       string        // unique per cycle, for log correlation
	Result   Result
	Path     string        // Accepted: where the frame lives
	Reason   string        // Rejected: why the frame was skipped
	Err      error         // Failed: the cause
	Started  time.Time
	Duration time.Duration
}

// Category returns the failure category, or CategoryNone when the cycle did not fail.
func (o Outcome) Category() Category {
	if o.Result != Failed {
		return CategoryNone
	}
	return Classify(o.Err)
}

// Detector recognizes frames that must be skipped.
type Detector interface {
	IsPlaceholder(data []byte) bool
}

// Writer persists in-memory frames.
type Writer interface {
	Write(data []byte) (string, error)
}

// Cycle runs one acquisition attempt: fetch, validate, persist.
// No retries: a failed attempt is left to the next scheduled cycle.
type Cycle struct {
	source   camera.Source
	detector Detector
	writer   Writer
	timeout  time.Duration
	now      func() time.Time
}

// NewCycle wires a cycle. timeout bounds each attempt; 0 disables it.
func NewCycle(source camera.Source, detector Detector, writer Writer, timeout time.Duration) *Cycle {
	return &Cycle{
		source:   source,
		detector: detector,
		writer:   writer,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Run performs exactly one attempt. It never returns an error or panics:
// every failure is folded into a Failed outcome.
func (c *Cycle) Run(ctx context.Context) (out Outcome) {
	out = Outcome{ID: uuid.NewString(), Started: c.now()}
	defer func() {
		if r := recover(); r != nil {
			out.Result = Failed
			out.Path = ""
			out.Err = fmt.Errorf("cycle panicked: %v", r)
		}
		out.Duration = c.now().Sub(out.Started)
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	frame, err := c.source.Acquire(ctx)
	if err != nil {
		out.Result = Failed
		out.Err = err
		return out
	}

	// Frames written by the source itself (e.g. ffmpeg) cannot be inspected
	// before they hit disk, so only in-memory frames are fingerprinted.
	if frame.Persisted() {
		out.Result = Accepted
		out.Path = frame.Path
		return out
	}

	if c.detector != nil && c.detector.IsPlaceholder(frame.Data) {
		out.Result = Rejected
		out.Reason = ReasonPlaceholder
		return out
	}

	path, err := c.writer.Write(frame.Data)
	if err != nil {
		out.Result = Failed
		out.Err = err
		return out
	}

	debug.Verbose("Cycle %s: %d bytes persisted", out.ID, len(frame.Data))
	out.Result = Accepted
	out.Path = path
	return out
}

// Category classifies cycle failures for logs and metric labels.
type Category int

const (
	CategoryNone Category = iota
	CategoryNetwork
	CategoryProcess
	CategoryIO
	CategoryCanceled
	CategoryUnknown
)

// String returns the label used in logs and metrics.
func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryNetwork:
		return "network"
	case CategoryProcess:
		return "process"
	case CategoryIO:
		return "io"
	case CategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Classify maps a cycle error to its category.
// Source and writer kinds take priority over context errors they may wrap.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryNone
	case errors.Is(err, camera.ErrNetwork):
		return CategoryNetwork
	case errors.Is(err, camera.ErrProcess):
		return CategoryProcess
	case errors.Is(err, snapshot.ErrIO):
		return CategoryIO
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	default:
		return CategoryUnknown
	}
}
