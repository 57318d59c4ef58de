package camera

import (
	"context"
	"errors"
)

// Error kinds returned (wrapped) by Source implementations.
// Match them with errors.Is.
var (
	ErrNetwork = errors.New("network error")
	ErrProcess = errors.New("process error")
)

// Frame is the result of one acquisition. Exactly one of Data or Path is set:
// Data holds in-memory bytes that still need to be validated and persisted,
// Path points to a frame the source already wrote to disk.
type Frame struct {
	Data []byte
	Path string
}

// Persisted reports whether the source already wrote the frame to disk.
func (f Frame) Persisted() bool {
	return f.Path != ""
}

// Source is the high-level interface used by the rest of the application.
// It represents an abstract camera feed, regardless of how a frame is
// obtained (HTTP snapshot URL, RTSP stream through ffmpeg, local device, etc.).
type Source interface {
	// Acquire fetches a single frame. It performs exactly one attempt.
	Acquire(ctx context.Context) (Frame, error)
}
