package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Runner executes an external command and waits for it to exit.
// This allows plugging in os/exec or a recording fake in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

// stderrTail bounds how much tool output ends up in an error message.
const stderrTail = 512

// Run starts the command and waits for it. A non-zero exit or a launch
// failure is returned with the tail of stderr attached.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		out := strings.TrimSpace(stderr.String())
		if len(out) > stderrTail {
			out = out[len(out)-stderrTail:]
		}
		if out != "" {
			return fmt.Errorf("%s: %w: %s", name, err, out)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ProcessConfig describes how to extract a frame from a stream.
type ProcessConfig struct {
	Command   string        // e.g. "ffmpeg"
	StreamURL string        // e.g. "rtsp://10.0.0.5:554/stream1"
	Transport string        // value for -rtsp_transport, e.g. "tcp"
	NextPath  func() string // destination path for the frame, derived from the current time
}

// ProcessSource is a Source that runs an external single-frame extraction
// tool against a stream. The tool writes the frame to disk itself, so the
// returned Frame only carries the path and never holds bytes in memory.
type ProcessSource struct {
	cfg    ProcessConfig
	runner Runner
}

// NewProcessSource creates a process-based frame source.
// If runner is nil, ExecRunner is used.
func NewProcessSource(cfg ProcessConfig, runner Runner) *ProcessSource {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &ProcessSource{cfg: cfg, runner: runner}
}

// ProcessArgs returns the fixed argument template:
// force overwrite, force transport, input URL, exactly one frame, output path.
func ProcessArgs(streamURL, transport, output string) []string {
	return []string{
		"-y",
		"-rtsp_transport", transport,
		"-i", streamURL,
		"-frames:v", "1",
		output,
	}
}

// Acquire runs the extraction tool once and waits for it.
// A non-zero exit or a launch failure is reported as ErrProcess.
func (s *ProcessSource) Acquire(ctx context.Context) (Frame, error) {
	output := s.cfg.NextPath()
	args := ProcessArgs(s.cfg.StreamURL, s.cfg.Transport, output)

	debug.Verbose("Camera: running %s %s", s.cfg.Command, strings.Join(args, " "))

	if err := s.runner.Run(ctx, s.cfg.Command, args...); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrProcess, err)
	}

	return Frame{Path: output}, nil
}
