package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// MaxFrameBytes caps the body read from a snapshot URL.
const MaxFrameBytes = 32 << 20

// HTTPSource fetches a still frame with a single GET to a snapshot URL.
type HTTPSource struct {
	url      string
	client   *http.Client
	maxBytes int64
}

// NewHTTPSource creates an HTTP frame source.
// If client is nil, http.DefaultClient is used. Timeouts come from the
// context passed to Acquire.
func NewHTTPSource(url string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: url, client: client, maxBytes: MaxFrameBytes}
}

// Acquire issues one GET and returns the response body as an in-memory frame.
// Connection failures, timeouts, non-2xx statuses and oversized bodies
// are reported as ErrNetwork.
func (s *HTTPSource) Acquire(ctx context.Context) (Frame, error) {
	debug.Verbose("Camera: GET %s", s.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: build request: %w", ErrNetwork, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: GET %s: %w", ErrNetwork, s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Frame{}, fmt.Errorf("%w: GET %s: unexpected status %s", ErrNetwork, s.url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: read body: %w", ErrNetwork, err)
	}
	if int64(len(data)) > s.maxBytes {
		return Frame{}, fmt.Errorf("%w: GET %s: body exceeds %d bytes", ErrNetwork, s.url, s.maxBytes)
	}

	debug.Verbose("Camera: received %d bytes (%s)", len(data), resp.Header.Get("Content-Type"))
	return Frame{Data: data}, nil
}
