package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// ErrIO is returned (wrapped) when a snapshot cannot be written.
var ErrIO = errors.New("io error")

// Writer persists frames as {unix_seconds}.jpg under a folder.
// The folder must already exist; Writer never creates it.
type Writer struct {
	folder string
	now    func() time.Time
}

// NewWriter creates a writer for folder. If now is nil, time.Now is used.
func NewWriter(folder string, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{folder: folder, now: now}
}

// FileName returns the snapshot file name for t: seconds since epoch (UTC) + ".jpg".
func FileName(t time.Time) string {
	return strconv.FormatInt(t.UTC().Unix(), 10) + ".jpg"
}

// NextPath returns the destination path for a snapshot taken now.
func (w *Writer) NextPath() string {
	return filepath.Join(w.folder, FileName(w.now()))
}

// Write stores data at NextPath and returns the path.
// Two writes within the same second target the same file: last writer wins.
func (w *Writer) Write(data []byte) (string, error) {
	path := w.NextPath()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}
	debug.Verbose("Snapshot: wrote %d bytes to %s", len(data), path)
	return path, nil
}
