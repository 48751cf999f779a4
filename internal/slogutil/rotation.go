package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"bslanalyzer/internal/paths"
)

// RotatingWriter appends to a log file and shifts it to path.1, path.2, ...
// once a write would take it past the size limit. At most keep shifted
// files are retained.
type RotatingWriter struct {
	mu    sync.Mutex
	path  string
	limit int64
	keep  int
	f     *os.File
	size  int64
}

// OpenRotating opens path for appending. A limit of 0 never rotates; a keep
// of 0 discards the old file on rotation.
func OpenRotating(path string, limit int64, keep int) (*RotatingWriter, error) {
	w := &RotatingWriter{path: path, limit: limit, keep: keep}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	if _, err := paths.EnsureDir(filepath.Dir(w.path)); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.size = f, info.Size()
	return nil
}

// Write appends p, rotating first when p would overflow the limit. A failed
// rotation keeps writing to the current file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.limit > 0 && w.size > 0 && w.size+int64(len(p)) > w.limit {
		_ = w.rotate()
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// Size is the length of the current file.
func (w *RotatingWriter) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *RotatingWriter) rotate() error {
	if err := w.f.Close(); err != nil {
		return err
	}
	if w.keep == 0 {
		_ = os.Remove(w.path)
	} else {
		_ = os.Remove(w.shifted(w.keep))
		for i := w.keep - 1; i >= 1; i-- {
			_ = os.Rename(w.shifted(i), w.shifted(i+1))
		}
		_ = os.Rename(w.path, w.shifted(1))
	}
	return w.open()
}

func (w *RotatingWriter) shifted(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// ParseSize reads a size such as "10MB", "512KiB" or "1048576". Decimal
// suffixes are powers of 1000, binary ones powers of 1024.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// NewRotatingFileLogger opens a line-format logger on path that rotates at
// maxSize. An empty maxSize disables rotation.
func NewRotatingFileLogger(path string, level slog.Level, maxSize string, keep int) (*slog.Logger, io.Closer, error) {
	limit, err := ParseSize(maxSize)
	if err != nil {
		return nil, nil, err
	}
	w, err := OpenRotating(path, limit, keep)
	if err != nil {
		return nil, nil, err
	}
	return NewLogger(w, level), w, nil
}
