//go:build windows

// Package filelock serializes cache writers across processes with an
// advisory lock file.
package filelock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	bslerrors "bslanalyzer/internal/errors"
)

// Lock represents an exclusive lock held on a lock file.
// On Windows the lock file is created with O_EXCL; its existence is the lock.
type Lock struct {
	path string
	file *os.File
}

// TryAcquire attempts to take the lock at dir/name without waiting.
func TryAcquire(dir, name string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, bslerrors.New(bslerrors.CacheIO, "creating lock directory", err)
	}

	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		if os.IsExist(err) {
			msg := "cache is locked by another process"
			if content, readErr := os.ReadFile(path); readErr == nil && len(content) > 0 {
				msg = fmt.Sprintf("cache is locked by another process (PID %s)", strings.TrimSpace(string(content)))
			}
			return nil, bslerrors.New(bslerrors.CacheLocked, msg, nil).WithDetails(map[string]string{"lock": path})
		}
		return nil, bslerrors.New(bslerrors.CacheIO, "opening lock file", err)
	}

	if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return nil, bslerrors.New(bslerrors.CacheIO, "writing PID to lock file", err)
	}

	return &Lock{path: path, file: file}, nil
}

// Acquire waits until the lock at dir/name is free or ctx is done.
func Acquire(ctx context.Context, dir, name string) (*Lock, error) {
	const retry = 50 * time.Millisecond
	for {
		lock, err := TryAcquire(dir, name)
		if err == nil || !bslerrors.HasCode(err, bslerrors.CacheLocked) {
			return lock, err
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(retry):
		}
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock and removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = l.file.Close()
	_ = os.Remove(l.path)
	l.file = nil
}
