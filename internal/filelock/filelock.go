// Package filelock provides cross-process advisory locking and atomic
// writes for the JSON and JSONL files the task store and mailbox persist
// to disk.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrTimeout is returned by Acquire when the lock could not be obtained
// before the deadline.
var ErrTimeout = errors.New("filelock: timeout acquiring lock")

// initialBackoff and maxBackoff bound the retry loop in TryAcquire.
const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 500 * time.Millisecond
)

// Lock is a held advisory lock on a path. Release drops it.
type Lock struct {
	fl   *flock.Flock
	path string
}

// Release drops the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("filelock: release %s: %w", l.path, err)
	}
	return nil
}

// TryAcquire opens (creating if missing) an exclusive lock file at path,
// retrying with exponential backoff (50ms -> 500ms) until it succeeds or
// timeout elapses. It returns (nil, nil) on timeout rather than an error,
// matching the "claimable task or null" shape callers expect.
func TryAcquire(path string, timeout time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("filelock: create dir for %s: %w", path, err)
	}

	fl := flock.New(path)
	deadline := time.Now().Add(timeout)
	backoff := initialBackoff

	for {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, fmt.Errorf("filelock: try lock %s: %w", path, err)
		}
		if ok {
			return &Lock{fl: fl, path: path}, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		sleep := backoff
		if remaining := time.Until(deadline); remaining < sleep {
			sleep = remaining
		}
		time.Sleep(sleep)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Acquire is TryAcquire but returns ErrTimeout instead of (nil, nil) when
// the deadline elapses before the lock is obtained.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	lock, err := TryAcquire(path, timeout)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, ErrTimeout
	}
	return lock, nil
}

// AtomicWrite writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial write.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("filelock: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filelock: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := true
	defer func() {
		if cleanup {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("filelock: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("filelock: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filelock: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("filelock: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("filelock: rename temp file to %s: %w", path, err)
	}
	cleanup = false
	return nil
}
