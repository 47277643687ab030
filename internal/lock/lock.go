// Package lock provides an advisory exclusive lock per (browser kind,
// port), so two invocations cannot race on the same profile directory
// and relay rule.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrLocked is returned when another invocation holds the lock.
var ErrLocked = errors.New("another go-wsl-devkit invocation is already running for this browser and port")

// Lock is a held advisory lock.
type Lock struct {
	path string
	f    *os.File
}

// Path returns the lock file for kind and port under dir.
func Path(dir, kind string, port int) string {
	return filepath.Join(dir, "go-wsl-devkit-"+kind+"-"+strconv.Itoa(port)+".lock")
}

// Acquire takes the lock at path without blocking.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, err
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	// Informational only; the lock is the flock, not the content.
	_ = f.Truncate(0)
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")

	return &Lock{path: path, f: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock. The file is left in place; removing it would
// let a waiter and a newcomer lock different inodes.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
