// Package daemon guards the per-workspace data directory: a
// cross-process file lock so two `serve` instances never race on the
// same on-disk caches, and a pidfile so tooling can find the live
// server.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	lsperrors "github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/errors"
)

// DataDirName is the per-workspace data directory holding the lock,
// pidfile, and definitions cache.
const DataDirName = ".ruby-fast-lsp"

// DataDir returns the data directory for a workspace root.
func DataDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, DataDirName)
}

// InstanceLock is the single-instance lock over one workspace's data
// directory. Works on every platform flock supports.
type InstanceLock struct {
	dir    string
	fl     *flock.Flock
	locked bool
}

// NewInstanceLock builds a lock for dir (the workspace data directory).
func NewInstanceLock(dir string) *InstanceLock {
	return &InstanceLock{
		dir: dir,
		fl:  flock.New(filepath.Join(dir, "server.lock")),
	}
}

// TryAcquire attempts the lock without blocking. A held lock returns a
// retryable LockContention error naming the holder when the pidfile
// identifies one.
func (l *InstanceLock) TryAcquire() error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return lsperrors.IoError("create data directory "+l.dir, err)
	}

	ok, err := l.fl.TryLock()
	if err != nil {
		return lsperrors.IoError("acquire instance lock", err)
	}
	if !ok {
		msg := "another ruby-fast-lsp instance holds " + l.dir
		if pid, pidErr := ReadPidfile(l.dir); pidErr == nil {
			msg = fmt.Sprintf("%s (pid %d)", msg, pid)
		}
		return lsperrors.LockContentionError(msg, nil)
	}

	l.locked = true
	return WritePidfile(l.dir)
}

// Release unlocks and removes the pidfile. Safe to call when never
// acquired.
func (l *InstanceLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	_ = os.Remove(pidfilePath(l.dir))
	return l.fl.Unlock()
}

// Locked reports whether this process holds the lock.
func (l *InstanceLock) Locked() bool {
	return l.locked
}

func pidfilePath(dir string) string {
	return filepath.Join(dir, "server.pid")
}

// WritePidfile records the current pid in dir.
func WritePidfile(dir string) error {
	return os.WriteFile(pidfilePath(dir), []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// ReadPidfile returns the pid recorded in dir.
func ReadPidfile(dir string) (int, error) {
	data, err := os.ReadFile(pidfilePath(dir))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pidfile: %w", err)
	}
	return pid, nil
}
