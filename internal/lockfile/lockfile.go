// Package lockfile guards a file-backed resource, such as an SQLite receipt
// database, against use by more than one process.
//
// Locks are flock(2) locks, so the kernel drops them when the holder exits,
// however it exits.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Suffix is appended to the guarded path to name its lock file.
const Suffix = ".lock"

// Lock is a held lock on a resource.
type Lock struct {
	file *os.File
	path string
}

// PathFor returns the lock file path guarding resource.
func PathFor(resource string) string {
	return resource + Suffix
}

// Acquire takes an exclusive lock on resource without blocking. The lock
// file records the holder's pid so a conflicting process can report it.
func Acquire(resource string) (*Lock, error) {
	lockPath := PathFor(resource)
	slog.Debug("lockfile.Acquire: locking", "lock_path", lockPath)

	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory for %s: %w", lockPath, err)
	}
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		holder := describeHolder(lockPath)
		slog.Error("lockfile.Acquire: resource in use by another process", "lock_path", lockPath, "holder", holder, "error", err)
		return nil, &LockError{LockPath: lockPath, Holder: holder, Cause: err}
	}

	// Truncate only once the lock is ours so a holder's pid is never erased.
	if err := file.Truncate(0); err == nil {
		_, err = file.WriteAt([]byte("pid="+strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	if err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to record pid in %s: %w", lockPath, err)
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile.Acquire: failed to sync lock file", "lock_path", lockPath, "error", err)
	}

	slog.Debug("lockfile.Acquire: lock held", "lock_path", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before unlocking so a waiting process never locks a file we then delete.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: failed to remove lock file", "lock_path", l.path, "error", err)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("lockfile.Release: failed to unlock", "lock_path", l.path, "error", err)
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to close lock file %s: %w", l.path, err)
	}
	slog.Debug("lockfile.Release: lock released", "lock_path", l.path)
	return nil
}

// LockError reports a resource already locked by another process.
type LockError struct {
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := "another sleepjournal process holds " + e.LockPath
	if e.Holder != "" {
		msg += " (" + e.Holder + ")"
	}
	return msg + "; remove the lock file only if that process is gone"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder summarizes the pid recorded in a lock file.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return ""
	}
	pid := parsePID(string(data))
	if pid <= 0 {
		return ""
	}
	if processRunning(pid) {
		return fmt.Sprintf("pid %d, running", pid)
	}
	return fmt.Sprintf("pid %d, not running", pid)
}

// parsePID extracts N from a "pid=N" line, or returns 0.
func parsePID(content string) int {
	_, rest, ok := strings.Cut(content, "pid=")
	if !ok {
		return 0
	}
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	pid, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return pid
}

// processRunning probes pid with signal 0.
func processRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
