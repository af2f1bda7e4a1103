package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const lockFileName = "patchpilot.lock"

// ErrLocked is returned when a live process already serves from a
// workspace root. Two servers sharing a root would fail each other's
// in-progress runs during startup recovery.
var ErrLocked = errors.New("workspace is locked")

// LockInfo describes the process holding a workspace root.
type LockInfo struct {
	PID       int       `json:"pid"`
	Listen    string    `json:"listen,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Lock claims root for this process, creating root if needed. A lock left
// by a process that is no longer running is reclaimed.
func Lock(root, listen string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	lockPath := filepath.Join(root, lockFileName)

	info := LockInfo{
		PID:       os.Getpid(),
		Listen:    listen,
		StartedAt: time.Now(),
	}

	err := writeLock(lockPath, &info)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create lock %s: %w", lockPath, err)
	}

	existing, readErr := ReadLock(root)
	if readErr != nil {
		return fmt.Errorf("%w: %s (could not read lock: %v)", ErrLocked, root, readErr)
	}
	if existing.PID != info.PID && isProcessAlive(existing.PID) {
		return fmt.Errorf("%w by PID %d since %s (listen %s)",
			ErrLocked, existing.PID, existing.StartedAt.Format(time.RFC3339), existing.Listen)
	}

	slog.Warn("reclaiming stale workspace lock", "root", root, "stale_pid", existing.PID)
	if err := os.Remove(lockPath); err != nil {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	if err := writeLock(lockPath, &info); err != nil {
		return fmt.Errorf("lock after stale removal: %w", err)
	}
	return nil
}

// Unlock removes the lock from root. It is idempotent.
func Unlock(root string) {
	lockPath := filepath.Join(root, lockFileName)
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to release workspace lock", "path", lockPath, "error", err)
	}
}

// ReadLock reads the lock held on root.
func ReadLock(root string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(root, lockFileName))
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &info, nil
}

// writeLock atomically creates the lock file using O_CREATE|O_EXCL.
func writeLock(path string, info *LockInfo) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	encErr := json.NewEncoder(f).Encode(info)
	closeErr := f.Close()
	if encErr != nil {
		return encErr
	}
	return closeErr
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// signal 0 checks existence without delivering anything; EPERM means
	// the process exists under another user
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
