package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// LockFileName is created in the data directory while a server owns the store
const LockFileName = ".gallery.lock"

// DataDirLock is the lock file format. Only one serving process may write
// a data directory at a time; a second one would clobber full rewrites.
type DataDirLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// ErrLocked is returned when a live process already holds the data directory
var ErrLocked = errors.New("data directory is locked by another process")

// AcquireLock claims dataDir for this process. A lock left by a process
// that no longer exists on this host is treated as stale and replaced.
// Returns the lock file path for ReleaseLock.
func AcquireLock(dataDir, version string) (string, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	lockPath := filepath.Join(dataDir, LockFileName)

	if data, err := os.ReadFile(lockPath); err == nil {
		var existing DataDirLock
		if json.Unmarshal(data, &existing) == nil && existing.PID != os.Getpid() &&
			isProcessAlive(existing.PID, existing.Hostname) {
			return "", fmt.Errorf("%w (PID %d on %s, started %s)", ErrLocked,
				existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	lock := DataDirLock{
		Holder:    "gallery-serve",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
		Version:   version,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}
	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create lock: %w", err)
	}
	return lockPath, nil
}

// ReleaseLock removes the lock file. Missing files are fine.
func ReleaseLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

// isProcessAlive checks whether pid exists on hostname. Remote hosts and
// permission errors count as alive since they cannot be verified.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
