package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	lockPath, err := AcquireLock(dir, "test")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, LockFileName), lockPath)

	var lock DataDirLock
	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &lock))
	assert.Equal(t, os.Getpid(), lock.PID)
	assert.Equal(t, "test", lock.Version)

	// re-acquiring from the same process is allowed
	_, err = AcquireLock(dir, "test")
	require.NoError(t, err)

	require.NoError(t, ReleaseLock(lockPath))
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, ReleaseLock(lockPath), "releasing twice is harmless")
	assert.NoError(t, ReleaseLock(""))
}

func TestAcquireLock_HeldByLiveProcess(t *testing.T) {
	dir := t.TempDir()
	hostname, err := os.Hostname()
	require.NoError(t, err)

	// the parent of the test binary is alive for the duration of the test
	held := DataDirLock{Holder: "gallery-serve", PID: os.Getppid(), Hostname: hostname, StartedAt: time.Now()}
	data, err := json.Marshal(held)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), data, 0644))

	_, err = AcquireLock(dir, "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))
}

func TestAcquireLock_StaleLockReplaced(t *testing.T) {
	dir := t.TempDir()
	hostname, err := os.Hostname()
	require.NoError(t, err)

	stale := DataDirLock{Holder: "gallery-serve", PID: 1 << 22, Hostname: hostname, StartedAt: time.Now()}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), data, 0644))

	_, err = AcquireLock(dir, "test")
	assert.NoError(t, err)
}
