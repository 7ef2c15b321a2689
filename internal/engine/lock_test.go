package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moltd.lock")

	lock, err := AcquireLock(path, 10*time.Minute)
	require.NoError(t, err)

	_, err = AcquireLock(path, 10*time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	lock.Release()

	lock2, err := AcquireLock(path, 10*time.Minute)
	require.NoError(t, err)
	lock2.Release()
}

func TestStaleLockReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moltd.lock")

	stale := lockInfo{PID: 99999, AcquiredAt: time.Now().Add(-11 * time.Minute)}
	data, _ := json.Marshal(stale)
	require.NoError(t, os.WriteFile(path, data, 0600))

	lock, err := AcquireLock(path, 10*time.Minute)
	require.NoError(t, err, "stale lock must be reclaimed")
	lock.Release()
}

func TestFreshLockNotReclaimed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moltd.lock")

	fresh := lockInfo{PID: 99999, AcquiredAt: time.Now().Add(-1 * time.Minute)}
	data, _ := json.Marshal(fresh)
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err := AcquireLock(path, 10*time.Minute)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestUnreadableLockFallsBackToFileAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moltd.lock")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))

	old := time.Now().Add(-11 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	lock, err := AcquireLock(path, 10*time.Minute)
	require.NoError(t, err)
	lock.Release()
}
