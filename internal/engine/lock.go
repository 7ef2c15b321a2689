package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

// ErrLocked means another live instance holds the lock.
var ErrLocked = errors.New("engine: another instance is running")

type lockInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is the single-instance guard. A lock older than the stale window
// is assumed abandoned (crashed process) and reclaimed.
type Lock struct {
	path string
}

// AcquireLock takes the lock file or fails with ErrLocked.
func AcquireLock(path string, staleAfter time.Duration) (*Lock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			info := lockInfo{PID: os.Getpid(), AcquiredAt: time.Now()}
			data, _ := json.Marshal(info)
			if _, werr := f.Write(data); werr != nil {
				f.Close()
				os.Remove(path)
				return nil, werr
			}
			f.Close()
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}

		stale, serr := lockIsStale(path, staleAfter)
		if serr != nil {
			// Racing with the holder's release; treat as held.
			return nil, ErrLocked
		}
		if !stale {
			return nil, ErrLocked
		}
		log.Printf("[engine] reclaiming stale lock %s", path)
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			return nil, fmt.Errorf("engine: remove stale lock: %w", rerr)
		}
	}
	return nil, ErrLocked
}

// Release removes the lock file. Safe to call once per acquisition.
func (l *Lock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		log.Printf("[engine] release lock: %v", err)
	}
}

func lockIsStale(path string, staleAfter time.Duration) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil || info.AcquiredAt.IsZero() {
		// Unreadable contents; fall back to the file's own age.
		fi, serr := os.Stat(path)
		if serr != nil {
			return false, serr
		}
		return time.Since(fi.ModTime()) > staleAfter, nil
	}
	return time.Since(info.AcquiredAt) > staleAfter, nil
}
