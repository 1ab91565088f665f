package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
)

// DataLock manages a file-based lock for a data directory, so two
// storewatch processes never interleave snapshot rotation under the same
// root.
type DataLock struct {
	lock *flock.Flock
	path string
}

// NewDataLock creates a new lock for the given data directory.
func NewDataLock(dataDir string) (*DataLock, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve data dir: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &DataLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock acquires the data-dir lock, waiting if necessary.
// It will print a message if it has to wait.
func (l *DataLock) Lock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		fmt.Fprintf(os.Stderr, "Another storewatch process is writing to this data directory, waiting for it to finish...\n")
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// Unlock releases the data-dir lock.
func (l *DataLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		// Suppress error if the lock file doesn't exist, as it means we
		// don't hold the lock.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}
