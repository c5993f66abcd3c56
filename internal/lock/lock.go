// Package lock keeps two runs of the same task from overlapping.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("another run holds the lock")

// Acquire takes an exclusive advisory lock on path without blocking.
// The returned release func unlocks it and is safe to call more than once.
func Acquire(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}
	return func() { _ = fl.Unlock() }, nil
}

// Path returns the lock file for task inside dir.
func Path(dir, task string) string {
	return filepath.Join(dir, task+".lock")
}
