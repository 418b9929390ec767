package startup

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another instance holds the lock file.
var ErrAlreadyRunning = errors.New("another gifbot instance is already running")

// AcquireInstanceLock takes an exclusive, non-blocking lock on path. Two bots
// polling the same token would steal each other's updates, so only one may
// run per lock file.
func AcquireInstanceLock(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock file %s)", ErrAlreadyRunning, path)
	}
	return lock, nil
}
