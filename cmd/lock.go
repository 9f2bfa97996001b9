package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/romreviewer/DOWNitUP/internal/config"
)

var instanceLock *flock.Flock

// AcquireLock takes the single-daemon lock. It reports false, without an
// error, when another daemon already holds it.
func AcquireLock() (bool, error) {
	dir := config.GetRuntimeDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create runtime dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, "downitup.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to lock %s: %w", lock.Path(), err)
	}
	if locked {
		instanceLock = lock
	}
	return locked, nil
}

// ReleaseLock drops the lock taken by AcquireLock.
func ReleaseLock() error {
	if instanceLock == nil {
		return nil
	}
	err := instanceLock.Unlock()
	instanceLock = nil
	return err
}
