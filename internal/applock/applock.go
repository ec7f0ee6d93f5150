// Package applock holds a per-working-directory instance lock so two
// bridges never share one service identity.
package applock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const lockFileName = ".gtkbridge.lock"

// ErrBusy means another process already holds the lock for this
// working directory.
var ErrBusy = errors.New("working directory locked by another instance")

// Lock is a held instance lock. Release it on shutdown; the kernel
// drops it anyway when the process exits.
type Lock struct {
	file *os.File
}

// Acquire takes an exclusive non-blocking lock on the lock file inside
// workDir, creating it if needed, and records the holder's pid in it.
func Acquire(workDir string) (*Lock, error) {
	path := filepath.Join(workDir, lockFileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	if err := file.Truncate(0); err == nil {
		fmt.Fprintf(file, "%d\n", os.Getpid())
	}
	return &Lock{file: file}, nil
}

// Release drops the lock and closes the file.
func (l *Lock) Release() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		l.file.Close()
		return fmt.Errorf("failed to unlock: %w", err)
	}
	return l.file.Close()
}
