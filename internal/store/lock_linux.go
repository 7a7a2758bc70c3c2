// SPDX-License-Identifier: MPL-2.0

//go:build linux

package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// errFlockUnavailable exists for parity with lock_other.go; on Linux
// acquireFileLock never returns it.
var errFlockUnavailable = errors.New("flock not available on this platform")

// fileLock is a blocking exclusive flock on a per-artifact lock file. It
// serializes builds of one artifact across hit processes. The kernel drops
// the lock when the descriptor closes, including on a crash, so an orphaned
// lock file is harmless.
type fileLock struct {
	file *os.File
}

func acquireFileLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &fileLock{file: f}, nil
}

// Release unlocks and closes the lock file. It is safe to call more than once.
func (l *fileLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		slog.Debug("flock unlock failed", "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Debug("lock file close failed", "error", err)
	}
	l.file = nil
}
