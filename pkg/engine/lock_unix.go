//go:build unix

package engine

import (
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

type fileLock struct {
	f *os.File
}

// tryLockFile takes an exclusive non-blocking flock on path, creating the
// file when needed. ok is false when another process holds the lock.
func tryLockFile(path string) (*fileLock, bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to open gate lock file %s", path)
	}

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err == nil {
		return &fileLock{f: f}, true, nil
	}

	_ = f.Close()
	if errors.Is(err, unix.EWOULDBLOCK) {
		return nil, false, nil
	}
	return nil, false, errors.Wrapf(err, "failed to lock %s", path)
}

func (l *fileLock) release() {
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	_ = l.f.Close()
}
