//go:build !unix

package engine

import (
	"os"

	"github.com/cockroachdb/errors"
)

type fileLock struct {
	f *os.File
}

// tryLockFile creates path exclusively; an existing file means another
// process holds the gate
func tryLockFile(path string) (*fileLock, bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err == nil {
		return &fileLock{f: f}, true, nil
	}
	if errors.Is(err, os.ErrExist) {
		return nil, false, nil
	}
	return nil, false, errors.Wrapf(err, "failed to create gate lock file %s", path)
}

func (l *fileLock) release() {
	name := l.f.Name()
	_ = l.f.Close()
	_ = os.Remove(name)
}
