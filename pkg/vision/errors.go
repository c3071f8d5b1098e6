package vision

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/layout"
)

var (
	// ErrNotOpen is returned by operations on a closed file
	ErrNotOpen = errors.New("file is not open")
	// ErrAlreadyOpen is returned when opening a file twice
	ErrAlreadyOpen = errors.New("file is already open")
	// ErrReadOnly is returned by writes and locking reads on a file opened for input
	ErrReadOnly = errors.New("file is opened for input only")
	// ErrKeyIndex is returned for a key index outside the file's keys
	ErrKeyIndex = layout.ErrKeyIndex
	// ErrFileNotFound is returned when opening a path that does not exist
	ErrFileNotFound = errors.New("file not found")
	// ErrDefinitionNotFound is returned when no layout is registered for a file
	ErrDefinitionNotFound = errors.New("file definition not found")
	// ErrLocked matches any FileError caused by record or file lock contention
	ErrLocked = errors.New("locked")
)

// FileError reports an engine status that is neither success nor a miss
type FileError struct {
	Status engine.Status
	Op     string
	Path   string
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: status %d (%s)", e.Op, e.Path, int(e.Status), e.Status)
}

// Locked reports whether the status is a lock conflict
func (e *FileError) Locked() bool {
	return e.Status.IsLock()
}

// Is lets errors.Is(err, ErrLocked) match lock conflicts
func (e *FileError) Is(target error) bool {
	return target == ErrLocked && e.Locked()
}

func newFileError(op, path string, status engine.Status) error {
	return &FileError{Status: status, Op: op, Path: path}
}
