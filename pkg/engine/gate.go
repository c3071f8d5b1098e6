package engine

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultGateTimeout bounds how long a call waits for the gate
const DefaultGateTimeout = time.Second

// ErrGateTimeout is returned when the gate cannot be acquired in time.
// The call is not retried.
var ErrGateTimeout = errors.New("timed out waiting for exclusive engine access")

const (
	minBackoff = time.Millisecond
	maxBackoff = 25 * time.Millisecond
)

// Gate serializes engine calls. Inside one process a mutex is enough; when
// a lock path is set, an advisory file lock also excludes other processes
// sharing the same engine files.
type Gate struct {
	mu       sync.Mutex
	lockPath string
	timeout  time.Duration
}

// NewGate creates a gate. An empty lockPath disables the cross-process
// lock; a non-positive timeout uses DefaultGateTimeout.
func NewGate(lockPath string, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = DefaultGateTimeout
	}
	return &Gate{lockPath: lockPath, timeout: timeout}
}

// Do runs fn while holding the gate
func (g *Gate) Do(fn func()) error {
	deadline := time.Now().Add(g.timeout)

	if err := poll(deadline, func() (bool, error) { return g.mu.TryLock(), nil }); err != nil {
		return err
	}
	defer g.mu.Unlock()

	if g.lockPath != "" {
		var held *fileLock
		err := poll(deadline, func() (bool, error) {
			l, ok, err := tryLockFile(g.lockPath)
			held = l
			return ok, err
		})
		if err != nil {
			return err
		}
		defer held.release()
	}

	fn()
	return nil
}

// poll retries try with exponential backoff (1ms to 25ms) until it
// succeeds, fails hard, or the deadline passes
func poll(deadline time.Time, try func() (bool, error)) error {
	backoff := minBackoff
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrGateTimeout
		}
		time.Sleep(min(backoff, remaining))
		if backoff < maxBackoff {
			backoff = min(backoff*2, maxBackoff)
		}
	}
}
