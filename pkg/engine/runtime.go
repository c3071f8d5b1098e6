package engine

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrInitFailed is returned when the engine runtime does not start
var ErrInitFailed = errors.New("engine runtime initialization failed")

// Observer receives one notification per engine call
type Observer interface {
	ObserveEngineCall(op string, status Status, d time.Duration)
}

// Runtime owns the engine and the gate guarding it. It is created once at
// startup and handed to every session by reference.
type Runtime struct {
	eng      Engine
	gate     *Gate
	observer Observer
	exitOnce sync.Once
}

// RuntimeOption configures a Runtime
type RuntimeOption func(*Runtime)

// WithObserver reports every engine call to o
func WithObserver(o Observer) RuntimeOption {
	return func(r *Runtime) {
		r.observer = o
	}
}

// NewRuntime creates a runtime. A nil gate gets an in-process gate with the
// default timeout.
func NewRuntime(eng Engine, gate *Gate, opts ...RuntimeOption) *Runtime {
	if gate == nil {
		gate = NewGate("", DefaultGateTimeout)
	}
	r := &Runtime{eng: eng, gate: gate}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Call runs fn and reads the status it left behind, both inside the gate
func (r *Runtime) Call(op string, fn func(Engine) int) (int, Status, error) {
	var code int
	var status Status

	start := time.Now()
	err := r.gate.Do(func() {
		code = fn(r.eng)
		status = r.eng.LastStatus()
	})
	if err != nil {
		return 0, 0, errors.Wrapf(err, "engine %s", op)
	}
	if r.observer != nil {
		r.observer.ObserveEngineCall(op, status, time.Since(start))
	}
	return code, status, nil
}

// Open opens path and returns its handle together with the call status
func (r *Runtime) Open(path string, mode OpenMode) (Handle, Status, error) {
	var h Handle
	_, status, err := r.Call("open", func(e Engine) int {
		h = e.Open(path, mode)
		return 0
	})
	return h, status, err
}

// Init registers the license file (when given) and starts the engine
func (r *Runtime) Init(licensePath string) error {
	code, status, err := r.Call("init", func(e Engine) int {
		if licensePath != "" {
			e.SetLicense(licensePath)
		}
		return e.Init()
	})
	if err != nil {
		return err
	}
	if code == 0 {
		return errors.Wrapf(ErrInitFailed, "status %d (%s)", int(status), status)
	}
	return nil
}

// Exit shuts the engine down. Only the first call reaches the engine.
func (r *Runtime) Exit() error {
	var err error
	r.exitOnce.Do(func() {
		_, _, err = r.Call("exit", func(e Engine) int {
			e.Exit()
			return 0
		})
	})
	return err
}
