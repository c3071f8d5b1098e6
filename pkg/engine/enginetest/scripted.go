// Package enginetest provides a scripted engine for tests of code that sits
// on top of the engine boundary.
package enginetest

import (
	"sync"

	"github.com/ssargent/visionfs/pkg/engine"
)

// Call records one engine invocation
type Call struct {
	Op       string
	Handle   engine.Handle
	KeyIndex int
	Lock     bool
	Mode     int
	Path     string
	Buf      []byte
}

// Scripted is an engine whose statuses are queued per operation. An
// operation with an empty queue reports StatusOk. Reads that succeed copy
// the next queued record into the caller's buffer.
type Scripted struct {
	mu       sync.Mutex
	statuses map[string][]engine.Status
	records  [][]byte
	calls    []Call
	last     engine.Status
	next     engine.Handle

	// InitResult is returned by Init (default 1)
	InitResult int
	License    string
	Exits      int
}

// NewScripted creates an engine where every call succeeds
func NewScripted() *Scripted {
	return &Scripted{statuses: make(map[string][]engine.Status), InitResult: 1}
}

var _ engine.Engine = (*Scripted)(nil)

// Script queues statuses for op ("open", "next", "read", ...)
func (s *Scripted) Script(op string, statuses ...engine.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[op] = append(s.statuses[op], statuses...)
}

// Queue adds a record returned by the next successful read
func (s *Scripted) Queue(rec []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, append([]byte(nil), rec...))
}

// Calls returns the invocations seen so far
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Ops returns the operation names seen so far
func (s *Scripted) Ops() []string {
	var ops []string
	for _, c := range s.Calls() {
		ops = append(ops, c.Op)
	}
	return ops
}

func (s *Scripted) record(c Call) engine.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Buf != nil {
		c.Buf = append([]byte(nil), c.Buf...)
	}
	s.calls = append(s.calls, c)

	st := engine.StatusOk
	if q := s.statuses[c.Op]; len(q) > 0 {
		st = q[0]
		s.statuses[c.Op] = q[1:]
	}
	s.last = st
	return st
}

func result(st engine.Status) int {
	if st.IsOK() {
		return 0
	}
	return -1
}

func (s *Scripted) fill(st engine.Status, buf []byte) {
	if !st.IsOK() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return
	}
	copy(buf, s.records[0])
	s.records = s.records[1:]
}

func (s *Scripted) Init() int {
	s.record(Call{Op: "init"})
	return s.InitResult
}

func (s *Scripted) Exit() {
	s.record(Call{Op: "exit"})
	s.mu.Lock()
	s.Exits++
	s.mu.Unlock()
}

func (s *Scripted) SetLicense(path string) {
	s.record(Call{Op: "license", Path: path})
	s.mu.Lock()
	s.License = path
	s.mu.Unlock()
}

func (s *Scripted) Make(path, params, keys string) int {
	return result(s.record(Call{Op: "make", Path: path}))
}

func (s *Scripted) Open(path string, mode engine.OpenMode) engine.Handle {
	st := s.record(Call{Op: "open", Path: path, Mode: int(mode)})
	if !st.IsOK() {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

func (s *Scripted) Close(h engine.Handle) int {
	return result(s.record(Call{Op: "close", Handle: h}))
}

func (s *Scripted) Next(h engine.Handle, buf []byte, lock bool) int {
	st := s.record(Call{Op: "next", Handle: h, Lock: lock})
	s.fill(st, buf)
	return result(st)
}

func (s *Scripted) Previous(h engine.Handle, buf []byte, lock bool) int {
	st := s.record(Call{Op: "previous", Handle: h, Lock: lock})
	s.fill(st, buf)
	return result(st)
}

func (s *Scripted) Read(h engine.Handle, buf []byte, keyIndex int, lock bool) int {
	st := s.record(Call{Op: "read", Handle: h, Buf: buf, KeyIndex: keyIndex, Lock: lock})
	s.fill(st, buf)
	return result(st)
}

func (s *Scripted) Start(h engine.Handle, buf []byte, keyIndex, keySize int, mode engine.StartMode) int {
	return result(s.record(Call{Op: "start", Handle: h, Buf: buf, KeyIndex: keyIndex, Mode: int(mode)}))
}

func (s *Scripted) Write(h engine.Handle, buf []byte, size int) int {
	return result(s.record(Call{Op: "write", Handle: h, Buf: buf[:size]}))
}

func (s *Scripted) Rewrite(h engine.Handle, buf []byte, size int) int {
	return result(s.record(Call{Op: "rewrite", Handle: h, Buf: buf[:size]}))
}

func (s *Scripted) Delete(h engine.Handle, buf []byte) int {
	return result(s.record(Call{Op: "delete", Handle: h, Buf: buf}))
}

func (s *Scripted) Unlock(h engine.Handle) int {
	return result(s.record(Call{Op: "unlock", Handle: h}))
}

func (s *Scripted) LastStatus() engine.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
