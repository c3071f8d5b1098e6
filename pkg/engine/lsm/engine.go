// Package lsm implements the engine boundary on top of Pebble.
//
// Every indexed file is a Pebble directory. The file descriptor passed to
// Make (record sizes and key layout) is stored inside the database, records
// are stored under their primary key and each alternate key gets its own
// ordered index pointing back at the primary key. The engine reports
// results through the same numeric statuses as the native library, so the
// session layer cannot tell the two apart.
package lsm

import (
	"bytes"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/visionfs/pkg/engine"
)

type cursor struct {
	keyIndex int
	pos      []byte // index entry of the current record
	fresh    bool   // positioned by Start and not read yet
}

type handle struct {
	owner  ksuid.KSUID
	st     *store
	mode   engine.OpenMode
	cur    cursor
	locked []byte // primary key of the record this handle holds locked
}

// Engine is a Pebble-backed engine. It is safe for concurrent use, though
// callers normally reach it through an engine.Runtime that already
// serializes calls.
type Engine struct {
	mu          sync.Mutex
	logger      *slog.Logger
	status      engine.Status
	initialized bool
	license     string
	stores      map[string]*store
	handles     map[engine.Handle]*handle
	locks       map[string]ksuid.KSUID
	next        engine.Handle
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine; Init must be called before any file operation
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:  logger,
		stores:  make(map[string]*store),
		handles: make(map[engine.Handle]*handle),
		locks:   make(map[string]ksuid.KSUID),
	}
}

func (e *Engine) fail(s engine.Status) int {
	e.status = s
	return -1
}

func (e *Engine) ok() int {
	e.status = engine.StatusOk
	return 0
}

func (e *Engine) sysError(op string, err error) int {
	e.logger.Error("engine failure", "op", op, "error", err)
	return e.fail(engine.StatusSysError)
}

func (e *Engine) Init() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = true
	e.status = engine.StatusOk
	return 1
}

// Exit closes every open file
func (e *Engine) Exit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for path, st := range e.stores {
		if err := st.db.Close(); err != nil {
			e.logger.Warn("failed to close file", "path", path, "error", err)
		}
	}
	e.stores = make(map[string]*store)
	e.handles = make(map[engine.Handle]*handle)
	e.locks = make(map[string]ksuid.KSUID)
	e.initialized = false
	e.status = engine.StatusOk
}

// SetLicense records the license path. Pebble needs no license, so the
// path is only kept for diagnostics.
func (e *Engine) SetLicense(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.license = path
}

func (e *Engine) LastStatus() engine.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) Make(path, params, keys string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return e.fail(engine.StatusInterface)
	}
	if _, err := os.Stat(path); err == nil {
		return e.fail(engine.StatusParamError)
	}
	if err := createStore(path, params, keys); err != nil {
		if errors.Is(err, errBadDescriptor) {
			e.logger.Debug("rejected file descriptor", "path", path, "error", err)
			return e.fail(engine.StatusParamError)
		}
		return e.sysError("make", err)
	}
	return e.ok()
}

func (e *Engine) Open(path string, mode engine.OpenMode) engine.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		e.fail(engine.StatusInterface)
		return 0
	}
	if mode != engine.Input && mode != engine.InputOutput {
		e.fail(engine.StatusParamError)
		return 0
	}

	st, ok := e.stores[path]
	if !ok {
		if _, err := os.Stat(path); err != nil {
			e.fail(engine.StatusMissingFile)
			return 0
		}
		var err error
		st, err = openStore(path)
		if err != nil {
			if errors.Is(err, errNoFile) || errors.Is(err, errBadDescriptor) {
				e.logger.Debug("not an indexed file", "path", path, "error", err)
				e.fail(engine.StatusBroken)
				return 0
			}
			e.sysError("open", err)
			return 0
		}
		e.stores[path] = st
	}
	st.refs++

	e.next++
	e.handles[e.next] = &handle{owner: ksuid.New(), st: st, mode: mode}
	e.ok()
	return e.next
}

func (e *Engine) Close(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hd, ok := e.handles[h]
	if !ok {
		return e.fail(engine.StatusAcuFhAlreadyClosed)
	}
	e.releaseLock(hd)
	delete(e.handles, h)

	hd.st.refs--
	if hd.st.refs == 0 {
		delete(e.stores, hd.st.path)
		if err := hd.st.db.Close(); err != nil {
			return e.sysError("close", err)
		}
	}
	return e.ok()
}

func (e *Engine) handle(h engine.Handle) (*handle, bool) {
	hd, ok := e.handles[h]
	if !ok {
		e.fail(engine.StatusParamError)
	}
	return hd, ok
}

func lockKey(path string, key0 []byte) string {
	return path + "\x00" + string(key0)
}

// lockedByOther reports whether another handle holds key0 locked
func (e *Engine) lockedByOther(hd *handle, key0 []byte) bool {
	owner, ok := e.locks[lockKey(hd.st.path, key0)]
	return ok && owner != hd.owner
}

func (e *Engine) releaseLock(hd *handle) {
	if hd.locked == nil {
		return
	}
	delete(e.locks, lockKey(hd.st.path, hd.locked))
	hd.locked = nil
}

// acquire locks key0 for hd, dropping the record hd held before.
// Handles opened for input never lock.
func (e *Engine) acquire(hd *handle, key0 []byte, lock bool) bool {
	if e.lockedByOther(hd, key0) {
		return false
	}
	if !lock || hd.mode == engine.Input {
		return true
	}
	e.releaseLock(hd)
	hd.locked = append([]byte(nil), key0...)
	e.locks[lockKey(hd.st.path, key0)] = hd.owner
	return true
}

// deliver copies the record at the iterator into buf, honoring locks, and
// moves the cursor to the entry
func (e *Engine) deliver(hd *handle, it *pebble.Iterator, buf []byte, lock bool) int {
	i := hd.cur.keyIndex
	key0, rec, err := hd.st.entryRecord(i, it)
	if err != nil {
		return e.sysError("read", err)
	}
	if !e.acquire(hd, key0, lock) {
		return e.fail(engine.StatusRecordLocked)
	}
	hd.cur.pos = append([]byte(nil), it.Key()...)
	hd.cur.fresh = false
	copy(buf, rec)
	return e.ok()
}

func (e *Engine) Next(h engine.Handle, buf []byte, lock bool) int {
	return e.step(h, buf, lock, true)
}

func (e *Engine) Previous(h engine.Handle, buf []byte, lock bool) int {
	return e.step(h, buf, lock, false)
}

func (e *Engine) step(h engine.Handle, buf []byte, lock, forward bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hd, ok := e.handle(h)
	if !ok {
		return -1
	}

	it, err := hd.st.iter(hd.cur.keyIndex)
	if err != nil {
		return e.sysError("iterate", err)
	}
	defer it.Close()

	var valid bool
	switch {
	case hd.cur.pos == nil && forward:
		valid = it.First()
	case hd.cur.pos == nil:
		valid = it.Last()
	case hd.cur.fresh && forward:
		valid = it.SeekGE(hd.cur.pos)
	case hd.cur.fresh:
		valid = it.SeekLT(upperBound(hd.cur.pos))
	case forward:
		valid = it.SeekGE(hd.cur.pos)
		if valid && bytes.Equal(it.Key(), hd.cur.pos) {
			valid = it.Next()
		}
	default:
		valid = it.SeekLT(hd.cur.pos)
	}
	if !valid {
		if err := it.Error(); err != nil {
			return e.sysError("iterate", err)
		}
		return e.fail(engine.StatusNotFound)
	}
	return e.deliver(hd, it, buf, lock)
}

func (e *Engine) Read(h engine.Handle, buf []byte, keyIndex int, lock bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hd, ok := e.handle(h)
	if !ok {
		return -1
	}
	if keyIndex < 0 || keyIndex >= len(hd.st.keys) {
		return e.fail(engine.StatusParamError)
	}

	want := hd.st.keys[keyIndex].extract(buf)
	it, err := hd.st.iter(keyIndex)
	if err != nil {
		return e.sysError("read", err)
	}
	defer it.Close()

	seek := append(indexPrefix(keyIndex), want...)
	if !it.SeekGE(seek) || !bytes.Equal(hd.st.keyPart(keyIndex, it.Key()), want) {
		if err := it.Error(); err != nil {
			return e.sysError("read", err)
		}
		return e.fail(engine.StatusNotFound)
	}
	hd.cur.keyIndex = keyIndex
	return e.deliver(hd, it, buf, lock)
}

// Start positions the cursor of h on key keyIndex. The next read in either
// direction returns the positioned record.
func (e *Engine) Start(h engine.Handle, buf []byte, keyIndex, keySize int, mode engine.StartMode) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hd, ok := e.handle(h)
	if !ok {
		return -1
	}
	if keyIndex < 0 || keyIndex >= len(hd.st.keys) {
		return e.fail(engine.StatusParamError)
	}

	spec := hd.st.keys[keyIndex]
	want := spec.extract(buf)
	// a key size shorter than the key compares only the leading bytes
	if keySize > 0 && keySize < len(want) {
		want = want[:keySize]
	}
	prefix := append(indexPrefix(keyIndex), want...)

	it, err := hd.st.iter(keyIndex)
	if err != nil {
		return e.sysError("start", err)
	}
	defer it.Close()

	matches := func() bool {
		return bytes.HasPrefix(hd.st.keyPart(keyIndex, it.Key()), want)
	}

	var valid bool
	switch mode {
	case engine.Equal:
		valid = it.SeekGE(prefix) && matches()
	case engine.GreaterOrEqual:
		valid = it.SeekGE(prefix)
	case engine.Greater:
		valid = it.SeekGE(upperBound(prefix))
	case engine.Less:
		valid = it.SeekLT(prefix)
	case engine.LessOrEqual:
		valid = it.SeekLT(upperBound(prefix))
	default:
		return e.fail(engine.StatusParamError)
	}
	if !valid {
		if err := it.Error(); err != nil {
			return e.sysError("start", err)
		}
		return e.fail(engine.StatusNotFound)
	}

	hd.cur = cursor{keyIndex: keyIndex, pos: append([]byte(nil), it.Key()...), fresh: true}
	return e.ok()
}

func (e *Engine) writable(hd *handle, size int) bool {
	if hd.mode != engine.InputOutput {
		e.fail(engine.StatusModeClash)
		return false
	}
	if size < hd.st.minSize || size > hd.st.maxSize {
		e.fail(engine.StatusParamError)
		return false
	}
	return true
}

// checkUnique fails with StatusDuplicate when a unique alternate key of rec
// is used by another record. dupOK reports that a non-unique key repeats.
func (e *Engine) checkUnique(st *store, rec, self []byte) (dupOK bool, code int, failed bool) {
	for i := 1; i < len(st.keys); i++ {
		taken, err := st.taken(i, st.keys[i].extract(rec), self)
		if err != nil {
			return false, e.sysError("index", err), true
		}
		if !taken {
			continue
		}
		if st.keys[i].unique {
			return false, e.fail(engine.StatusDuplicate), true
		}
		dupOK = true
	}
	return dupOK, 0, false
}

func (e *Engine) Write(h engine.Handle, buf []byte, size int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hd, ok := e.handle(h)
	if !ok || !e.writable(hd, size) {
		return -1
	}
	st := hd.st
	rec := append([]byte(nil), buf[:size]...)
	key0 := st.keys[0].extract(rec)

	exists, err := st.exists(key0)
	if err != nil {
		return e.sysError("write", err)
	}
	if exists {
		return e.fail(engine.StatusDuplicate)
	}
	dupOK, code, failed := e.checkUnique(st, rec, nil)
	if failed {
		return code
	}

	b := st.db.NewBatch()
	st.put(b, key0, rec)
	if err := b.Commit(pebble.Sync); err != nil {
		return e.sysError("write", err)
	}
	if dupOK {
		e.status = engine.StatusDuplicateOkWarning
		return 0
	}
	return e.ok()
}

func (e *Engine) Rewrite(h engine.Handle, buf []byte, size int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hd, ok := e.handle(h)
	if !ok || !e.writable(hd, size) {
		return -1
	}
	st := hd.st
	rec := append([]byte(nil), buf[:size]...)
	key0 := st.keys[0].extract(rec)

	old, err := getCopy(st.db, recordKey(key0))
	if errors.Is(err, pebble.ErrNotFound) {
		return e.fail(engine.StatusNotFound)
	}
	if err != nil {
		return e.sysError("rewrite", err)
	}
	if e.lockedByOther(hd, key0) {
		return e.fail(engine.StatusRecordLocked)
	}
	dupOK, code, failed := e.checkUnique(st, rec, key0)
	if failed {
		return code
	}

	b := st.db.NewBatch()
	st.remove(b, key0, old)
	st.put(b, key0, rec)
	if err := b.Commit(pebble.Sync); err != nil {
		return e.sysError("rewrite", err)
	}
	if bytes.Equal(hd.locked, key0) {
		e.releaseLock(hd)
	}
	if dupOK {
		e.status = engine.StatusDuplicateOkWarning
		return 0
	}
	return e.ok()
}

func (e *Engine) Delete(h engine.Handle, buf []byte) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hd, ok := e.handle(h)
	if !ok || !e.writable(hd, hd.st.maxSize) {
		return -1
	}
	st := hd.st
	key0 := st.keys[0].extract(buf)

	old, err := getCopy(st.db, recordKey(key0))
	if errors.Is(err, pebble.ErrNotFound) {
		return e.fail(engine.StatusNotFound)
	}
	if err != nil {
		return e.sysError("delete", err)
	}
	if e.lockedByOther(hd, key0) {
		return e.fail(engine.StatusRecordLocked)
	}

	b := st.db.NewBatch()
	st.remove(b, key0, old)
	if err := b.Commit(pebble.Sync); err != nil {
		return e.sysError("delete", err)
	}
	if bytes.Equal(hd.locked, key0) {
		e.releaseLock(hd)
	}
	return e.ok()
}

func (e *Engine) Unlock(h engine.Handle) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	hd, ok := e.handle(h)
	if !ok {
		return -1
	}
	e.releaseLock(hd)
	return e.ok()
}
