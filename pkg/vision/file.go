package vision

import (
	"bytes"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	"github.com/ssargent/visionfs/pkg/codec"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/layout"
	"github.com/ssargent/visionfs/pkg/record"
)

// File is a session on one data file. A File is not safe for concurrent
// use; open one session per goroutine.
type File struct {
	id     ksuid.KSUID
	path   string
	def    *layout.FileDefinition
	rt     *engine.Runtime
	conv   *codec.Converter
	logger *slog.Logger

	handle engine.Handle
	mode   engine.OpenMode
}

// NewFile creates a closed session on path described by def
func NewFile(path string, def *layout.FileDefinition, rt *engine.Runtime, conv *codec.Converter, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	id := ksuid.New()
	return &File{
		id:     id,
		path:   path,
		def:    def,
		rt:     rt,
		conv:   conv,
		logger: logger.With("session", id.String(), "file", def.FileName),
	}
}

// ID identifies the session in logs
func (f *File) ID() ksuid.KSUID {
	return f.id
}

// Path returns the resolved data file path
func (f *File) Path() string {
	return f.path
}

// Definition returns the layout of the file
func (f *File) Definition() *layout.FileDefinition {
	return f.def
}

// IsOpen reports whether the session holds an engine handle
func (f *File) IsOpen() bool {
	return f.handle != 0
}

// Mode returns the mode the file was opened with
func (f *File) Mode() engine.OpenMode {
	return f.mode
}

// NewRecord returns an empty record for this file
func (f *File) NewRecord() *record.Record {
	return record.New(f.def, f.conv)
}

// LowValues returns a record of all 0x00 bytes, which sorts before any key
func (f *File) LowValues() *record.Record {
	return f.filled(0x00)
}

// HighValues returns a record of all 0xFF bytes, which sorts after any key
func (f *File) HighValues() *record.Record {
	return f.filled(0xFF)
}

func (f *File) filled(b byte) *record.Record {
	buf := bytes.Repeat([]byte{b}, f.def.MaxRecordSize)
	rec, _ := record.FromBytes(f.def, f.conv, buf)
	return rec
}

// call runs one engine operation on the session handle
func (f *File) call(op string, fn func(e engine.Engine, h engine.Handle) int) (engine.Status, error) {
	h := f.handle
	_, status, err := f.rt.Call(op, func(e engine.Engine) int {
		return fn(e, h)
	})
	return status, err
}

// classify maps a status to (found, error): the OK set is a hit, not
// found is a miss, everything else is a FileError
func (f *File) classify(op string, status engine.Status) (bool, error) {
	switch {
	case status.IsOK():
		return true, nil
	case status.IsNotFound():
		return false, nil
	default:
		return false, newFileError(op, f.path, status)
	}
}

func (f *File) mustBeOpen() error {
	if !f.IsOpen() {
		return errors.Wrapf(ErrNotOpen, "file %s", f.path)
	}
	return nil
}

func (f *File) mustBeWritable() error {
	if err := f.mustBeOpen(); err != nil {
		return err
	}
	if f.mode != engine.InputOutput {
		return errors.Wrapf(ErrReadOnly, "file %s", f.path)
	}
	return nil
}

func (f *File) checkRecord(rec *record.Record) error {
	if rec == nil {
		return errors.AssertionFailedf("nil record")
	}
	if len(rec.Bytes()) != f.def.MaxRecordSize {
		return errors.Wrapf(record.ErrSize, "file %s: got %d bytes, want %d", f.path, len(rec.Bytes()), f.def.MaxRecordSize)
	}
	return nil
}

// Open opens the file in mode
func (f *File) Open(mode engine.OpenMode) error {
	if f.IsOpen() {
		return errors.Wrapf(ErrAlreadyOpen, "file %s", f.path)
	}
	if _, err := os.Stat(f.path); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrFileNotFound, "%s", f.path)
		}
		return errors.Wrapf(err, "failed to stat %s", f.path)
	}

	h, status, err := f.rt.Open(f.path, mode)
	if err != nil {
		return err
	}
	if !status.IsOK() || h == 0 {
		return newFileError("open", f.path, status)
	}

	f.handle = h
	f.mode = mode
	f.logger.Debug("file opened", "path", f.path, "mode", mode.String())
	return nil
}

// Start positions the cursor on key keyIndex relative to the key value in
// rec. A nil rec starts from the empty template. found is false when no
// record satisfies mode.
func (f *File) Start(keyIndex int, rec *record.Record, mode engine.StartMode) (bool, error) {
	if err := f.mustBeOpen(); err != nil {
		return false, err
	}
	if _, err := f.def.Key(keyIndex); err != nil {
		return false, err
	}
	if rec == nil {
		rec = f.NewRecord()
	}
	if err := f.checkRecord(rec); err != nil {
		return false, err
	}

	buf := rec.Bytes()
	status, err := f.call("start", func(e engine.Engine, h engine.Handle) int {
		return e.Start(h, buf, keyIndex, 0, mode)
	})
	if err != nil {
		return false, err
	}
	return f.classify("start", status)
}

func (f *File) step(op string, lock bool, fn func(e engine.Engine, h engine.Handle, buf []byte) int) (*record.Record, error) {
	if lock {
		if err := f.mustBeWritable(); err != nil {
			return nil, err
		}
	} else if err := f.mustBeOpen(); err != nil {
		return nil, err
	}

	buf := make([]byte, f.def.MaxRecordSize)
	status, err := f.call(op, func(e engine.Engine, h engine.Handle) int {
		return fn(e, h, buf)
	})
	if err != nil {
		return nil, err
	}
	found, err := f.classify(op, status)
	if err != nil || !found {
		return nil, err
	}
	return record.FromBytes(f.def, f.conv, buf)
}

// ReadNext returns the next record in key order, or nil at the end
func (f *File) ReadNext() (*record.Record, error) {
	return f.step("next", false, func(e engine.Engine, h engine.Handle, buf []byte) int {
		return e.Next(h, buf, false)
	})
}

// ReadNextLock is ReadNext holding a lock on the returned record
func (f *File) ReadNextLock() (*record.Record, error) {
	return f.step("next", true, func(e engine.Engine, h engine.Handle, buf []byte) int {
		return e.Next(h, buf, true)
	})
}

// ReadPrevious returns the previous record in key order, or nil at the start
func (f *File) ReadPrevious() (*record.Record, error) {
	return f.step("previous", false, func(e engine.Engine, h engine.Handle, buf []byte) int {
		return e.Previous(h, buf, false)
	})
}

// ReadPreviousLock is ReadPrevious holding a lock on the returned record
func (f *File) ReadPreviousLock() (*record.Record, error) {
	return f.step("previous", true, func(e engine.Engine, h engine.Handle, buf []byte) int {
		return e.Previous(h, buf, true)
	})
}

func (f *File) read(keyRec *record.Record, keyIndex int, lock bool) (*record.Record, error) {
	if err := f.mustBeOpen(); err != nil {
		return nil, err
	}
	if _, err := f.def.Key(keyIndex); err != nil {
		return nil, err
	}
	if err := f.checkRecord(keyRec); err != nil {
		return nil, err
	}
	seed := keyRec.Bytes()

	return f.step("read", lock, func(e engine.Engine, h engine.Handle, buf []byte) int {
		copy(buf, seed)
		return e.Read(h, buf, keyIndex, lock)
	})
}

// Read returns the record whose key keyIndex equals the key in keyRec, or
// nil when there is none. keyRec is not modified.
func (f *File) Read(keyRec *record.Record, keyIndex int) (*record.Record, error) {
	return f.read(keyRec, keyIndex, false)
}

// ReadLock is Read holding a lock on the returned record
func (f *File) ReadLock(keyRec *record.Record, keyIndex int) (*record.Record, error) {
	return f.read(keyRec, keyIndex, true)
}

// Unlock releases the locks held by the session
func (f *File) Unlock() error {
	if err := f.mustBeOpen(); err != nil {
		return err
	}
	status, err := f.call("unlock", func(e engine.Engine, h engine.Handle) int {
		return e.Unlock(h)
	})
	if err != nil {
		return err
	}
	if !status.IsOK() {
		return newFileError("unlock", f.path, status)
	}
	return nil
}

func (f *File) modify(op string, rec *record.Record, fn func(e engine.Engine, h engine.Handle, buf []byte) int) error {
	if err := f.mustBeWritable(); err != nil {
		return err
	}
	if err := f.checkRecord(rec); err != nil {
		return err
	}
	buf := rec.Bytes()
	status, err := f.call(op, func(e engine.Engine, h engine.Handle) int {
		return fn(e, h, buf)
	})
	if err != nil {
		return err
	}
	if !status.IsOK() {
		return newFileError(op, f.path, status)
	}
	return nil
}

// Write adds rec to the file
func (f *File) Write(rec *record.Record) error {
	return f.modify("write", rec, func(e engine.Engine, h engine.Handle, buf []byte) int {
		return e.Write(h, buf, len(buf))
	})
}

// Rewrite replaces the record with the primary key of rec
func (f *File) Rewrite(rec *record.Record) error {
	return f.modify("rewrite", rec, func(e engine.Engine, h engine.Handle, buf []byte) int {
		return e.Rewrite(h, buf, len(buf))
	})
}

// Delete removes the record with the primary key of rec
func (f *File) Delete(rec *record.Record) error {
	return f.modify("delete", rec, func(e engine.Engine, h engine.Handle, buf []byte) int {
		return e.Delete(h, buf)
	})
}

// Close releases the engine handle. Closing a closed file does nothing.
// When the engine could not be reached the file stays open and Close can
// be retried.
func (f *File) Close() error {
	if !f.IsOpen() {
		return nil
	}
	status, err := f.call("close", func(e engine.Engine, h engine.Handle) int {
		return e.Close(h)
	})
	if err != nil {
		return err
	}
	f.handle = 0
	f.logger.Debug("file closed", "path", f.path)
	if !status.IsOK() {
		return newFileError("close", f.path, status)
	}
	return nil
}

// Dispose closes the file and discards any error
func (f *File) Dispose() {
	if err := f.Close(); err != nil {
		f.logger.Debug("close failed during dispose", "path", f.path, "error", err)
	}
}
