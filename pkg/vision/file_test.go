package vision

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/visionfs/pkg/codec"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/engine/enginetest"
	"github.com/ssargent/visionfs/pkg/layout"
	"github.com/ssargent/visionfs/pkg/record"
	"github.com/ssargent/visionfs/pkg/xfd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadOrders(t *testing.T) *layout.FileDefinition {
	t.Helper()
	def, err := xfd.LoadFile("../xfd/testdata/orders.xfd")
	require.NoError(t, err)
	return def
}

// newScriptedFile returns a closed session on an existing empty file
func newScriptedFile(t *testing.T) (*File, *enginetest.Scripted) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ORDERS")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	eng := enginetest.NewScripted()
	rt := engine.NewRuntime(eng, nil)
	return NewFile(path, loadOrders(t), rt, codec.NewConverter(), nil), eng
}

func orderBytes(t *testing.T, f *File, number int64, customer string) []byte {
	t.Helper()
	r := f.NewRecord()
	require.NoError(t, r.SetLong("ORD-YEAR", 2024))
	require.NoError(t, r.SetLong("ORD-NUMBER", number))
	require.NoError(t, r.SetString("ORD-CUSTOMER", customer))
	return r.Bytes()
}

func TestFile_Lifecycle(t *testing.T) {
	f, eng := newScriptedFile(t)
	assert.False(t, f.IsOpen())
	assert.NotEqual(t, f.ID().String(), "")

	_, err := f.ReadNext()
	assert.True(t, errors.Is(err, ErrNotOpen))

	require.NoError(t, f.Open(engine.Input))
	assert.True(t, f.IsOpen())
	assert.Equal(t, engine.Input, f.Mode())

	err = f.Open(engine.Input)
	assert.True(t, errors.Is(err, ErrAlreadyOpen))

	require.NoError(t, f.Close())
	assert.False(t, f.IsOpen())
	require.NoError(t, f.Close())

	assert.Equal(t, []string{"open", "close"}, eng.Ops())
}

func TestFile_CloseGateTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ORDERS")
	require.NoError(t, os.WriteFile(path, nil, 0600))
	eng := enginetest.NewScripted()
	gate := engine.NewGate("", 20*time.Millisecond)
	f := NewFile(path, loadOrders(t), engine.NewRuntime(eng, gate), codec.NewConverter(), nil)
	require.NoError(t, f.Open(engine.Input))

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- gate.Do(func() {
			close(held)
			<-release
		})
	}()
	<-held

	err := f.Close()
	assert.True(t, errors.Is(err, engine.ErrGateTimeout))
	assert.True(t, f.IsOpen())

	close(release)
	require.NoError(t, <-done)

	require.NoError(t, f.Close())
	assert.False(t, f.IsOpen())
	assert.Equal(t, []string{"open", "close"}, eng.Ops())
}

func TestFile_OpenErrors(t *testing.T) {
	t.Run("missing path", func(t *testing.T) {
		eng := enginetest.NewScripted()
		f := NewFile(filepath.Join(t.TempDir(), "NOPE"), loadOrders(t), engine.NewRuntime(eng, nil), codec.NewConverter(), nil)

		err := f.Open(engine.Input)
		assert.True(t, errors.Is(err, ErrFileNotFound))
		assert.Empty(t, eng.Ops())
	})

	t.Run("engine refuses", func(t *testing.T) {
		f, eng := newScriptedFile(t)
		eng.Script("open", engine.StatusFileLocked)

		err := f.Open(engine.InputOutput)
		require.Error(t, err)
		assert.False(t, f.IsOpen())

		var fe *FileError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, engine.StatusFileLocked, fe.Status)
		assert.Equal(t, "open", fe.Op)
		assert.True(t, fe.Locked())
		assert.True(t, errors.Is(err, ErrLocked))
	})
}

func TestFile_ReadNext(t *testing.T) {
	f, eng := newScriptedFile(t)
	require.NoError(t, f.Open(engine.Input))

	eng.Queue(orderBytes(t, f, 1, "ACME"))
	eng.Script("next", engine.StatusOk, engine.StatusNotFound)

	rec, err := f.ReadNext()
	require.NoError(t, err)
	require.NotNil(t, rec)
	customer, err := rec.String("ORD-CUSTOMER")
	require.NoError(t, err)
	assert.Equal(t, "ACME", customer)

	rec, err = f.ReadNext()
	assert.NoError(t, err)
	assert.Nil(t, rec)

	eng.Script("previous", engine.StatusNotFound)
	rec, err = f.ReadPrevious()
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFile_StatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  engine.Status
		found   bool
		wantErr bool
		locked  bool
	}{
		{"ok", engine.StatusOk, true, false, false},
		{"no support warning", engine.StatusNoSupportWarning, true, false, false},
		{"duplicate ok", engine.StatusDuplicateOkWarning, true, false, false},
		{"closed with lock", engine.StatusClosedWithLock, true, false, false},
		{"not found", engine.StatusNotFound, false, false, false},
		{"record locked", engine.StatusRecordLocked, false, true, true},
		{"file locked", engine.StatusFileLocked, false, true, true},
		{"broken", engine.StatusBroken, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, eng := newScriptedFile(t)
			require.NoError(t, f.Open(engine.Input))
			eng.Script("next", tt.status)

			rec, err := f.ReadNext()
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.found, rec != nil)
				return
			}

			assert.Nil(t, rec)
			var fe *FileError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, tt.status, fe.Status)
			assert.Equal(t, tt.locked, errors.Is(err, ErrLocked))
		})
	}
}

func TestFile_ReadOnlyGuards(t *testing.T) {
	f, eng := newScriptedFile(t)
	require.NoError(t, f.Open(engine.Input))
	rec := f.NewRecord()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"write", func() error { return f.Write(rec) }},
		{"rewrite", func() error { return f.Rewrite(rec) }},
		{"delete", func() error { return f.Delete(rec) }},
		{"next lock", func() error { _, err := f.ReadNextLock(); return err }},
		{"previous lock", func() error { _, err := f.ReadPreviousLock(); return err }},
		{"read lock", func() error { _, err := f.ReadLock(rec, 0); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.fn(), ErrReadOnly))
		})
	}
	assert.Equal(t, []string{"open"}, eng.Ops())
}

func TestFile_Modify(t *testing.T) {
	f, eng := newScriptedFile(t)
	require.NoError(t, f.Open(engine.InputOutput))
	rec, err := record.FromBytes(f.Definition(), codec.NewConverter(), orderBytes(t, f, 7, "ACME"))
	require.NoError(t, err)

	eng.Script("write", engine.StatusDuplicateOkWarning, engine.StatusDuplicate)
	require.NoError(t, f.Write(rec))

	err = f.Write(rec)
	var fe *FileError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, engine.StatusDuplicate, fe.Status)
	assert.Equal(t, "write", fe.Op)
	assert.Equal(t, f.Path(), fe.Path)

	eng.Script("delete", engine.StatusNotFound)
	err = f.Delete(rec)
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, engine.StatusNotFound, fe.Status)

	require.NoError(t, f.Rewrite(rec))

	calls := eng.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "rewrite", last.Op)
	assert.Equal(t, rec.Bytes(), last.Buf)
}

func TestFile_StartAndRead(t *testing.T) {
	f, eng := newScriptedFile(t)
	require.NoError(t, f.Open(engine.Input))

	_, err := f.Start(2, nil, engine.Equal)
	assert.True(t, errors.Is(err, ErrKeyIndex))
	_, err = f.Start(-1, nil, engine.Equal)
	assert.True(t, errors.Is(err, ErrKeyIndex))

	found, err := f.Start(0, nil, engine.GreaterOrEqual)
	require.NoError(t, err)
	assert.True(t, found)

	eng.Script("start", engine.StatusNotFound)
	found, err = f.Start(1, nil, engine.Equal)
	require.NoError(t, err)
	assert.False(t, found)

	key := f.NewRecord()
	require.NoError(t, key.SetString("ORD-CUSTOMER", "ACME"))
	stored := orderBytes(t, f, 3, "ACME")
	eng.Queue(stored)

	got, err := f.Read(key, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stored, got.Bytes())
	customer, err := key.String("ORD-CUSTOMER")
	require.NoError(t, err)
	assert.Equal(t, "ACME", customer)
	assert.NotEqual(t, stored, key.Bytes())

	eng.Script("read", engine.StatusNotFound)
	got, err = f.Read(key, 1)
	assert.NoError(t, err)
	assert.Nil(t, got)

	_, err = f.Read(key, 2)
	assert.True(t, errors.Is(err, ErrKeyIndex))

	reads := 0
	for _, c := range eng.Calls() {
		if c.Op == "read" {
			reads++
			assert.Equal(t, 1, c.KeyIndex)
			assert.Equal(t, key.Bytes(), c.Buf)
		}
	}
	assert.Equal(t, 2, reads)
}

func TestFile_Unlock(t *testing.T) {
	f, eng := newScriptedFile(t)
	assert.True(t, errors.Is(f.Unlock(), ErrNotOpen))

	require.NoError(t, f.Open(engine.InputOutput))
	require.NoError(t, f.Unlock())

	eng.Script("unlock", engine.StatusNoLocks)
	var fe *FileError
	require.True(t, errors.As(f.Unlock(), &fe))
	assert.Equal(t, engine.StatusNoLocks, fe.Status)
}

func TestFile_RecordSize(t *testing.T) {
	f, _ := newScriptedFile(t)
	require.NoError(t, f.Open(engine.InputOutput))

	other := &layout.FileDefinition{FileName: "SHORT", MaxRecordSize: 10, MinRecordSize: 10}
	short := record.New(other, codec.NewConverter())
	assert.True(t, errors.Is(f.Write(short), record.ErrSize))
}

func TestFile_Dispose(t *testing.T) {
	f, eng := newScriptedFile(t)
	require.NoError(t, f.Open(engine.Input))
	eng.Script("close", engine.StatusBroken)

	f.Dispose()
	assert.False(t, f.IsOpen())
	f.Dispose()
	assert.Equal(t, []string{"open", "close"}, eng.Ops())
}

func TestFile_BoundaryRecords(t *testing.T) {
	f, _ := newScriptedFile(t)

	low := f.LowValues().Bytes()
	high := f.HighValues().Bytes()
	require.Len(t, low, f.Definition().MaxRecordSize)
	require.Len(t, high, f.Definition().MaxRecordSize)
	for i := range low {
		assert.Equal(t, byte(0x00), low[i])
		assert.Equal(t, byte(0xFF), high[i])
	}
}
