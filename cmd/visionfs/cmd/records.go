package cmd

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/record"
	"github.com/ssargent/visionfs/pkg/vision"
)

// assign sets each FIELD=VALUE pair on rec
func assign(rec *record.Record, pairs []string) error {
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return errors.Newf("expected FIELD=VALUE, got %q", p)
		}
		if err := rec.SetText(name, value); err != nil {
			return err
		}
	}
	return nil
}

// scanOptions selects a run of records along one key
type scanOptions struct {
	keyIndex int
	mode     engine.StartMode
	starts   []string // FIELD=VALUE pairs seeding the start key
	limit    int      // 0 reads to the end of the key
}

func (o scanOptions) backward() bool {
	return o.mode == engine.Less || o.mode == engine.LessOrEqual
}

// start positions f on the key built from opts.starts. Without starts the
// key is all low values, or all high values when reading backward.
func start(f *vision.File, opts scanOptions) (bool, error) {
	var seed *record.Record
	switch {
	case len(opts.starts) > 0:
		seed = f.NewRecord()
		if err := assign(seed, opts.starts); err != nil {
			return false, err
		}
	case opts.backward():
		seed = f.HighValues()
	default:
		seed = f.LowValues()
	}
	return f.Start(opts.keyIndex, seed, opts.mode)
}

// scan positions f by opts and calls fn for each record read, stopping at
// the end of the key or after opts.limit records. f must be open.
func scan(f *vision.File, opts scanOptions, fn func(*record.Record) error) (int, error) {
	found, err := start(f, opts)
	if err != nil || !found {
		return 0, err
	}

	n := 0
	for opts.limit == 0 || n < opts.limit {
		var rec *record.Record
		if opts.backward() {
			rec, err = f.ReadPrevious()
		} else {
			rec, err = f.ReadNext()
		}
		if err != nil {
			return n, err
		}
		if rec == nil {
			break
		}
		if err := fn(rec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// openFile opens a session on a named file
func openFile(fs *vision.FileSystem, name string, mode engine.OpenMode) (*vision.File, error) {
	f, err := fs.GetFile(name)
	if err != nil {
		return nil, err
	}
	if err := f.Open(mode); err != nil {
		return nil, err
	}
	return f, nil
}
