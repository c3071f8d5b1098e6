// Package vision gives access to indexed data files through their layouts.
//
// A FileSystem is created once at startup from the configuration, an
// engine runtime and a definition registry. Initialize registers the
// license, starts the engine and loads the layout descriptions; GetFile
// then returns sessions on individual files.
package vision

import (
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/visionfs/pkg/codec"
	"github.com/ssargent/visionfs/pkg/config"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/layout"
	"github.com/ssargent/visionfs/pkg/xfd"
)

// FileSystem resolves file names to sessions
type FileSystem struct {
	cfg      *config.Config
	rt       *engine.Runtime
	registry *xfd.Registry
	conv     *codec.Converter
	logger   *slog.Logger

	closeOnce sync.Once
}

// Option configures a FileSystem
type Option func(*FileSystem)

// WithConverter replaces the default field converter
func WithConverter(conv *codec.Converter) Option {
	return func(fs *FileSystem) {
		fs.conv = conv
	}
}

// NewFileSystem creates a file system. Nothing touches the engine until
// Initialize is called.
func NewFileSystem(cfg *config.Config, rt *engine.Runtime, registry *xfd.Registry, logger *slog.Logger, opts ...Option) *FileSystem {
	if logger == nil {
		logger = slog.Default()
	}
	fs := &FileSystem{
		cfg:      cfg,
		rt:       rt,
		registry: registry,
		conv:     codec.NewConverter(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

// Initialize registers the license, starts the engine and loads the layout
// descriptions from the configured directory. A missing license is logged
// and the engine is started without one. Layouts that fail to load are
// logged and skipped.
func (fs *FileSystem) Initialize() error {
	license, err := fs.cfg.ResolveLicense()
	if err != nil {
		fs.logger.Warn("starting engine without license", "error", err)
		license = ""
	}
	if err := fs.rt.Init(license); err != nil {
		return err
	}

	dir := fs.cfg.XfdDirectory
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		return errors.Wrapf(err, "xfd directory %s", dir)
	}
	n, err := fs.registry.LoadDir(dir)
	if err != nil {
		fs.logger.Warn("some layout descriptions failed to load", "dir", dir, "error", err)
	}
	fs.logger.Info("file system initialized", "definitions", n, "xfd_directory", dir)
	return nil
}

// Converter returns the field converter shared by every session
func (fs *FileSystem) Converter() *codec.Converter {
	return fs.conv
}

// Definitions returns the registered layouts ordered by file name
func (fs *FileSystem) Definitions() []*layout.FileDefinition {
	return fs.registry.Definitions()
}

// Definition returns the layout registered for name
func (fs *FileSystem) Definition(name string) (*layout.FileDefinition, error) {
	def, ok := fs.registry.Get(name)
	if !ok {
		return nil, errors.Wrapf(ErrDefinitionNotFound, "%s", name)
	}
	return def, nil
}

// GetFile returns a closed session on name. The path is resolved through
// the file prefix and the layout is looked up by the upper-case base name.
func (fs *FileSystem) GetFile(name string) (*File, error) {
	def, err := fs.Definition(name)
	if err != nil {
		return nil, err
	}
	return NewFile(fs.cfg.ResolveFilePath(name), def, fs.rt, fs.conv, fs.logger), nil
}

// Make creates the data file name using def, or the registered layout for
// name when def is nil
func (fs *FileSystem) Make(name string, def *layout.FileDefinition) (*File, error) {
	if def == nil {
		var err error
		if def, err = fs.Definition(name); err != nil {
			return nil, err
		}
	}
	path := fs.cfg.ResolveFilePath(name)
	params, keys := def.Params(), def.KeyInfo()

	_, status, err := fs.rt.Call("make", func(e engine.Engine) int {
		return e.Make(path, params, keys)
	})
	if err != nil {
		return nil, err
	}
	if !status.IsOK() {
		return nil, newFileError("make", path, status)
	}
	fs.logger.Info("file created", "path", path, "params", params, "keys", keys)
	return NewFile(path, def, fs.rt, fs.conv, fs.logger), nil
}

// Close shuts the engine down. Errors are logged, not returned.
func (fs *FileSystem) Close() error {
	fs.closeOnce.Do(func() {
		if err := fs.rt.Exit(); err != nil {
			fs.logger.Warn("engine exit failed", "error", err)
		}
	})
	return nil
}
