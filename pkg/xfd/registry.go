package xfd

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/visionfs/pkg/layout"
)

// Extension is the file extension of layout descriptions
const Extension = ".xfd"

// Registry caches file definitions by upper-case file name
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]*layout.FileDefinition
	logger *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		defs:   make(map[string]*layout.FileDefinition),
		logger: logger,
	}
}

func registryKey(name string) string {
	return strings.ToUpper(filepath.Base(name))
}

// Register validates def and adds it, replacing any definition with the
// same file name
func (r *Registry) Register(def *layout.FileDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[registryKey(def.FileName)] = def
	return nil
}

// Get returns the definition for a file name. The directory part of name
// is ignored and a trailing extension is tried both with and without.
func (r *Registry) Get(name string) (*layout.FileDefinition, bool) {
	key := registryKey(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if def, ok := r.defs[key]; ok {
		return def, true
	}
	if ext := filepath.Ext(key); ext != "" {
		def, ok := r.defs[strings.TrimSuffix(key, ext)]
		return def, ok
	}
	return nil, false
}

// Definitions returns every registered definition ordered by file name
func (r *Registry) Definitions() []*layout.FileDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*layout.FileDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}

// Len returns the number of registered definitions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

// LoadDir loads every layout description in dir. A file that fails to load
// is skipped and its error is combined into the returned error; the others
// are still registered. It returns the number of definitions loaded.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read xfd directory %s", dir)
	}

	var loaded int
	var combined error
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), Extension) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		def, err := LoadFile(path)
		if err == nil {
			err = r.Register(def)
		}
		if err != nil {
			r.logger.Warn("skipping layout description", "path", path, "error", err)
			combined = errors.CombineErrors(combined, err)
			continue
		}
		r.logger.Debug("loaded layout description", "path", path, "file", def.FileName)
		loaded++
	}
	return loaded, combined
}
