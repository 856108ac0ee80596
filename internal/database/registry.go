package database

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/reajuria/bindb/internal/apperr"
	"github.com/reajuria/bindb/internal/table"
)

// Registry manages the databases under a base directory in a thread-safe
// way. Databases are opened lazily on first use and kept open.
type Registry struct {
	mu       sync.Mutex
	basePath string
	opts     table.Options
	loaded   map[string]*Database
	logger   *slog.Logger
}

// NewRegistry creates a registry rooted at basePath.
func NewRegistry(basePath string, opts table.Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		basePath: basePath,
		opts:     opts,
		loaded:   make(map[string]*Database),
		logger:   logger,
	}
}

// BasePath returns the registry's base directory.
func (r *Registry) BasePath() string { return r.basePath }

// Get returns the open database with the given name, loading it from disk
// when its directory exists. A missing directory is DATABASE_NOT_FOUND.
func (r *Registry) Get(name string) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.loaded[name]; ok {
		return db, nil
	}
	dir := filepath.Join(r.basePath, name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, apperr.Newf(apperr.KindDatabaseNotFound, "database %q not found", name).
			With("database", name)
	} else if err != nil {
		return nil, apperr.Wrap(apperr.KindFileSystem, "stat database directory", err).
			With("path", dir)
	}
	return r.open(name)
}

// GetOrCreate returns the open database with the given name, creating its
// directory when absent.
func (r *Registry) GetOrCreate(name string) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.loaded[name]; ok {
		return db, nil
	}
	return r.open(name)
}

// open loads a database. Callers hold the registry mutex.
func (r *Registry) open(name string) (*Database, error) {
	db, err := Open(r.basePath, name, r.opts)
	if err != nil {
		return nil, err
	}
	r.loaded[name] = db
	return db, nil
}

// List returns every loaded database name, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.loaded))
	for name := range r.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll closes every loaded database. Call on shutdown.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, db := range r.loaded {
		if err := db.Close(); err != nil {
			r.logger.Error("failed to close database",
				slog.String("database", name), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	r.loaded = make(map[string]*Database)
	return firstErr
}
