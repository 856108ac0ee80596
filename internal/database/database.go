// Package database owns a database directory: the metadata file listing its
// tables, the per-table schema sidecars and data files, and the map of open
// tables.
package database

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/reajuria/bindb/internal/apperr"
	"github.com/reajuria/bindb/internal/schema"
	"github.com/reajuria/bindb/internal/table"
)

// MetadataFileName is the per-database metadata file.
const MetadataFileName = "db_metadata.json"

// Metadata is the persisted shape of db_metadata.json.
type Metadata struct {
	Tables []TableRef `json:"tables"`
}

// TableRef points at a table's schema sidecar.
type TableRef struct {
	Name   string `json:"name"`
	Schema string `json:"schema"`
}

// Database is one open database directory and its tables.
type Database struct {
	mu     sync.RWMutex
	name   string
	dir    string
	tables map[string]*table.Table
	opts   table.Options
	logger *slog.Logger
}

// Open opens (or creates) the database directory <base>/<name>/, reads its
// metadata file, and opens every listed table.
func Open(base, name string, opts table.Options) (*Database, error) {
	if name == "" {
		return nil, apperr.New(apperr.KindValidation, "database name is required").
			With("field", "database")
	}
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindFileSystem, "create database directory", err).
			With("path", dir)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	db := &Database{
		name:   name,
		dir:    dir,
		tables: make(map[string]*table.Table),
		opts:   opts,
		logger: logger.With("database", name),
	}

	meta, err := db.readMetadata()
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	var tmu sync.Mutex
	for _, ref := range meta.Tables {
		g.Go(func() error {
			t, err := db.openTable(ref)
			if err != nil {
				return err
			}
			tmu.Lock()
			db.tables[ref.Name] = t
			tmu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	db.logger.Info("database opened",
		slog.String("path", dir),
		slog.Int("tables", len(db.tables)),
	)
	return db, nil
}

func (db *Database) openTable(ref TableRef) (*table.Table, error) {
	sidecar := filepath.Join(db.dir, ref.Schema)
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return nil, apperr.Storage("read", sidecar, err)
	}
	var s schema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, apperr.Wrap(apperr.KindDeserialization, "parse schema sidecar", err).
			With("path", sidecar)
	}
	return table.Open(db.dir, s, db.opts)
}

func (db *Database) readMetadata() (Metadata, error) {
	var meta Metadata
	path := filepath.Join(db.dir, MetadataFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := db.writeMetadata(meta); werr != nil {
			return meta, werr
		}
		return meta, nil
	}
	if err != nil {
		return meta, apperr.Storage("read", path, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, apperr.Wrap(apperr.KindDeserialization, "parse database metadata", err).
			With("path", path)
	}
	return meta, nil
}

// writeMetadata atomically rewrites db_metadata.json with meta, tables
// sorted by name. Callers hold the write lock, except Open, which writes the
// initial empty file before the database is shared.
func (db *Database) writeMetadata(meta Metadata) error {
	sort.Slice(meta.Tables, func(i, j int) bool { return meta.Tables[i].Name < meta.Tables[j].Name })
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindSerialization, "marshal database metadata", err)
	}
	path := filepath.Join(db.dir, MetadataFileName)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return apperr.Storage("write", path, err)
	}
	return nil
}

func (db *Database) metadata() Metadata {
	meta := Metadata{Tables: make([]TableRef, 0, len(db.tables))}
	for name := range db.tables {
		meta.Tables = append(meta.Tables, TableRef{
			Name:   name,
			Schema: table.SchemaFileName(name),
		})
	}
	return meta
}

// Name returns the database name.
func (db *Database) Name() string { return db.name }

// Dir returns the database directory.
func (db *Database) Dir() string { return db.dir }

// CreateTable creates a table and registers it in the metadata. It is
// idempotent on existing names: the already-open table is returned and the
// supplied schema is ignored.
func (db *Database) CreateTable(name string, columns []schema.Column) (*table.Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if t, ok := db.tables[name]; ok {
		return t, nil
	}
	t, err := table.Open(db.dir, schema.Schema{
		Database: db.name,
		Table:    name,
		Columns:  columns,
	}, db.opts)
	if err != nil {
		return nil, err
	}
	db.tables[name] = t
	if err := db.writeMetadata(db.metadata()); err != nil {
		return nil, err
	}
	db.logger.Info("table created", slog.String("table", name))
	return t, nil
}

// Table returns the open table with the given name.
func (db *Database) Table(name string) (*table.Table, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[name]
	if !ok {
		return nil, apperr.Newf(apperr.KindTableNotFound, "table %q not found", name).
			With("database", db.name).With("table", name)
	}
	return t, nil
}

// ListTables returns the names of all open tables, sorted.
func (db *Database) ListTables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DeleteTable closes the table, unlinks its schema sidecar and data file,
// and rewrites the metadata.
func (db *Database) DeleteTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tables[name]
	if !ok {
		return apperr.Newf(apperr.KindTableNotFound, "table %q not found", name).
			With("database", db.name).With("table", name)
	}
	if err := t.Close(); err != nil {
		return err
	}
	delete(db.tables, name)

	for _, f := range []string{table.SchemaFileName(name), table.DataFileName(name)} {
		path := filepath.Join(db.dir, f)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return apperr.Wrap(apperr.KindFileSystem, "remove table file", err).
				With("path", path)
		}
	}
	if err := db.writeMetadata(db.metadata()); err != nil {
		return err
	}
	db.logger.Info("table deleted", slog.String("table", name))
	return nil
}

// Close flushes and closes every open table.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var firstErr error
	for name, t := range db.tables {
		if err := t.Close(); err != nil {
			db.logger.Error("failed to close table", slog.String("table", name), slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	db.tables = make(map[string]*table.Table)
	return firstErr
}
