package table

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/reajuria/bindb/internal/apperr"
	"github.com/reajuria/bindb/internal/codec"
	"github.com/reajuria/bindb/internal/ident"
	"github.com/reajuria/bindb/internal/metrics"
	"github.com/reajuria/bindb/internal/schema"
)

// DefaultCacheCapacity bounds the read cache when no capacity is configured.
const DefaultCacheCapacity = 1000

// Options configures a table at open time.
type Options struct {
	CacheCapacity    int
	BufferMaxRecords int
	BufferMaxBytes   int
	Logger           *slog.Logger
	Metrics          *metrics.Registry
}

// Table orchestrates the storage runtime of one table: schema and layout,
// the data file, the slot allocator, and the layered read cache and write
// buffer. Every public operation acquires the table mutex; the on-disk state
// assumes a single writing process.
type Table struct {
	mu sync.Mutex

	layout *schema.Layout
	gen    *ident.Generator
	file   *File
	cache  *Cache
	buffer *Buffer
	slots  *SlotMap

	schemaPath string
	logger     *slog.Logger
	metrics    *metrics.Registry
	closed     bool
}

// SchemaFileName returns the sidecar file name for a table.
func SchemaFileName(table string) string { return table + ".schema.json" }

// DataFileName returns the data file name for a table.
func DataFileName(table string) string { return table + ".data" }

// Open initializes a table inside dir: it persists the schema sidecar when
// missing, ensures the data file exists, plans the record layout, and scans
// the file to rebuild the id↔slot map.
func Open(dir string, s schema.Schema, opts Options) (*Table, error) {
	layout, err := schema.Plan(s)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cacheCap := opts.CacheCapacity
	if cacheCap == 0 {
		cacheCap = DefaultCacheCapacity
	}

	t := &Table{
		layout:     layout,
		gen:        layout.Generator(),
		file:       NewFile(filepath.Join(dir, DataFileName(s.Table))),
		cache:      NewCache(cacheCap),
		slots:      NewSlotMap(),
		schemaPath: filepath.Join(dir, SchemaFileName(s.Table)),
		logger:     logger.With("table", s.Table),
		metrics:    opts.Metrics,
	}
	t.buffer = NewBuffer(opts.BufferMaxRecords, opts.BufferMaxBytes, t.file.WriteMultiple)

	if err := t.persistSchema(); err != nil {
		return nil, err
	}
	if err := t.file.Ensure(); err != nil {
		return nil, err
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

// persistSchema writes the schema sidecar if it does not exist yet. Schemas
// are immutable once written.
func (t *Table) persistSchema() error {
	if _, err := os.Stat(t.schemaPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return apperr.Storage("stat", t.schemaPath, err)
	}
	data, err := json.MarshalIndent(t.layout.Schema, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.KindSerialization, "marshal schema", err)
	}
	if err := atomic.WriteFile(t.schemaPath, strings.NewReader(string(data))); err != nil {
		return apperr.Storage("write", t.schemaPath, err)
	}
	return nil
}

// load scans the data file and rebuilds the slot allocator. Only the status
// byte and the id field of each record are read, so startup does not page
// whole rows into memory. A partial tail record is truncated before the
// scan.
func (t *Table) load() error {
	size, err := t.file.Size()
	if err != nil {
		return err
	}
	recordSize := int64(t.layout.RecordSize)
	if rem := size % recordSize; rem != 0 {
		t.logger.Warn("truncating partial tail record",
			slog.Int64("file_size", size),
			slog.Int64("partial_bytes", rem),
		)
		size -= rem
		if err := t.file.Truncate(size); err != nil {
			return err
		}
	}

	nSlots := int(size / recordSize)
	idField := t.layout.IDField()
	prefixLen := idField.NullFlag + 1

	scan := make([]ScannedSlot, 0, nSlots)
	for slot := 0; slot < nSlots; slot++ {
		prefix, err := t.file.Read(prefixLen, int64(slot)*recordSize)
		if err != nil {
			return err
		}
		switch prefix[0] {
		case schema.StatusDeleted:
			scan = append(scan, ScannedSlot{Deleted: true})
		case schema.StatusActive:
			var id ident.ID
			copy(id[:], prefix[idField.Offset:idField.Offset+idField.Size])
			scan = append(scan, ScannedSlot{ID: id})
		default:
			return apperr.Newf(apperr.KindDeserialization,
				"corrupted status byte 0x%02x at slot %d", prefix[0], slot).
				With("path", t.file.Path()).With("slot", slot)
		}
	}
	t.slots.Load(scan)

	t.logger.Info("table loaded",
		slog.Int("slots", t.slots.Len()),
		slog.Int("live", t.slots.Live()),
		slog.Int("free", t.slots.Free()),
	)
	return nil
}

// Schema returns the persisted schema, including the injected id column.
func (t *Table) Schema() schema.Schema { return t.layout.Schema }

// Layout returns the frozen record layout.
func (t *Table) Layout() *schema.Layout { return t.layout }

// Name returns the table name.
func (t *Table) Name() string { return t.layout.Schema.Table }

// Get returns the row for id, or nil when the id is unknown. The read path
// is a strict precedence chain: cache, then write buffer, then disk.
func (t *Table) Get(id ident.ID) (codec.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()
	row, err := t.get(id)
	t.metrics.Record(t.Name(), "get", time.Since(start), err)
	return row, err
}

func (t *Table) get(id ident.ID) (codec.Row, error) {
	slot, ok := t.slots.Resolve(id)
	if !ok {
		return nil, nil
	}
	if row, hit := t.cache.Get(id); hit {
		return row, nil
	}
	data, pending := t.buffer.Get(slot)
	if !pending {
		var err error
		data, err = t.file.Read(t.layout.RecordSize, t.position(slot))
		if err != nil {
			return nil, err
		}
	}
	row, err := codec.Deserialize(t.layout, data)
	if err != nil {
		return nil, err
	}
	if row != nil {
		t.cache.Set(id, row)
	}
	return row, nil
}

// Insert serializes the row, allocates a slot, and enqueues the write. The
// returned row is the input merged with every server-generated cell (id,
// UpdatedAt timestamps).
func (t *Table) Insert(row codec.Row) (codec.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()
	out, err := t.insert(row)
	t.metrics.Record(t.Name(), "insert", time.Since(start), err)
	return out, err
}

func (t *Table) insert(row codec.Row) (codec.Row, error) {
	data, generated, err := codec.Serialize(t.layout, row, t.gen)
	if err != nil {
		return nil, err
	}
	merged := row.Merge(generated)
	id := merged[schema.IDColumn].ID()

	slot := t.slots.Allocate(id)
	if err := t.buffer.Add(slot, data, t.position(slot)); err != nil {
		return nil, err
	}
	return merged, nil
}

// BulkInsert inserts rows in two phases: serialize and allocate everything
// first, then enqueue all writes. Threshold crossings flush inline during
// phase 2.
func (t *Table) BulkInsert(rows []codec.Row) ([]codec.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()
	out, err := t.bulkInsert(rows)
	t.metrics.Record(t.Name(), "bulk_insert", time.Since(start), err)
	return out, err
}

func (t *Table) bulkInsert(rows []codec.Row) ([]codec.Row, error) {
	type pending struct {
		slot int
		data []byte
	}
	merged := make([]codec.Row, 0, len(rows))
	writes := make([]pending, 0, len(rows))

	for _, row := range rows {
		data, generated, err := codec.Serialize(t.layout, row, t.gen)
		if err != nil {
			return nil, err
		}
		m := row.Merge(generated)
		slot := t.slots.Allocate(m[schema.IDColumn].ID())
		merged = append(merged, m)
		writes = append(writes, pending{slot: slot, data: data})
	}
	for _, w := range writes {
		if err := t.buffer.Add(w.slot, w.data, t.position(w.slot)); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// Update merges patch into the current row and rewrites the slot. The id
// column is preserved regardless of the patch contents. A missing id yields
// (nil, nil).
func (t *Table) Update(id ident.ID, patch codec.Row) (codec.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()
	out, err := t.update(id, patch)
	t.metrics.Record(t.Name(), "update", time.Since(start), err)
	return out, err
}

func (t *Table) update(id ident.ID, patch codec.Row) (codec.Row, error) {
	slot, ok := t.slots.Resolve(id)
	if !ok {
		return nil, nil
	}
	current, err := t.get(id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	merged := current.Merge(patch)
	merged[schema.IDColumn] = codec.IDValue(id)

	data, generated, err := codec.Serialize(t.layout, merged, t.gen)
	if err != nil {
		return nil, err
	}
	merged = merged.Merge(generated)

	// Invalidate before enqueue so cache and buffer never disagree.
	t.cache.Delete(id)
	if err := t.buffer.Add(slot, data, t.position(slot)); err != nil {
		return nil, err
	}
	return merged, nil
}

// Delete tombstones the record for id and releases its slot for reuse. It
// returns false when the id is unknown.
func (t *Table) Delete(id ident.ID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()
	ok, err := t.del(id)
	t.metrics.Record(t.Name(), "delete", time.Since(start), err)
	return ok, err
}

func (t *Table) del(id ident.ID) (bool, error) {
	slot, ok := t.slots.Release(id)
	if !ok {
		return false, nil
	}
	tombstone := make([]byte, t.layout.RecordSize)
	tombstone[0] = schema.StatusDeleted

	t.cache.Delete(id)
	if err := t.buffer.Add(slot, tombstone, t.position(slot)); err != nil {
		return false, err
	}
	return true, nil
}

// GetAll returns every live row in slot order.
func (t *Table) GetAll() ([]codec.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()

	ids := t.slots.IDs()
	rows := make([]codec.Row, 0, len(ids))
	var err error
	for _, id := range ids {
		var row codec.Row
		row, err = t.get(id)
		if err != nil {
			break
		}
		if row != nil {
			rows = append(rows, row)
		}
	}
	t.metrics.Record(t.Name(), "get_all", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of live records.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots.Live()
}

// Flush forces the write buffer to disk.
func (t *Table) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := time.Now()
	err := t.buffer.Flush()
	t.metrics.Record(t.Name(), "flush", time.Since(start), err)
	return err
}

// Close flushes pending writes, closes the file handles, and clears the
// cache. The table must not be used afterwards.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.buffer.Flush(); err != nil {
		return err
	}
	t.cache.Clear()
	return t.file.Close()
}

// Stats reports the table's runtime statistics.
type Stats struct {
	Table         string `json:"table"`
	Records       int    `json:"records"`
	TotalSlots    int    `json:"totalSlots"`
	FreeSlots     int    `json:"freeSlots"`
	RecordSize    int    `json:"recordSize"`
	FileSize      int64  `json:"fileSize"`
	CachedRows    int    `json:"cachedRows"`
	PendingWrites int    `json:"pendingWrites"`
	PendingBytes  int    `json:"pendingBytes"`
}

// Stats returns a snapshot of the table's counters.
func (t *Table) Stats() (Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	size, err := t.file.Size()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Table:         t.Name(),
		Records:       t.slots.Live(),
		TotalSlots:    t.slots.Len(),
		FreeSlots:     t.slots.Free(),
		RecordSize:    t.layout.RecordSize,
		FileSize:      size,
		CachedRows:    t.cache.Len(),
		PendingWrites: t.buffer.Len(),
		PendingBytes:  t.buffer.ByteSize(),
	}, nil
}

func (t *Table) position(slot int) int64 {
	return int64(slot) * int64(t.layout.RecordSize)
}
