package server

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/reajuria/bindb/internal/apperr"
	"github.com/reajuria/bindb/internal/codec"
	"github.com/reajuria/bindb/internal/database"
	"github.com/reajuria/bindb/internal/ident"
	"github.com/reajuria/bindb/internal/metrics"
	"github.com/reajuria/bindb/internal/table"
)

// Handlers holds the route implementations and their shared dependencies.
type Handlers struct {
	registry *database.Registry
	metrics  *metrics.Registry
	version  string
	started  time.Time
}

// NewHandlers wires the route handlers.
func NewHandlers(registry *database.Registry, m *metrics.Registry, version string) *Handlers {
	return &Handlers{
		registry: registry,
		metrics:  m,
		version:  version,
		started:  time.Now(),
	}
}

// resolveTable looks up an open table from request envelope fields.
func (h *Handlers) resolveTable(databaseName, tableName string) (*table.Table, error) {
	if err := required("database", databaseName); err != nil {
		return nil, err
	}
	if err := required("table", tableName); err != nil {
		return nil, err
	}
	db, err := h.registry.Get(databaseName)
	if err != nil {
		return nil, err
	}
	return db.Table(tableName)
}

// CreateTable handles POST /v1/table/create. Creating an existing table
// returns it unchanged.
func (h *Handlers) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := required("database", req.Database); err != nil {
		writeError(w, err)
		return
	}
	if err := required("table", req.Table); err != nil {
		writeError(w, err)
		return
	}
	db, err := h.registry.GetOrCreate(req.Database)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := db.CreateTable(req.Table, req.Schema)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Schema())
}

// ListTables handles GET /v1/table/list.
func (h *Handlers) ListTables(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("database")
	if err := required("database", name); err != nil {
		writeError(w, err)
		return
	}
	db, err := h.registry.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"database": name,
		"tables":   db.ListTables(),
	})
}

// TableSchema handles GET /v1/table/schema.
func (h *Handlers) TableSchema(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := h.resolveTable(q.Get("database"), q.Get("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t.Schema())
}

// Insert handles POST /v1/insert.
func (h *Handlers) Insert(w http.ResponseWriter, r *http.Request) {
	var req InsertRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.resolveTable(req.Database, req.Table)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Data == nil {
		writeError(w, apperr.New(apperr.KindMissingRequiredField, "data is required").
			With("field", "data"))
		return
	}
	row, err := rowFromJSON(t.Layout(), req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	inserted, err := t.Insert(row)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rowToJSON(t.Layout(), inserted))
}

// BulkInsert handles POST /v1/bulkInsert.
func (h *Handlers) BulkInsert(w http.ResponseWriter, r *http.Request) {
	var req BulkInsertRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.resolveTable(req.Database, req.Table)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(req.Data) == 0 {
		writeError(w, apperr.New(apperr.KindMissingRequiredField, "data is required").
			With("field", "data"))
		return
	}
	rows := make([]codec.Row, 0, len(req.Data))
	for _, item := range req.Data {
		row, err := rowFromJSON(t.Layout(), item)
		if err != nil {
			writeError(w, err)
			return
		}
		rows = append(rows, row)
	}
	inserted, err := t.BulkInsert(rows)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(inserted))
	for _, row := range inserted {
		out = append(out, rowToJSON(t.Layout(), row))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inserted": len(out),
		"rows":     out,
	})
}

// Find handles GET /v1/find. A missing id yields a null body, not an error.
func (h *Handlers) Find(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := h.resolveTable(q.Get("database"), q.Get("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := required("id", q.Get("id")); err != nil {
		writeError(w, err)
		return
	}
	id, err := ident.Parse(q.Get("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	row, err := t.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if row == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, rowToJSON(t.Layout(), row))
}

// Update handles PUT /v1/update. A missing id yields a null body.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.resolveTable(req.Database, req.Table)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := required("id", req.ID); err != nil {
		writeError(w, err)
		return
	}
	if req.Data == nil {
		writeError(w, apperr.New(apperr.KindMissingRequiredField, "data is required").
			With("field", "data"))
		return
	}
	id, err := ident.Parse(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	patch, err := rowFromJSON(t.Layout(), req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	updated, err := t.Update(id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	if updated == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, rowToJSON(t.Layout(), updated))
}

// Delete handles DELETE /v1/delete. Deleting a missing id reports false.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.resolveTable(req.Database, req.Table)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := required("id", req.ID); err != nil {
		writeError(w, err)
		return
	}
	id, err := ident.Parse(req.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	deleted, err := t.Delete(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// Count handles GET /v1/count.
func (h *Handlers) Count(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := h.resolveTable(q.Get("database"), q.Get("table"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": t.Count()})
}

// StatsHandler handles GET /v1/stats for one table or all tables of a
// database.
func (h *Handlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dbName := q.Get("database")
	if err := required("database", dbName); err != nil {
		writeError(w, err)
		return
	}
	db, err := h.registry.Get(dbName)
	if err != nil {
		writeError(w, err)
		return
	}

	names := db.ListTables()
	if tableName := q.Get("table"); tableName != "" {
		names = []string{tableName}
	}
	stats := make([]table.Stats, 0, len(names))
	for _, name := range names {
		t, err := db.Table(name)
		if err != nil {
			writeError(w, err)
			return
		}
		s, err := t.Stats()
		if err != nil {
			writeError(w, err)
			return
		}
		stats = append(stats, s)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"database": dbName,
		"tables":   stats,
	})
}

// Health handles GET /v1/health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

// Info handles GET /v1/info.
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      "bindb",
		"version":   h.version,
		"storage":   h.registry.BasePath(),
		"databases": h.registry.List(),
	})
}

// Metrics handles GET /v1/metrics, rendering the manual-reader snapshot.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	rm, err := h.metrics.Snapshot(r.Context())
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindInternal, "collect metrics", err))
		return
	}

	type point struct {
		Attributes map[string]string `json:"attributes"`
		Value      any               `json:"value"`
	}
	out := make(map[string][]point)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			pts := out[m.Name]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					pts = append(pts, point{Attributes: attrMap(dp.Attributes.ToSlice()), Value: dp.Value})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					pts = append(pts, point{Attributes: attrMap(dp.Attributes.ToSlice()), Value: dp.Value})
				}
			}
			out[m.Name] = pts
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
