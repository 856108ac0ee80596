package table

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reajuria/bindb/internal/codec"
	"github.com/reajuria/bindb/internal/ident"
	"github.com/reajuria/bindb/internal/schema"
)

func testSchema(columns ...schema.Column) schema.Schema {
	return schema.Schema{Database: "testdb", Table: "things", Columns: columns}
}

func openTable(t *testing.T, dir string, opts Options) *Table {
	t.Helper()
	tbl, err := Open(dir, testSchema(schema.Column{Name: "name", Type: schema.TypeText, Length: 16}), opts)
	require.NoError(t, err)
	return tbl
}

func insertNamed(t *testing.T, tbl *Table, name string) ident.ID {
	t.Helper()
	row, err := tbl.Insert(codec.Row{"name": codec.Text(name)})
	require.NoError(t, err)
	return row[schema.IDColumn].ID()
}

func dataPath(dir string) string {
	return filepath.Join(dir, DataFileName("things"))
}

func TestOpenCreatesFiles(t *testing.T) {
	dir := t.TempDir()
	tbl := openTable(t, dir, Options{})
	defer tbl.Close()

	_, err := os.Stat(filepath.Join(dir, SchemaFileName("things")))
	require.NoError(t, err, "schema sidecar must exist")
	_, err = os.Stat(dataPath(dir))
	require.NoError(t, err, "data file must exist")
}

func TestInsertAndGet(t *testing.T) {
	dir := t.TempDir()
	tbl := openTable(t, dir, Options{})
	defer tbl.Close()

	inserted, err := tbl.Insert(codec.Row{"name": codec.Text("alice")})
	require.NoError(t, err)

	id := inserted[schema.IDColumn].ID()
	assert.Len(t, id.String(), ident.EncodedLen)
	assert.Equal(t, "alice", inserted["name"].Text())

	got, err := tbl.Get(id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got[schema.IDColumn].ID())
	assert.Equal(t, "alice", got["name"].Text())

	require.NoError(t, tbl.Flush())
	info, err := os.Stat(dataPath(dir))
	require.NoError(t, err)
	assert.Equal(t, int64(tbl.Layout().RecordSize), info.Size())
}

func TestGetMissingReturnsNil(t *testing.T) {
	tbl := openTable(t, t.TempDir(), Options{})
	defer tbl.Close()

	got, err := tbl.Get(testID(t, 42))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetReadsThroughBufferBeforeFlush(t *testing.T) {
	tbl := openTable(t, t.TempDir(), Options{CacheCapacity: -1})
	defer tbl.Close()

	id := insertNamed(t, tbl, "pending")
	got, err := tbl.Get(id)
	require.NoError(t, err)
	require.NotNil(t, got, "unflushed rows must be readable")
	assert.Equal(t, "pending", got["name"].Text())
}

func TestDeleteReusesSlot(t *testing.T) {
	dir := t.TempDir()
	tbl := openTable(t, dir, Options{})
	defer tbl.Close()

	a := insertNamed(t, tbl, "a")
	b := insertNamed(t, tbl, "b")
	c := insertNamed(t, tbl, "c")

	ok, err := tbl.Delete(b)
	require.NoError(t, err)
	assert.True(t, ok)

	d := insertNamed(t, tbl, "d")
	require.NoError(t, tbl.Flush())

	info, err := os.Stat(dataPath(dir))
	require.NoError(t, err)
	assert.Equal(t, int64(3*tbl.Layout().RecordSize), info.Size(),
		"d must occupy b's former slot")

	got, err := tbl.Get(b)
	require.NoError(t, err)
	assert.Nil(t, got, "deleted id stays gone")

	for _, pair := range []struct {
		id   ident.ID
		name string
	}{{a, "a"}, {c, "c"}, {d, "d"}} {
		got, err := tbl.Get(pair.id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, pair.name, got["name"].Text())
	}
}

func TestDeleteMissingReturnsFalse(t *testing.T) {
	tbl := openTable(t, t.TempDir(), Options{})
	defer tbl.Close()

	ok, err := tbl.Delete(testID(t, 9))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdate(t *testing.T) {
	tbl := openTable(t, t.TempDir(), Options{})
	defer tbl.Close()

	id := insertNamed(t, tbl, "alice")

	updated, err := tbl.Update(id, codec.Row{"name": codec.Text("bob")})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "bob", updated["name"].Text())
	assert.Equal(t, id, updated[schema.IDColumn].ID(), "update never rewrites the id")

	got, err := tbl.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "bob", got["name"].Text(), "read after update sees the new value")
}

func TestUpdateIgnoresIDInPatch(t *testing.T) {
	tbl := openTable(t, t.TempDir(), Options{})
	defer tbl.Close()

	id := insertNamed(t, tbl, "alice")
	foreign := testID(t, 77)

	updated, err := tbl.Update(id, codec.Row{
		schema.IDColumn: codec.IDValue(foreign),
		"name":          codec.Text("eve"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, id, updated[schema.IDColumn].ID())

	got, err := tbl.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "eve", got["name"].Text())
}

func TestUpdateMissingReturnsNil(t *testing.T) {
	tbl := openTable(t, t.TempDir(), Options{})
	defer tbl.Close()

	updated, err := tbl.Update(testID(t, 9), codec.Row{"name": codec.Text("x")})
	require.NoError(t, err)
	assert.Nil(t, updated)
}

func TestBulkInsertAutoFlush(t *testing.T) {
	dir := t.TempDir()
	tbl := openTable(t, dir, Options{})
	defer tbl.Close()

	rows := make([]codec.Row, 15000)
	for i := range rows {
		rows[i] = codec.Row{"name": codec.Text("bulk")}
	}
	inserted, err := tbl.BulkInsert(rows)
	require.NoError(t, err)
	require.Len(t, inserted, 15000)

	// Default thresholds force at least one auto-flush inside BulkInsert.
	info, err := os.Stat(dataPath(dir))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.Size(), int64(DefaultBufferMaxRecords*tbl.Layout().RecordSize))

	stats, err := tbl.Stats()
	require.NoError(t, err)
	assert.Equal(t, 15000, stats.Records)
	assert.Less(t, stats.PendingWrites, 15000)

	// Every row is readable immediately, flushed or not.
	for _, i := range []int{0, 9999, 10000, 14999} {
		got, err := tbl.Get(inserted[i][schema.IDColumn].ID())
		require.NoError(t, err)
		require.NotNil(t, got, "row %d", i)
	}
}

func TestGetAllAndCount(t *testing.T) {
	tbl := openTable(t, t.TempDir(), Options{})
	defer tbl.Close()

	a := insertNamed(t, tbl, "a")
	insertNamed(t, tbl, "b")
	c := insertNamed(t, tbl, "c")
	_, err := tbl.Delete(a)
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Count())

	rows, err := tbl.GetAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[0]["name"].Text())
	assert.Equal(t, c, rows[1][schema.IDColumn].ID())
}

func TestCloseAndReload(t *testing.T) {
	dir := t.TempDir()
	tbl := openTable(t, dir, Options{})

	live := make(map[ident.ID]string, 500)
	ids := make([]ident.ID, 0, 1000)
	for i := 0; i < 1000; i++ {
		name := string(rune('a' + i%26))
		id := insertNamed(t, tbl, name)
		ids = append(ids, id)
		live[id] = name
		if i%2 == 1 {
			victim := ids[i-1]
			ok, err := tbl.Delete(victim)
			require.NoError(t, err)
			require.True(t, ok)
			delete(live, victim)
		}
	}
	require.Len(t, live, 500)
	require.NoError(t, tbl.Close())

	reopened := openTable(t, dir, Options{})
	defer reopened.Close()

	assert.Equal(t, 500, reopened.Count())
	rows, err := reopened.GetAll()
	require.NoError(t, err)
	require.Len(t, rows, 500)
	for _, row := range rows {
		id := row[schema.IDColumn].ID()
		want, ok := live[id]
		require.True(t, ok, "unexpected id %s", id)
		assert.Equal(t, want, row["name"].Text())
	}

	stats, err := reopened.Stats()
	require.NoError(t, err)
	assert.Equal(t, 500, stats.Records)
	assert.Equal(t, stats.TotalSlots-stats.Records, stats.FreeSlots)
}

func TestLoadTruncatesPartialTail(t *testing.T) {
	dir := t.TempDir()
	tbl := openTable(t, dir, Options{})
	id := insertNamed(t, tbl, "whole")
	require.NoError(t, tbl.Close())

	// Simulate a crash mid-write: append half a record.
	f, err := os.OpenFile(dataPath(dir), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write(make([]byte, tbl.Layout().RecordSize/2))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := openTable(t, dir, Options{})
	defer reopened.Close()

	info, err := os.Stat(dataPath(dir))
	require.NoError(t, err)
	assert.Equal(t, int64(reopened.Layout().RecordSize), info.Size())

	got, err := reopened.Get(id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "whole", got["name"].Text())
}

func TestUpdatedAtColumnStamped(t *testing.T) {
	s := testSchema(
		schema.Column{Name: "name", Type: schema.TypeText, Length: 8},
		schema.Column{Name: "updatedAt", Type: schema.TypeUpdatedAt},
	)
	tbl, err := Open(t.TempDir(), s, Options{})
	require.NoError(t, err)
	defer tbl.Close()

	inserted, err := tbl.Insert(codec.Row{"name": codec.Text("x")})
	require.NoError(t, err)
	first := inserted["updatedAt"].Time()
	assert.False(t, first.IsZero())

	updated, err := tbl.Update(inserted[schema.IDColumn].ID(), codec.Row{"name": codec.Text("y")})
	require.NoError(t, err)
	assert.False(t, updated["updatedAt"].Time().Before(first))
}

func TestStats(t *testing.T) {
	tbl := openTable(t, t.TempDir(), Options{})
	defer tbl.Close()

	insertNamed(t, tbl, "a")
	b := insertNamed(t, tbl, "b")
	_, err := tbl.Delete(b)
	require.NoError(t, err)

	stats, err := tbl.Stats()
	require.NoError(t, err)
	assert.Equal(t, "things", stats.Table)
	assert.Equal(t, 1, stats.Records)
	assert.Equal(t, 2, stats.TotalSlots)
	assert.Equal(t, 1, stats.FreeSlots)
	assert.Equal(t, tbl.Layout().RecordSize, stats.RecordSize)
	assert.Equal(t, 2, stats.PendingWrites)
}
