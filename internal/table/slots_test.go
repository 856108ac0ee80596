package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reajuria/bindb/internal/ident"
)

func testID(t *testing.T, n byte) ident.ID {
	t.Helper()
	var id ident.ID
	id[ident.Size-1] = n
	id[0] = 0xAB
	return id
}

func TestSlotMapAllocateAppends(t *testing.T) {
	m := NewSlotMap()
	a, b, c := testID(t, 1), testID(t, 2), testID(t, 3)

	assert.Equal(t, 0, m.Allocate(a))
	assert.Equal(t, 1, m.Allocate(b))
	assert.Equal(t, 2, m.Allocate(c))
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 3, m.Live())
	assert.Equal(t, 0, m.Free())
}

func TestSlotMapResolve(t *testing.T) {
	m := NewSlotMap()
	a := testID(t, 1)
	m.Allocate(a)

	slot, ok := m.Resolve(a)
	require.True(t, ok)
	assert.Equal(t, 0, slot)

	_, ok = m.Resolve(testID(t, 99))
	assert.False(t, ok)
}

func TestSlotMapReleaseAndReuse(t *testing.T) {
	m := NewSlotMap()
	a, b, c, d := testID(t, 1), testID(t, 2), testID(t, 3), testID(t, 4)
	m.Allocate(a)
	m.Allocate(b)
	m.Allocate(c)

	slot, ok := m.Release(b)
	require.True(t, ok)
	assert.Equal(t, 1, slot)
	assert.Equal(t, 1, m.Free())

	_, ok = m.Resolve(b)
	assert.False(t, ok)

	// D reuses B's former slot; the file does not grow.
	assert.Equal(t, 1, m.Allocate(d))
	assert.Equal(t, 3, m.Len())
}

func TestSlotMapReleaseUnknown(t *testing.T) {
	m := NewSlotMap()
	_, ok := m.Release(testID(t, 1))
	assert.False(t, ok)
}

func TestSlotMapLIFOReuse(t *testing.T) {
	m := NewSlotMap()
	ids := make([]ident.ID, 5)
	for i := range ids {
		ids[i] = testID(t, byte(i+1))
		m.Allocate(ids[i])
	}
	m.Release(ids[1])
	m.Release(ids[3])

	// Most recently freed first.
	assert.Equal(t, 3, m.Allocate(testID(t, 10)))
	assert.Equal(t, 1, m.Allocate(testID(t, 11)))
	assert.Equal(t, 5, m.Allocate(testID(t, 12)))
}

func TestSlotMapLoad(t *testing.T) {
	m := NewSlotMap()
	a, c := testID(t, 1), testID(t, 3)
	m.Load([]ScannedSlot{
		{ID: a},
		{Deleted: true},
		{ID: c},
		{Deleted: true},
	})

	assert.Equal(t, 4, m.Len())
	assert.Equal(t, 2, m.Live())
	assert.Equal(t, 2, m.Free())

	slot, ok := m.Resolve(c)
	require.True(t, ok)
	assert.Equal(t, 2, slot)

	// Tombstones were pushed in scan order, so slot 3 pops first.
	assert.Equal(t, 3, m.Allocate(testID(t, 9)))
	assert.Equal(t, 1, m.Allocate(testID(t, 10)))

	assert.Equal(t, []ident.ID{a, testID(t, 10), c, testID(t, 9)}, m.IDs())
}
