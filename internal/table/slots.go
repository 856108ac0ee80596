// Package table implements the per-table storage runtime: the slot
// allocator, the layered read cache and write buffer, the data-file I/O
// layer, and the orchestrating Table type.
package table

import (
	"github.com/reajuria/bindb/internal/ident"
)

// SlotMap maintains the bidirectional id↔slot mapping and the free-slot
// stack. Slots are dense; slot k addresses bytes [k*recordSize,
// (k+1)*recordSize) of the data file.
type SlotMap struct {
	entries []ident.ID       // slot -> id; Zero marks a free slot
	index   map[ident.ID]int // id -> slot
	free    []int            // LIFO stack of reusable slots
}

// NewSlotMap returns an empty slot map.
func NewSlotMap() *SlotMap {
	return &SlotMap{index: make(map[ident.ID]int)}
}

// ScannedSlot is one slot observed during the initial data-file scan, in
// slot-index order.
type ScannedSlot struct {
	ID      ident.ID
	Deleted bool
}

// Load rebuilds the allocator state from a file scan. Tombstoned slots are
// pushed on the free stack in scan order.
func (m *SlotMap) Load(scan []ScannedSlot) {
	m.entries = make([]ident.ID, len(scan))
	m.index = make(map[ident.ID]int, len(scan))
	m.free = m.free[:0]
	for slot, s := range scan {
		if s.Deleted {
			m.entries[slot] = ident.Zero
			m.free = append(m.free, slot)
			continue
		}
		m.entries[slot] = s.ID
		m.index[s.ID] = slot
	}
}

// Allocate assigns a slot to id, reusing the most recently freed slot when
// one exists and appending at the end otherwise.
func (m *SlotMap) Allocate(id ident.ID) int {
	var slot int
	if n := len(m.free); n > 0 {
		slot = m.free[n-1]
		m.free = m.free[:n-1]
		m.entries[slot] = id
	} else {
		slot = len(m.entries)
		m.entries = append(m.entries, id)
	}
	m.index[id] = slot
	return slot
}

// Release frees the slot held by id and pushes it on the free stack. It
// returns the freed slot and whether the id was known.
func (m *SlotMap) Release(id ident.ID) (int, bool) {
	slot, ok := m.index[id]
	if !ok {
		return 0, false
	}
	m.entries[slot] = ident.Zero
	delete(m.index, id)
	m.free = append(m.free, slot)
	return slot, true
}

// Resolve returns the slot held by id.
func (m *SlotMap) Resolve(id ident.ID) (int, bool) {
	slot, ok := m.index[id]
	return slot, ok
}

// Len returns the total number of slots, live and free.
func (m *SlotMap) Len() int { return len(m.entries) }

// Live returns the number of slots currently mapped to an id.
func (m *SlotMap) Live() int { return len(m.index) }

// Free returns the number of reusable slots.
func (m *SlotMap) Free() int { return len(m.free) }

// IDs returns all live ids in slot order.
func (m *SlotMap) IDs() []ident.ID {
	out := make([]ident.ID, 0, len(m.index))
	for _, id := range m.entries {
		if !id.IsZero() {
			out = append(out, id)
		}
	}
	return out
}
