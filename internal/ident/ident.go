// Package ident implements the 12-byte surrogate record identifier.
//
// ID binary layout (12 bytes, hex-encoded to 24 characters at the boundary):
// ┌──────────────┬───────────────────────┬──────────────────┐
// │ TableHash(4) │ UnixMillis(6, BE)     │ Counter(2, BE)   │
// └──────────────┴───────────────────────┴──────────────────┘
// Offsets:       0                       4                  10
//
// The counter is process-global and atomic; ids are unique within a single
// process up to 65536 generations per millisecond. Multi-process deployments
// need an external sequencer.
package ident

import (
	"encoding/hex"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/reajuria/bindb/internal/apperr"
)

// Size is the binary width of an ID.
const Size = 12

// EncodedLen is the length of the hex encoding of an ID.
const EncodedLen = 2 * Size

// HashSize is the width of the table-hash prefix.
const HashSize = 4

// ID is a 12-byte surrogate primary key.
type ID [Size]byte

// Zero is the all-zero ID, used as the absent value.
var Zero ID

// String returns the 24-character lowercase hex encoding.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether the ID is the absent value.
func (id ID) IsZero() bool {
	return id == Zero
}

// Time extracts the embedded timestamp.
func (id ID) Time() time.Time {
	var ms int64
	for _, b := range id[HashSize : HashSize+6] {
		ms = ms<<8 | int64(b)
	}
	return time.UnixMilli(ms)
}

// Counter extracts the embedded counter bits.
func (id ID) Counter() uint16 {
	return uint16(id[10])<<8 | uint16(id[11])
}

// Parse decodes a 24-character hex string into an ID.
func Parse(s string) (ID, error) {
	var id ID
	if len(s) != EncodedLen {
		return Zero, apperr.Newf(apperr.KindInvalidIDFormat,
			"id must be %d hex characters, got %d", EncodedLen, len(s)).With("id", s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return Zero, apperr.Wrap(apperr.KindInvalidIDFormat, "id is not valid hex", err).With("id", s)
	}
	return id, nil
}

// counter is shared across all tables in the process.
var counter atomic.Uint32

// TableHash derives the 4-byte hash prefix from the database and table names
// using SHAKE256.
func TableHash(database, table string) ([HashSize]byte, error) {
	var hash [HashSize]byte
	if database == "" {
		return hash, apperr.New(apperr.KindValidation, "database name is required").
			With("field", "database")
	}
	if table == "" {
		return hash, apperr.New(apperr.KindValidation, "table name is required").
			With("field", "table")
	}
	h := sha3.NewShake256()
	h.Write([]byte(database))
	h.Write([]byte(table))
	h.Read(hash[:])
	return hash, nil
}

// Generator produces ids for a single table.
type Generator struct {
	hash [HashSize]byte
	now  func() time.Time
}

// NewGenerator binds a generator to the table identified by database and
// table name.
func NewGenerator(database, table string) (*Generator, error) {
	hash, err := TableHash(database, table)
	if err != nil {
		return nil, err
	}
	return &Generator{hash: hash, now: time.Now}, nil
}

// NewGeneratorForHash binds a generator to a pre-computed table hash.
func NewGeneratorForHash(hash [HashSize]byte) *Generator {
	return &Generator{hash: hash, now: time.Now}
}

// Next returns a fresh ID for the bound table.
func (g *Generator) Next() ID {
	var id ID
	copy(id[:HashSize], g.hash[:])

	ms := uint64(g.now().UnixMilli()) & 0xFFFFFFFFFFFF
	id[4] = byte(ms >> 40)
	id[5] = byte(ms >> 32)
	id[6] = byte(ms >> 24)
	id[7] = byte(ms >> 16)
	id[8] = byte(ms >> 8)
	id[9] = byte(ms)

	n := uint16(counter.Add(1) - 1)
	id[10] = byte(n >> 8)
	id[11] = byte(n)
	return id
}
