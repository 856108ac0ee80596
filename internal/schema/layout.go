package schema

import (
	"github.com/reajuria/bindb/internal/apperr"
	"github.com/reajuria/bindb/internal/ident"
)

// Record layout:
// ┌───────────┬──────────────────┬──────────┬──────────────────┬──────────┬───┐
// │ Status(1) │ Col 0 payload    │ Null(1)  │ Col 1 payload    │ Null(1)  │ … │
// └───────────┴──────────────────┴──────────┴──────────────────┴──────────┴───┘
// Status: 0x00 = active, 0xFF = deleted. Null flag: 0x00 = present, 0x01 = null.

// Row status byte values.
const (
	StatusActive  byte = 0x00
	StatusDeleted byte = 0xFF
)

// Field is the planned placement of one column inside a record.
type Field struct {
	Name     string
	Type     ColumnType
	Length   int
	Offset   int
	Size     int
	NullFlag int
}

// Layout is the frozen record layout of a table. It is the authoritative
// source for all record I/O and must never change after table creation.
type Layout struct {
	Schema     Schema
	Fields     []Field
	RecordSize int
	Hash       [ident.HashSize]byte

	byName map[string]int
}

// Plan computes the record layout for a schema.
//
// The planner injects an id column at position 0 when the schema does not
// declare one, validates the column list, and assigns each column its byte
// offset, payload size and null-flag position. Byte 0 of every record is
// reserved for the row status.
func Plan(s Schema) (*Layout, error) {
	hash, err := ident.TableHash(s.Database, s.Table)
	if err != nil {
		return nil, err
	}
	if len(s.Columns) == 0 {
		return nil, apperr.Newf(apperr.KindInvalidSchema,
			"table %q has no columns", s.Table).With("table", s.Table)
	}

	columns := s.Columns
	if !hasIDColumn(columns) {
		columns = append([]Column{{Name: IDColumn, Type: TypeUniqueIdentifier}}, columns...)
	}

	l := &Layout{
		Schema: Schema{Database: s.Database, Table: s.Table, Columns: columns},
		Fields: make([]Field, 0, len(columns)),
		Hash:   hash,
		byName: make(map[string]int, len(columns)),
	}

	offset := 1 // byte 0 is the row status
	for _, c := range columns {
		if c.Name == "" {
			return nil, apperr.New(apperr.KindInvalidSchema, "column with empty name")
		}
		if _, dup := l.byName[c.Name]; dup {
			return nil, apperr.Newf(apperr.KindInvalidSchema,
				"duplicate column %q", c.Name).With("column", c.Name)
		}
		if c.Name == IDColumn && c.Type != TypeUniqueIdentifier {
			return nil, apperr.Newf(apperr.KindInvalidSchema,
				"id column must be %s, got %s", TypeUniqueIdentifier, c.Type).
				With("column", c.Name)
		}
		size, err := payloadSize(c)
		if err != nil {
			return nil, err
		}
		length := c.Length
		if c.Type == TypeText && length == 0 {
			length = DefaultTextLength
		}
		l.byName[c.Name] = len(l.Fields)
		l.Fields = append(l.Fields, Field{
			Name:     c.Name,
			Type:     c.Type,
			Length:   length,
			Offset:   offset,
			Size:     size,
			NullFlag: offset + size,
		})
		offset += size + 1
	}
	l.RecordSize = offset
	return l, nil
}

func hasIDColumn(columns []Column) bool {
	for _, c := range columns {
		if c.Name == IDColumn {
			return true
		}
	}
	return false
}

// Field returns the planned field for a column name.
func (l *Layout) Field(name string) (Field, bool) {
	i, ok := l.byName[name]
	if !ok {
		return Field{}, false
	}
	return l.Fields[i], true
}

// IDField returns the planned id field. The planner guarantees it exists.
func (l *Layout) IDField() Field {
	f, _ := l.Field(IDColumn)
	return f
}

// Generator returns an id generator bound to this table's hash.
func (l *Layout) Generator() *ident.Generator {
	return ident.NewGeneratorForHash(l.Hash)
}
