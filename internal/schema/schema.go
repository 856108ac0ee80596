// Package schema defines table schemas and plans their fixed-width record
// layout.
package schema

import (
	"github.com/reajuria/bindb/internal/apperr"
)

// ColumnType enumerates the supported column types.
type ColumnType string

const (
	TypeUniqueIdentifier ColumnType = "UniqueIdentifier"
	TypeText             ColumnType = "Text"
	TypeNumber           ColumnType = "Number"
	TypeBoolean          ColumnType = "Boolean"
	TypeDate             ColumnType = "Date"
	TypeUpdatedAt        ColumnType = "UpdatedAt"
	TypeBuffer           ColumnType = "Buffer"
	TypeCoordinates      ColumnType = "Coordinates"
)

// DefaultTextLength is the declared character length used when a Text column
// omits one.
const DefaultTextLength = 32

// IDColumn is the name of the injected surrogate key column.
const IDColumn = "id"

// Column declares one column of a table.
type Column struct {
	Name   string     `json:"name"`
	Type   ColumnType `json:"type"`
	Length int        `json:"length,omitempty"`
}

// Schema is the persisted shape of a table: database, table name, and the
// ordered column list. Column order is significant; it fixes every null-flag
// position for the lifetime of the table.
type Schema struct {
	Database string   `json:"database"`
	Table    string   `json:"table"`
	Columns  []Column `json:"columns"`
}

// payloadSize returns the on-disk payload width of a column, excluding its
// null-flag byte.
func payloadSize(c Column) (int, error) {
	switch c.Type {
	case TypeUniqueIdentifier:
		return 12, nil
	case TypeNumber, TypeDate, TypeUpdatedAt:
		return 8, nil
	case TypeBoolean:
		return 1, nil
	case TypeCoordinates:
		return 16, nil
	case TypeText:
		length := c.Length
		if length == 0 {
			length = DefaultTextLength
		}
		if length < 0 {
			return 0, apperr.Newf(apperr.KindInvalidSchema,
				"text column %q has non-positive length %d", c.Name, c.Length).
				With("column", c.Name)
		}
		return 2 + 4*length, nil
	case TypeBuffer:
		if c.Length <= 0 {
			return 0, apperr.Newf(apperr.KindInvalidSchema,
				"buffer column %q requires a positive length", c.Name).
				With("column", c.Name)
		}
		return c.Length, nil
	default:
		return 0, apperr.Newf(apperr.KindInvalidColumnType,
			"unknown column type %q on column %q", c.Type, c.Name).
			With("column", c.Name).With("type", string(c.Type))
	}
}
