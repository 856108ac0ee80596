package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reajuria/bindb/internal/apperr"
)

func plan(t *testing.T, columns ...Column) *Layout {
	t.Helper()
	l, err := Plan(Schema{Database: "app", Table: "things", Columns: columns})
	require.NoError(t, err)
	return l
}

func TestPlanInjectsIDColumn(t *testing.T) {
	l := plan(t, Column{Name: "name", Type: TypeText, Length: 16})

	require.Len(t, l.Fields, 2)
	assert.Equal(t, IDColumn, l.Fields[0].Name)
	assert.Equal(t, TypeUniqueIdentifier, l.Fields[0].Type)
	assert.Equal(t, 1, l.Fields[0].Offset, "byte 0 is the status flag")
}

func TestPlanRecordSize(t *testing.T) {
	// 1 status + (12 id + 1 null) + (2 + 4*16 text + 1 null) = 81
	l := plan(t, Column{Name: "name", Type: TypeText, Length: 16})
	assert.Equal(t, 81, l.RecordSize)
}

func TestPlanOffsets(t *testing.T) {
	l := plan(t,
		Column{Name: "count", Type: TypeNumber},
		Column{Name: "active", Type: TypeBoolean},
		Column{Name: "pos", Type: TypeCoordinates},
	)

	id, ok := l.Field(IDColumn)
	require.True(t, ok)
	assert.Equal(t, 1, id.Offset)
	assert.Equal(t, 12, id.Size)
	assert.Equal(t, 13, id.NullFlag)

	count, _ := l.Field("count")
	assert.Equal(t, 14, count.Offset)
	assert.Equal(t, 22, count.NullFlag)

	active, _ := l.Field("active")
	assert.Equal(t, 23, active.Offset)
	assert.Equal(t, 24, active.NullFlag)

	pos, _ := l.Field("pos")
	assert.Equal(t, 25, pos.Offset)
	assert.Equal(t, 16, pos.Size)
	assert.Equal(t, 41, pos.NullFlag)

	assert.Equal(t, 42, l.RecordSize)
}

func TestPlanTextDefaultLength(t *testing.T) {
	l := plan(t, Column{Name: "note", Type: TypeText})
	f, _ := l.Field("note")
	assert.Equal(t, DefaultTextLength, f.Length)
	assert.Equal(t, 2+4*DefaultTextLength, f.Size)
}

func TestPlanKeepsDeclaredIDColumn(t *testing.T) {
	l := plan(t,
		Column{Name: "name", Type: TypeText, Length: 4},
		Column{Name: IDColumn, Type: TypeUniqueIdentifier},
	)
	// Declared position is preserved; nothing is injected.
	require.Len(t, l.Fields, 2)
	assert.Equal(t, "name", l.Fields[0].Name)
	assert.Equal(t, IDColumn, l.Fields[1].Name)
}

func TestPlanErrors(t *testing.T) {
	cases := []struct {
		name    string
		schema  Schema
		kind    apperr.Kind
	}{
		{
			name:   "empty columns",
			schema: Schema{Database: "app", Table: "t", Columns: nil},
			kind:   apperr.KindInvalidSchema,
		},
		{
			name: "duplicate column",
			schema: Schema{Database: "app", Table: "t", Columns: []Column{
				{Name: "a", Type: TypeNumber},
				{Name: "a", Type: TypeBoolean},
			}},
			kind: apperr.KindInvalidSchema,
		},
		{
			name: "buffer without length",
			schema: Schema{Database: "app", Table: "t", Columns: []Column{
				{Name: "blob", Type: TypeBuffer},
			}},
			kind: apperr.KindInvalidSchema,
		},
		{
			name: "unknown type",
			schema: Schema{Database: "app", Table: "t", Columns: []Column{
				{Name: "x", Type: ColumnType("Varchar")},
			}},
			kind: apperr.KindInvalidColumnType,
		},
		{
			name: "id column with wrong type",
			schema: Schema{Database: "app", Table: "t", Columns: []Column{
				{Name: IDColumn, Type: TypeText},
			}},
			kind: apperr.KindInvalidSchema,
		},
		{
			name: "missing database name",
			schema: Schema{Table: "t", Columns: []Column{
				{Name: "a", Type: TypeNumber},
			}},
			kind: apperr.KindValidation,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Plan(tc.schema)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, tc.kind), "got %v", err)
		})
	}
}
