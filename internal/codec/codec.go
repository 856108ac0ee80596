package codec

import (
	"encoding/binary"
	"math"
	"time"
	"unicode/utf8"

	"github.com/reajuria/bindb/internal/apperr"
	"github.com/reajuria/bindb/internal/ident"
	"github.com/reajuria/bindb/internal/schema"
)

// Serialize encodes a row into a fresh record buffer.
//
// Missing or null id cells are filled from gen; UpdatedAt columns are always
// stamped with the current wall clock, overriding any supplied value. The
// second return value holds the server-generated cells (id, timestamps) so
// callers can merge them into the row they hand back without reparsing the
// buffer.
func Serialize(l *schema.Layout, row Row, gen *ident.Generator) ([]byte, Row, error) {
	buf := make([]byte, l.RecordSize)
	buf[0] = schema.StatusActive

	var generated Row
	for _, f := range l.Fields {
		v := row[f.Name]

		if f.Name == schema.IDColumn && (v.IsNull() || v.ID().IsZero()) && gen != nil {
			v = IDValue(gen.Next())
			if generated == nil {
				generated = make(Row)
			}
			generated[f.Name] = v
		}
		if f.Type == schema.TypeUpdatedAt {
			v = Time(time.Now())
			if generated == nil {
				generated = make(Row)
			}
			generated[f.Name] = v
		}

		if v.IsNull() {
			buf[f.NullFlag] = 0x01
			continue
		}
		if err := encodeField(buf, f, v); err != nil {
			return nil, nil, err
		}
	}
	return buf, generated, nil
}

// Deserialize decodes a record buffer into a row. It returns (nil, nil) for
// a deleted record.
func Deserialize(l *schema.Layout, buf []byte) (Row, error) {
	if len(buf) != l.RecordSize {
		return nil, apperr.Newf(apperr.KindDeserialization,
			"record size mismatch: got %d bytes, want %d", len(buf), l.RecordSize).
			With("table", l.Schema.Table)
	}
	switch buf[0] {
	case schema.StatusDeleted:
		return nil, nil
	case schema.StatusActive:
	default:
		return nil, apperr.Newf(apperr.KindDeserialization,
			"corrupted row status byte 0x%02x", buf[0]).
			With("table", l.Schema.Table)
	}

	row := make(Row, len(l.Fields))
	for _, f := range l.Fields {
		if buf[f.NullFlag] == 0x01 {
			row[f.Name] = Null()
			continue
		}
		v, err := decodeField(buf, f)
		if err != nil {
			return nil, err
		}
		row[f.Name] = v
	}
	return row, nil
}

func mismatch(f schema.Field, v Value) error {
	return apperr.Newf(apperr.KindSerialization,
		"column %q expects %s, got %s", f.Name, f.Type, v.Kind()).
		With("column", f.Name)
}

func encodeField(buf []byte, f schema.Field, v Value) error {
	p := buf[f.Offset : f.Offset+f.Size]
	switch f.Type {
	case schema.TypeUniqueIdentifier:
		if v.Kind() != KindID {
			return mismatch(f, v)
		}
		id := v.ID()
		copy(p, id[:])

	case schema.TypeNumber:
		if v.Kind() != KindNumber {
			return mismatch(f, v)
		}
		binary.BigEndian.PutUint64(p, math.Float64bits(v.Number()))

	case schema.TypeDate, schema.TypeUpdatedAt:
		if v.Kind() != KindTime {
			return mismatch(f, v)
		}
		ms := float64(v.Time().UnixMilli())
		binary.BigEndian.PutUint64(p, math.Float64bits(ms))

	case schema.TypeBoolean:
		if v.Kind() != KindBool {
			return mismatch(f, v)
		}
		if v.Bool() {
			p[0] = 1
		}

	case schema.TypeCoordinates:
		if v.Kind() != KindCoordinates {
			return mismatch(f, v)
		}
		lat, lng := v.Coordinates()
		binary.BigEndian.PutUint64(p[0:8], math.Float64bits(lat))
		binary.BigEndian.PutUint64(p[8:16], math.Float64bits(lng))

	case schema.TypeText:
		if v.Kind() != KindText {
			return mismatch(f, v)
		}
		s := truncateText(v.Text(), f.Size-2)
		binary.BigEndian.PutUint16(p[0:2], uint16(len(s)))
		copy(p[2:], s)

	case schema.TypeBuffer:
		if v.Kind() != KindBytes {
			return mismatch(f, v)
		}
		// A Buffer column of declared length L stores exactly L-1 bytes.
		if len(v.Bytes()) != f.Size-1 {
			return apperr.Newf(apperr.KindInvalidBufferSize,
				"column %q expects exactly %d bytes, got %d", f.Name, f.Size-1, len(v.Bytes())).
				With("column", f.Name)
		}
		copy(p, v.Bytes())

	default:
		return apperr.Newf(apperr.KindInvalidColumnType,
			"unknown column type %q", f.Type).With("column", f.Name)
	}
	return nil
}

func decodeField(buf []byte, f schema.Field) (Value, error) {
	p := buf[f.Offset : f.Offset+f.Size]
	switch f.Type {
	case schema.TypeUniqueIdentifier:
		var id ident.ID
		copy(id[:], p)
		return IDValue(id), nil

	case schema.TypeNumber:
		return Number(math.Float64frombits(binary.BigEndian.Uint64(p))), nil

	case schema.TypeDate, schema.TypeUpdatedAt:
		ms := math.Float64frombits(binary.BigEndian.Uint64(p))
		return Time(time.UnixMilli(int64(ms))), nil

	case schema.TypeBoolean:
		return Bool(p[0] != 0), nil

	case schema.TypeCoordinates:
		lat := math.Float64frombits(binary.BigEndian.Uint64(p[0:8]))
		lng := math.Float64frombits(binary.BigEndian.Uint64(p[8:16]))
		return Coordinates(lat, lng), nil

	case schema.TypeText:
		n := int(binary.BigEndian.Uint16(p[0:2]))
		if n > f.Size-2 {
			return Value{}, apperr.Newf(apperr.KindDeserialization,
				"text column %q length prefix %d exceeds capacity %d", f.Name, n, f.Size-2).
				With("column", f.Name)
		}
		return Text(string(p[2 : 2+n])), nil

	case schema.TypeBuffer:
		out := make([]byte, f.Size-1)
		copy(out, p)
		return Bytes(out), nil

	default:
		return Value{}, apperr.Newf(apperr.KindInvalidColumnType,
			"unknown column type %q", f.Type).With("column", f.Name)
	}
}

// truncateText shortens s to at most max bytes, dropping trailing characters
// so the cut never lands inside a UTF-8 sequence. Truncation is silent;
// callers needing hard failure must validate upstream.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
