// Package codec serializes rows to and from fixed-width record buffers.
package codec

import (
	"fmt"
	"time"

	"github.com/reajuria/bindb/internal/ident"
)

// Kind tags the closed set of cell value variants.
type Kind uint8

const (
	KindNull Kind = iota
	KindID
	KindText
	KindNumber
	KindBool
	KindTime
	KindCoordinates
	KindBytes
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindID:
		return "id"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindCoordinates:
		return "coordinates"
	case KindBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Value is one cell of a row: a tagged union over the closed variant set.
// The zero Value is null.
type Value struct {
	kind  Kind
	id    ident.ID
	str   string
	num   float64
	b     bool
	t     time.Time
	lat   float64
	lng   float64
	bytes []byte
}

// Null returns the null value.
func Null() Value { return Value{} }

// IDValue wraps a record id.
func IDValue(id ident.ID) Value { return Value{kind: KindID, id: id} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// Number wraps a float64.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time wraps a timestamp. Sub-millisecond precision is not preserved on disk.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Coordinates wraps a lat/lng pair.
func Coordinates(lat, lng float64) Value {
	return Value{kind: KindCoordinates, lat: lat, lng: lng}
}

// Bytes wraps a raw byte slice.
func Bytes(b []byte) Value { return Value{kind: KindBytes, bytes: b} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// ID returns the id variant.
func (v Value) ID() ident.ID { return v.id }

// Text returns the text variant.
func (v Value) Text() string { return v.str }

// Number returns the number variant.
func (v Value) Number() float64 { return v.num }

// Bool returns the bool variant.
func (v Value) Bool() bool { return v.b }

// Time returns the time variant.
func (v Value) Time() time.Time { return v.t }

// Coordinates returns the lat/lng variant.
func (v Value) Coordinates() (lat, lng float64) { return v.lat, v.lng }

// Bytes returns the raw-bytes variant.
func (v Value) Bytes() []byte { return v.bytes }

// Equal reports deep equality of two values. Times compare at millisecond
// precision, matching the on-disk encoding.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindID:
		return v.id == o.id
	case KindText:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindTime:
		return v.t.UnixMilli() == o.t.UnixMilli()
	case KindCoordinates:
		return v.lat == o.lat && v.lng == o.lng
	case KindBytes:
		return string(v.bytes) == string(o.bytes)
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindID:
		return v.id.String()
	case KindText:
		return v.str
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindCoordinates:
		return fmt.Sprintf("(%g,%g)", v.lat, v.lng)
	case KindBytes:
		return fmt.Sprintf("%d bytes", len(v.bytes))
	}
	return "unknown"
}

// Row maps column names to cell values.
type Row map[string]Value

// Copy returns a shallow copy of the row.
func (r Row) Copy() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with patch applied on top.
func (r Row) Merge(patch Row) Row {
	out := r.Copy()
	for k, v := range patch {
		out[k] = v
	}
	return out
}
