package server

import (
	"encoding/base64"
	"time"

	"github.com/reajuria/bindb/internal/apperr"
	"github.com/reajuria/bindb/internal/codec"
	"github.com/reajuria/bindb/internal/ident"
	"github.com/reajuria/bindb/internal/schema"
)

// rowFromJSON converts a decoded JSON object into a typed row, validating
// every cell against the table layout. Unknown columns are rejected.
func rowFromJSON(l *schema.Layout, data map[string]any) (codec.Row, error) {
	row := make(codec.Row, len(data))
	for name, raw := range data {
		f, ok := l.Field(name)
		if !ok {
			return nil, apperr.Newf(apperr.KindValidation, "unknown column %q", name).
				With("column", name)
		}
		v, err := valueFromJSON(f, raw)
		if err != nil {
			return nil, err
		}
		row[name] = v
	}
	return row, nil
}

func valueFromJSON(f schema.Field, raw any) (codec.Value, error) {
	if raw == nil {
		return codec.Null(), nil
	}
	switch f.Type {
	case schema.TypeUniqueIdentifier:
		s, ok := raw.(string)
		if !ok {
			return codec.Value{}, typeError(f, "hex string")
		}
		id, err := ident.Parse(s)
		if err != nil {
			return codec.Value{}, err
		}
		return codec.IDValue(id), nil

	case schema.TypeText:
		s, ok := raw.(string)
		if !ok {
			return codec.Value{}, typeError(f, "string")
		}
		return codec.Text(s), nil

	case schema.TypeNumber:
		n, ok := raw.(float64)
		if !ok {
			return codec.Value{}, typeError(f, "number")
		}
		return codec.Number(n), nil

	case schema.TypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return codec.Value{}, typeError(f, "boolean")
		}
		return codec.Bool(b), nil

	case schema.TypeDate, schema.TypeUpdatedAt:
		switch v := raw.(type) {
		case float64:
			return codec.Time(time.UnixMilli(int64(v))), nil
		case string:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return codec.Value{}, typeError(f, "RFC3339 timestamp or epoch milliseconds")
			}
			return codec.Time(t), nil
		default:
			return codec.Value{}, typeError(f, "RFC3339 timestamp or epoch milliseconds")
		}

	case schema.TypeCoordinates:
		obj, ok := raw.(map[string]any)
		if !ok {
			return codec.Value{}, typeError(f, "{lat, lng} object")
		}
		lat, latOK := obj["lat"].(float64)
		lng, lngOK := obj["lng"].(float64)
		if !latOK || !lngOK {
			return codec.Value{}, typeError(f, "{lat, lng} object")
		}
		return codec.Coordinates(lat, lng), nil

	case schema.TypeBuffer:
		s, ok := raw.(string)
		if !ok {
			return codec.Value{}, typeError(f, "base64 string")
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return codec.Value{}, apperr.Wrap(apperr.KindValidation,
				"column "+f.Name+" is not valid base64", err).With("column", f.Name)
		}
		return codec.Bytes(b), nil

	default:
		return codec.Value{}, apperr.Newf(apperr.KindInvalidColumnType,
			"unknown column type %q", f.Type).With("column", f.Name)
	}
}

func typeError(f schema.Field, want string) error {
	return apperr.Newf(apperr.KindValidation,
		"column %q expects %s", f.Name, want).With("column", f.Name)
}

// rowToJSON converts a typed row back to its JSON shape.
func rowToJSON(l *schema.Layout, row codec.Row) map[string]any {
	if row == nil {
		return nil
	}
	out := make(map[string]any, len(row))
	for _, f := range l.Fields {
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		out[f.Name] = valueToJSON(v)
	}
	return out
}

func valueToJSON(v codec.Value) any {
	switch v.Kind() {
	case codec.KindNull:
		return nil
	case codec.KindID:
		return v.ID().String()
	case codec.KindText:
		return v.Text()
	case codec.KindNumber:
		return v.Number()
	case codec.KindBool:
		return v.Bool()
	case codec.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case codec.KindCoordinates:
		lat, lng := v.Coordinates()
		return map[string]any{"lat": lat, "lng": lng}
	case codec.KindBytes:
		return base64.StdEncoding.EncodeToString(v.Bytes())
	default:
		return nil
	}
}
