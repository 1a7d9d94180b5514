package attribute

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
)

// CastKind names the conversion applied between a stored value and the value
// seen by application code.
type CastKind string

const (
	CastString   CastKind = "string"
	CastInt      CastKind = "int"
	CastFloat    CastKind = "float"
	CastBool     CastKind = "bool"
	CastJSON     CastKind = "json"
	CastDate     CastKind = "date"
	CastDateTime CastKind = "datetime"
	CastEnum     CastKind = "enum"
	CastClass    CastKind = "class"
)

const (
	// DefaultDateTimeFormat is the storage layout of datetime attributes.
	DefaultDateTimeFormat = "2006-01-02 15:04:05"
	// DateFormat is the storage layout of date attributes.
	DateFormat = "2006-01-02"
	// SerializeDateFormat is the layout of dates in ToMap output.
	SerializeDateFormat = "2006-01-02T15:04:05.000000Z"
)

// ClassCaster converts an attribute to and from a custom application type.
type ClassCaster interface {
	// Get converts the raw stored value to the application value.
	Get(key string, raw any) (any, error)
	// Set converts an application value to the attributes to store. The
	// returned map may write more than one attribute.
	Set(key string, value any) (map[string]any, error)
}

// Cast is the cast declared for one field.
type Cast struct {
	Kind  CastKind
	Enum  []string
	Class ClassCaster
}

// castValue converts a stored value for reading. Date kinds are handled by
// parseDate. Nil and empty strings are returned unchanged.
func castValue(key string, c Cast, v any) (any, error) {
	if v == nil || v == "" {
		return v, nil
	}
	switch c.Kind {
	case CastString:
		return toString(v), nil
	case CastInt:
		n, err := toInt(v)
		if err != nil {
			return nil, newCastError(key, c.Kind, v, err)
		}
		return n, nil
	case CastFloat:
		f, err := toFloat(v)
		if err != nil {
			return nil, newCastError(key, c.Kind, v, err)
		}
		return f, nil
	case CastBool:
		b, err := toBool(v)
		if err != nil {
			return nil, newCastError(key, c.Kind, v, err)
		}
		return b, nil
	case CastJSON:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, newCastError(key, c.Kind, v, err)
		}
		return out, nil
	case CastEnum:
		s := toString(v)
		if !slices.Contains(c.Enum, s) {
			return nil, fmt.Errorf("%w: '%s' is not a valid value for '%s'", ErrInvalidEnumValue, s, key)
		}
		return s, nil
	case CastClass:
		out, err := c.Class.Get(key, v)
		if err != nil {
			return nil, newCastError(key, c.Kind, v, err)
		}
		return out, nil
	default:
		return v, nil
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint:
		return int64(t), nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", t)
		}
		return int64(t), nil
	case float32:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		n, err := toInt(v)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(t)
	default:
		n, err := toInt(v)
		if err != nil {
			return false, err
		}
		return n != 0, nil
	}
}

var dateInputLayouts = []string{
	time.RFC3339Nano,
	DefaultDateTimeFormat,
	SerializeDateFormat,
	DateFormat,
}

// parseDate converts a stored or user supplied value to a time.Time in UTC.
func parseDate(v any, storageLayout string) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return t.UTC(), nil
	case string:
		layouts := dateInputLayouts
		if storageLayout != DefaultDateTimeFormat {
			layouts = append([]string{storageLayout}, layouts...)
		}
		for _, layout := range layouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized date %q", t)
	default:
		n, err := toInt(v)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(n, 0).UTC(), nil
	}
}

// storageDate formats v with the storage layout of the date cast kind.
func storageDate(v any, kind CastKind, layout string) (string, error) {
	t, err := parseDate(v, layout)
	if err != nil {
		return "", err
	}
	if kind == CastDate {
		return t.Format(DateFormat), nil
	}
	return t.Format(layout), nil
}
