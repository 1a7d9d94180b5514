package serialization

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrUnsupportedValue is returned by Encode for values that cannot be stored
// in an encrypted column.
var ErrUnsupportedValue = errors.New("unsupported value")

// Kind tags the Go type of an encoded value so Decode can restore it.
type Kind string

// Numeric kinds carry the exact Go type name so a round trip returns the same
// type that was encoded.
const (
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindInt8    Kind = "int8"
	KindInt16   Kind = "int16"
	KindInt32   Kind = "int32"
	KindInt64   Kind = "int64"
	KindUint    Kind = "uint"
	KindUint8   Kind = "uint8"
	KindUint16  Kind = "uint16"
	KindUint32  Kind = "uint32"
	KindUint64  Kind = "uint64"
	KindFloat32 Kind = "float32"
	KindFloat64 Kind = "float64"
	KindBool    Kind = "bool"
	KindTime    Kind = "time"
	KindBytes   Kind = "bytes"
	KindJSON    Kind = "json"

	// kindFloat is the untyped float kind written by earlier releases.
	kindFloat Kind = "float"
)

// envelope is the plaintext that gets encrypted: {"t": kind, "v": value}.
type envelope struct {
	Kind  Kind            `json:"t"`
	Value json.RawMessage `json:"v"`
}

// Encode serializes a storage scalar together with its kind. Numbers and
// strings decode to the same builtin type; named types decode to their
// underlying builtin type. Maps and slices are kept as JSON and decode to their
// generic encoding/json form.
func Encode(v any) ([]byte, error) {
	kind, payload, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %v", ErrUnsupportedValue, v, err)
	}
	return json.Marshal(envelope{Kind: kind, Value: raw})
}

func encodeValue(v any) (Kind, any, error) {
	switch t := v.(type) {
	case nil:
		return "", nil, fmt.Errorf("%w: nil", ErrUnsupportedValue)
	case string:
		return KindString, t, nil
	case bool:
		return KindBool, t, nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return KindInt64, n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return KindFloat64, f, nil
	case time.Time:
		return KindTime, t.UTC().Format(time.RFC3339Nano), nil
	case []byte:
		return KindBytes, base64.StdEncoding.EncodeToString(t), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return KindString, rv.String(), nil
	case reflect.Bool:
		return KindBool, rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Kind(rv.Kind().String()), rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Kind(rv.Kind().String()), rv.Uint(), nil
	case reflect.Float32:
		return KindFloat32, float32(rv.Float()), nil
	case reflect.Float64:
		return KindFloat64, rv.Float(), nil
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return KindJSON, v, nil
	case reflect.Ptr:
		if rv.IsNil() {
			return "", nil, fmt.Errorf("%w: nil %T", ErrUnsupportedValue, v)
		}
		return encodeValue(rv.Elem().Interface())
	default:
		return "", nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// Decode restores a value produced by Encode.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Value) == 0 {
		return nil, fmt.Errorf("decode envelope: missing value")
	}

	switch env.Kind {
	case KindString:
		return decodeAs[string](env)
	case KindBool:
		return decodeAs[bool](env)
	case KindInt:
		return decodeAs[int](env)
	case KindInt8:
		return decodeAs[int8](env)
	case KindInt16:
		return decodeAs[int16](env)
	case KindInt32:
		return decodeAs[int32](env)
	case KindInt64:
		return decodeAs[int64](env)
	case KindUint:
		return decodeAs[uint](env)
	case KindUint8:
		return decodeAs[uint8](env)
	case KindUint16:
		return decodeAs[uint16](env)
	case KindUint32:
		return decodeAs[uint32](env)
	case KindUint64:
		return decodeAs[uint64](env)
	case KindFloat32:
		return decodeAs[float32](env)
	case KindFloat64, kindFloat:
		return decodeAs[float64](env)
	case KindTime:
		var s string
		if err := unmarshalInto(env, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
		}
		return t, nil
	case KindBytes:
		var s string
		if err := unmarshalInto(env, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
		}
		return b, nil
	case KindJSON:
		return decodeAs[any](env)
	default:
		return nil, fmt.Errorf("decode envelope: unknown kind %q", env.Kind)
	}
}

func unmarshalInto(env envelope, dst any) error {
	if err := json.Unmarshal(env.Value, dst); err != nil {
		return fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return nil
}

func decodeAs[T any](env envelope) (any, error) {
	var v T
	if err := unmarshalInto(env, &v); err != nil {
		return nil, err
	}
	return v, nil
}
