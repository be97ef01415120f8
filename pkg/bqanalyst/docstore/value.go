package docstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the runtime type of a document field value.
// Exactly six kinds are supported; anything else is rejected at the
// encode boundary.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindBytes
	KindString
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the six supported field types.
// The zero Value is the null value.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	by   []byte
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Double returns a floating-point value.
func Double(v float64) Value { return Value{kind: KindDouble, f: v} }

// Bytes returns a byte-sequence value. The slice is not copied.
func Bytes(v []byte) Value { return Value{kind: KindBytes, by: v} }

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// ErrUnsupportedType is returned by FromAny for values outside the six
// supported kinds.
var ErrUnsupportedType = fmt.Errorf("docstore: unsupported field type")

// FromAny converts a native Go value into a Value.
// Supported inputs: nil, bool, int, int32, int64, float32, float64,
// []byte, string. Anything else fails with ErrUnsupportedType rather
// than degrading to a string representation.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case float32:
		return Double(float64(val)), nil
	case float64:
		return Double(val), nil
	case []byte:
		return Bytes(val), nil
	case string:
		return String(val), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Any returns the native Go representation: nil, bool, int64, float64,
// []byte, or string.
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindDouble:
		return v.f
	case KindBytes:
		return v.by
	case KindString:
		return v.s
	default:
		return nil
	}
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolVal returns the boolean payload (false for other kinds).
func (v Value) BoolVal() bool { return v.b }

// IntVal returns the integer payload (0 for other kinds).
func (v Value) IntVal() int64 { return v.i }

// DoubleVal returns the float payload (0 for other kinds).
func (v Value) DoubleVal() float64 { return v.f }

// BytesVal returns the byte payload (nil for other kinds).
func (v Value) BytesVal() []byte { return v.by }

// StringVal returns the string payload ("" for other kinds).
func (v Value) StringVal() string { return v.s }

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindDouble:
		return v.f == o.f
	case KindBytes:
		return string(v.by) == string(o.by)
	case KindString:
		return v.s == o.s
	}
	return false
}

// Compare orders two values for order-by evaluation. Values of different
// kinds order by kind; same-kind values order by payload. Ordering across
// kinds only needs to be total and stable, not meaningful.
func (v Value) Compare(o Value) int {
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindBool:
		if v.b == o.b {
			return 0
		}
		if !v.b {
			return -1
		}
		return 1
	case KindInt:
		switch {
		case v.i < o.i:
			return -1
		case v.i > o.i:
			return 1
		}
	case KindDouble:
		switch {
		case v.f < o.f:
			return -1
		case v.f > o.f:
			return 1
		}
	case KindBytes:
		switch {
		case string(v.by) < string(o.by):
			return -1
		case string(v.by) > string(o.by):
			return 1
		}
	case KindString:
		switch {
		case v.s < o.s:
			return -1
		case v.s > o.s:
			return 1
		}
	}
	return 0
}

// Wire format mirrors the document database's typed-field shape: every
// value serializes as a single-key object tagging its runtime type.
// Integers travel as decimal strings and bytes as base64 text so the
// round trip is exact regardless of the transport's number handling.
type wireValue struct {
	Null   *struct{} `json:"nullValue,omitempty"`
	Bool   *bool     `json:"booleanValue,omitempty"`
	Int    *string   `json:"integerValue,omitempty"`
	Double *float64  `json:"doubleValue,omitempty"`
	Bytes  *string   `json:"bytesValue,omitempty"`
	String *string   `json:"stringValue,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var w wireValue
	switch v.kind {
	case KindNull:
		return []byte(`{"nullValue":null}`), nil
	case KindBool:
		w.Bool = &v.b
	case KindInt:
		s := strconv.FormatInt(v.i, 10)
		w.Int = &s
	case KindDouble:
		w.Double = &v.f
	case KindBytes:
		s := base64.StdEncoding.EncodeToString(v.by)
		w.Bytes = &s
	case KindString:
		w.String = &v.s
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode field value: %w", err)
	}
	if _, ok := raw["nullValue"]; ok {
		*v = Null()
		return nil
	}
	if r, ok := raw["booleanValue"]; ok {
		var b bool
		if err := json.Unmarshal(r, &b); err != nil {
			return fmt.Errorf("decode boolean field: %w", err)
		}
		*v = Bool(b)
		return nil
	}
	if r, ok := raw["integerValue"]; ok {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return fmt.Errorf("decode integer field: %w", err)
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parse integer field: %w", err)
		}
		*v = Int(i)
		return nil
	}
	if r, ok := raw["doubleValue"]; ok {
		var f float64
		if err := json.Unmarshal(r, &f); err != nil {
			return fmt.Errorf("decode double field: %w", err)
		}
		*v = Double(f)
		return nil
	}
	if r, ok := raw["bytesValue"]; ok {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return fmt.Errorf("decode bytes field: %w", err)
		}
		by, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("decode base64 bytes field: %w", err)
		}
		*v = Bytes(by)
		return nil
	}
	if r, ok := raw["stringValue"]; ok {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return fmt.Errorf("decode string field: %w", err)
		}
		*v = String(s)
		return nil
	}
	return fmt.Errorf("decode field value: no recognized type tag")
}

// Fields is the flat field map of one document.
type Fields map[string]Value

// EncodeFields serializes a field map to its wire form.
func EncodeFields(f Fields) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return data, nil
}

// DecodeFields parses a wire-form field map.
func DecodeFields(data []byte) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if f == nil {
		f = Fields{}
	}
	return f, nil
}

// Native converts the field map to native Go values, for backends whose
// client libraries take untyped maps.
func (f Fields) Native() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = v.Any()
	}
	return out
}

// FieldsFromNative converts a native map to a field map, failing on any
// unsupported value type.
func FieldsFromNative(m map[string]any) (Fields, error) {
	out := make(Fields, len(m))
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// Clone returns a deep copy of the field map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		if v.kind == KindBytes {
			by := make([]byte, len(v.by))
			copy(by, v.by)
			v.by = by
		}
		out[k] = v
	}
	return out
}
