package resource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ValueKind discriminates the variants of Value
type ValueKind uint8

const (
	// NullKind is the JSON null (and the zero Value)
	NullKind ValueKind = iota
	// StringKind is a JSON string
	StringKind
	// NumberKind is a JSON number, kept as its literal
	NumberKind
	// BoolKind is a JSON boolean
	BoolKind
	// ArrayKind is a JSON array
	ArrayKind
	// ObjectKind is a JSON object
	ObjectKind
	// TimeKind is a native timestamp produced by the date transform
	TimeKind
)

// String returns the string representation of the value kind
func (k ValueKind) String() string {
	switch k {
	case NullKind:
		return "null"
	case StringKind:
		return "string"
	case NumberKind:
		return "number"
	case BoolKind:
		return "bool"
	case ArrayKind:
		return "array"
	case ObjectKind:
		return "object"
	case TimeKind:
		return "time"
	default:
		return "unknown"
	}
}

// Value is a tagged union holding an attribute value. The zero Value is null.
type Value struct {
	kind ValueKind
	str  string
	b    bool
	t    time.Time
	arr  []Value
	obj  map[string]Value
}

// Null returns the null value
func Null() Value { return Value{} }

// String returns a string value
func String(s string) Value { return Value{kind: StringKind, str: s} }

// Number returns a number value from its JSON literal
func Number(n json.Number) Value { return Value{kind: NumberKind, str: string(n)} }

// Int returns a number value holding an integer
func Int(n int64) Value { return Value{kind: NumberKind, str: strconv.FormatInt(n, 10)} }

// Float returns a number value holding a float
func Float(f float64) Value {
	return Value{kind: NumberKind, str: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Bool returns a boolean value
func Bool(b bool) Value { return Value{kind: BoolKind, b: b} }

// Time returns a timestamp value
func Time(t time.Time) Value { return Value{kind: TimeKind, t: t} }

// Array returns an array value
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: ArrayKind, arr: items}
}

// Object returns an object value
func Object(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: ObjectKind, obj: fields}
}

// Kind returns the variant held by v
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.kind == NullKind }

// AsString returns the string held by v
func (v Value) AsString() (string, bool) {
	if v.kind != StringKind {
		return "", false
	}
	return v.str, true
}

// AsNumber returns the number literal held by v
func (v Value) AsNumber() (json.Number, bool) {
	if v.kind != NumberKind {
		return "", false
	}
	return json.Number(v.str), true
}

// AsInt returns the integer held by v
func (v Value) AsInt() (int64, bool) {
	if v.kind != NumberKind {
		return 0, false
	}
	n, err := strconv.ParseInt(v.str, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(v.str, 64)
		if ferr != nil || f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	}
	return n, true
}

// AsFloat returns the float held by v
func (v Value) AsFloat() (float64, bool) {
	if v.kind != NumberKind {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.str, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AsBool returns the boolean held by v
func (v Value) AsBool() (bool, bool) {
	if v.kind != BoolKind {
		return false, false
	}
	return v.b, true
}

// AsTime returns the timestamp held by v
func (v Value) AsTime() (time.Time, bool) {
	if v.kind != TimeKind {
		return time.Time{}, false
	}
	return v.t, true
}

// AsArray returns the items held by v
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != ArrayKind {
		return nil, false
	}
	return v.arr, true
}

// AsObject returns the fields held by v
func (v Value) AsObject() (map[string]Value, bool) {
	if v.kind != ObjectKind {
		return nil, false
	}
	return v.obj, true
}

// FromJSON converts a decoded JSON tree into a Value. It accepts the shapes produced by
// encoding/json (with or without UseNumber) as well as Go integers and string slices.
func FromJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case json.Number:
		return Number(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case bool:
		return Bool(x), nil
	case time.Time:
		return Time(x), nil
	case []string:
		items := make([]Value, len(x))
		for i, s := range x {
			items[i] = String(s)
		}
		return Array(items...), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			v, err := FromJSON(item)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			v, err := FromJSON(item)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			fields[k] = v
		}
		return Object(fields), nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON value of type %T", raw)
	}
}

// Interface converts v back into a tree encodable by encoding/json. Timestamps are
// returned as time.Time; the formatter is responsible for their wire form.
func (v Value) Interface() any {
	switch v.kind {
	case StringKind:
		return v.str
	case NumberKind:
		return json.Number(v.str)
	case BoolKind:
		return v.b
	case TimeKind:
		return v.t
	case ArrayKind:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case ObjectKind:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal reports whether v and o hold the same variant and contents
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case NullKind:
		return true
	case StringKind:
		return v.str == o.str
	case NumberKind:
		if v.str == o.str {
			return true
		}
		a, aok := v.AsFloat()
		b, bok := o.AsFloat()
		return aok && bok && a == b
	case BoolKind:
		return v.b == o.b
	case TimeKind:
		return v.t.Equal(o.t)
	case ArrayKind:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case ObjectKind:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, item := range v.obj {
			other, ok := o.obj[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	}
	return false
}

// GoString renders v compactly for debugging and CLI output
func (v Value) GoString() string {
	switch v.kind {
	case StringKind:
		return strconv.Quote(v.str)
	case TimeKind:
		return v.t.Format(time.RFC3339)
	case ObjectKind:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b bytes.Buffer
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %s", k, v.obj[k].GoString())
		}
		b.WriteByte('}')
		return b.String()
	case ArrayKind:
		var b bytes.Buffer
		b.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(item.GoString())
		}
		b.WriteByte(']')
		return b.String()
	default:
		data, _ := json.Marshal(v.Interface())
		return string(data)
	}
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler, preserving number literals
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromJSON(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
