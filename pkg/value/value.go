// Package value provides a small tagged representation of decoded JSON
// documents.
//
// Manifest and catalog decoding both read attacker-controlled documents whose
// fields may be missing or carry the wrong type. Rather than unmarshalling
// straight into structs (which silently zero mismatched fields in some cases
// and fails the whole document in others), decoders walk a Value and apply an
// explicit default per field.
package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable JSON value. The zero Value is Null.
type Value struct {
	kind   Kind
	b      bool
	num    json.Number
	str    string
	items  []Value
	fields map[string]Value
}

// ErrTrailingData is returned when a document holds more than one JSON value.
var ErrTrailingData = errors.New("unexpected data after JSON value")

// Parse decodes a single JSON document.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, ErrTrailingData
	}

	return FromInterface(raw)
}

// FromInterface converts the output of encoding/json (decoded with UseNumber)
// into a Value. Plain float64 and int values are accepted as well.
func FromInterface(raw interface{}) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return Value{kind: Bool, b: v}, nil
	case json.Number:
		return Value{kind: Number, num: v}, nil
	case float64:
		return Value{kind: Number, num: json.Number(fmt.Sprintf("%v", v))}, nil
	case int:
		return Value{kind: Number, num: json.Number(fmt.Sprintf("%d", v))}, nil
	case string:
		return Value{kind: String, str: v}, nil
	case []interface{}:
		items := make([]Value, 0, len(v))
		for _, item := range v {
			conv, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, conv)
		}
		return Value{kind: Array, items: items}, nil
	case map[string]interface{}:
		fields := make(map[string]Value, len(v))
		for key, item := range v {
			conv, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			fields[key] = conv
		}
		return Value{kind: Object, fields: fields}, nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON type %T", raw)
	}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null (including a missing field).
func (v Value) IsNull() bool { return v.kind == Null }

// IsObject reports whether v is an object.
func (v Value) IsObject() bool { return v.kind == Object }

// Field returns the named member of an object. Missing members and
// non-object receivers yield Null.
func (v Value) Field(name string) Value {
	if v.kind != Object {
		return Value{}
	}
	return v.fields[name]
}

// Has reports whether an object carries the named member.
func (v Value) Has(name string) bool {
	if v.kind != Object {
		return false
	}
	_, ok := v.fields[name]
	return ok
}

// Keys returns the member names of an object in sorted order.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Items returns the elements of an array, or nil for any other kind.
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	out := make([]Value, len(v.items))
	copy(out, v.items)
	return out
}

// Len returns the element count of an array or the member count of an object.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.items)
	case Object:
		return len(v.fields)
	default:
		return 0
	}
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.str, true
}

// StringOr returns the string held by v, or def for any other kind.
func (v Value) StringOr(def string) string {
	if s, ok := v.Str(); ok {
		return s
	}
	return def
}

// Boolean returns the bool held by v.
func (v Value) Boolean() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// Int64 returns the number held by v truncated toward zero. Fractional and
// exponent forms are accepted; values outside the int64 range clamp.
func (v Value) Int64() (int64, bool) {
	if v.kind != Number {
		return 0, false
	}
	if n, err := v.num.Int64(); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(string(v.num), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	switch {
	case math.IsNaN(f):
		return 0, false
	case f >= math.MaxInt64:
		return math.MaxInt64, true
	case f <= math.MinInt64:
		return math.MinInt64, true
	}
	return int64(f), true
}

// Int64Or returns the integer held by v, or def for any other kind.
func (v Value) Int64Or(def int64) int64 {
	if n, ok := v.Int64(); ok {
		return n
	}
	return def
}

// Interface converts v back into plain Go values (map[string]interface{},
// []interface{}, string, bool, json.Number or nil).
func (v Value) Interface() interface{} {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.num
	case String:
		return v.str
	case Array:
		out := make([]interface{}, 0, len(v.items))
		for _, item := range v.items {
			out = append(out, item.Interface())
		}
		return out
	case Object:
		out := make(map[string]interface{}, len(v.fields))
		for k, item := range v.fields {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes v with object members in sorted key order.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes a single JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
