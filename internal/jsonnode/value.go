package jsonnode

import (
	"encoding/json"

	"github.com/wundergraph/astjson"
)

// Parse parses a JSON document into a mutable value tree. Strings and object
// keys are decoded up front, so the tree is safe for concurrent readers
// until it is written to.
func Parse(raw []byte) (*astjson.Value, error) {
	v, err := astjson.ParseBytes(raw)
	if err != nil {
		return nil, err
	}
	Settle(v)
	return v, nil
}

// Settle decodes the strings and object keys of v in place. Trees built by
// other means than Parse must be settled before goroutines share them.
func Settle(v *astjson.Value) {
	if v == nil {
		return
	}
	switch v.Type() {
	case astjson.TypeObject:
		obj, _ := v.Object()
		obj.Visit(func(_ []byte, e *astjson.Value) { Settle(e) })
	case astjson.TypeArray:
		for _, e := range v.GetArray() {
			Settle(e)
		}
	}
}

// FromAny converts a Go value, as produced by encoding/json or built by
// hand, into a value tree.
func FromAny(v any) (*astjson.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// ToAny converts v into the Go representation used by encoding/json.
// Missing values become nil.
func ToAny(v *astjson.Value) any {
	if IsNull(v) {
		return nil
	}
	var out any
	if err := json.Unmarshal(v.MarshalTo(nil), &out); err != nil {
		return nil
	}
	return out
}

// IsNull reports whether v is missing or a JSON null.
func IsNull(v *astjson.Value) bool {
	return v == nil || v.Type() == astjson.TypeNull
}

// OrNull returns v, or a JSON null for a missing value.
func OrNull(v *astjson.Value) *astjson.Value {
	if v == nil {
		return astjson.NullValue
	}
	return v
}

// Clone returns a deep copy of v that shares no memory with it.
func Clone(v *astjson.Value) *astjson.Value {
	if v == nil {
		return nil
	}
	out, err := Parse(v.MarshalTo(nil))
	if err != nil {
		return astjson.NullValue
	}
	return out
}

// Equal reports whether a and b encode to the same JSON.
func Equal(a, b *astjson.Value) bool {
	return string(OrNull(a).MarshalTo(nil)) == string(OrNull(b).MarshalTo(nil))
}
