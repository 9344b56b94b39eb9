package normalized

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	language "github.com/russellyou/nadel/internal/language"
)

// ValueFromAny builds a literal for v, a JSON-decoded value, read as an
// input of type typ. The schema resolves enum and input object types; both
// may be nil, in which case the literal kind follows the Go type of v.
func ValueFromAny(v any, typ *language.Type, s *language.Schema) *language.Value {
	if v == nil {
		return &language.Value{Kind: language.NullValue, Raw: "null", ExpectedType: typ}
	}
	if typ != nil && typ.Elem != nil {
		items, ok := v.([]any)
		if !ok {
			// Input coercion accepts a single item for a list type.
			items = []any{v}
		}
		out := &language.Value{Kind: language.ListValue, ExpectedType: typ}
		for _, item := range items {
			out.Children = append(out.Children, &language.ChildValue{Value: ValueFromAny(item, typ.Elem, s)})
		}
		return out
	}

	var def *language.Definition
	if typ != nil && s != nil {
		def = s.Types[typ.Name()]
	}
	out := &language.Value{ExpectedType: typ, Definition: def}
	switch x := v.(type) {
	case map[string]any:
		out.Kind = language.ObjectValue
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			var fieldType *language.Type
			if def != nil {
				if fd := def.Fields.ForName(k); fd != nil {
					fieldType = fd.Type
				}
			}
			out.Children = append(out.Children, &language.ChildValue{Name: k, Value: ValueFromAny(x[k], fieldType, s)})
		}
	case []any:
		out.Kind = language.ListValue
		for _, item := range x {
			out.Children = append(out.Children, &language.ChildValue{Value: ValueFromAny(item, nil, s)})
		}
	case string:
		out.Raw = x
		out.Kind = language.StringValue
		if def != nil && def.Kind == language.Enum {
			out.Kind = language.EnumValue
		}
	case bool:
		out.Kind = language.BooleanValue
		out.Raw = strconv.FormatBool(x)
	case float64:
		if x == math.Trunc(x) && !isFloat(def) && math.Abs(x) < 1<<53 {
			out.Kind = language.IntValue
			out.Raw = strconv.FormatInt(int64(x), 10)
		} else {
			out.Kind = language.FloatValue
			out.Raw = strconv.FormatFloat(x, 'g', -1, 64)
		}
	case int:
		out.Kind = language.IntValue
		out.Raw = strconv.Itoa(x)
	case int64:
		out.Kind = language.IntValue
		out.Raw = strconv.FormatInt(x, 10)
	case json.Number:
		out.Raw = x.String()
		out.Kind = language.FloatValue
		if _, err := x.Int64(); err == nil && !isFloat(def) {
			out.Kind = language.IntValue
		}
	default:
		out.Kind = language.StringValue
		out.Raw = fmt.Sprint(x)
	}
	return out
}

func isFloat(def *language.Definition) bool { return def != nil && def.Name == "Float" }

// substitute replaces variables inside v with literals built from vars. The
// second result is false when v is a variable absent from vars, which
// means the argument must be left out.
func substitute(v *language.Value, vars map[string]any, s *language.Schema) (*language.Value, bool) {
	if v == nil {
		return nil, false
	}
	switch v.Kind {
	case language.Variable:
		val, ok := vars[v.Raw]
		if !ok {
			return nil, false
		}
		typ := v.ExpectedType
		if typ == nil && v.VariableDefinition != nil {
			typ = v.VariableDefinition.Type
		}
		return ValueFromAny(val, typ, s), true
	case language.ListValue, language.ObjectValue:
		out := *v
		out.Children = nil
		for _, child := range v.Children {
			cv, ok := substitute(child.Value, vars, s)
			if !ok {
				if v.Kind == language.ListValue {
					cv = &language.Value{Kind: language.NullValue, Raw: "null"}
				} else {
					continue
				}
			}
			out.Children = append(out.Children, &language.ChildValue{Name: child.Name, Value: cv})
		}
		return &out, true
	default:
		return v, true
	}
}
