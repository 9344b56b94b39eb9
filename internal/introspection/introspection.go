// Package introspection answers __schema, __type and __typename on the
// overall schema without calling any service.
package introspection

import (
	"fmt"
	"sort"
	"strings"

	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/schema"
)

// IsIntrospectionField reports whether a root field is answered locally.
func IsIntrospectionField(name string) bool {
	switch name {
	case "__schema", "__type", language.TypeNameField:
		return true
	}
	return false
}

// Resolver resolves introspection fields of a normalized tree.
type Resolver struct {
	schema *language.Schema
}

// New returns a Resolver over the overall schema.
func New(s *language.Schema) *Resolver {
	return &Resolver{schema: s}
}

// ResolveRoot returns the value of a root introspection field. rootType is
// the name of the operation's root type.
func (r *Resolver) ResolveRoot(tree *normalized.Tree, id normalized.ID, rootType string) (any, error) {
	f := tree.Field(id)
	switch f.Name {
	case language.TypeNameField:
		return rootType, nil
	case "__schema":
		return r.complete(tree, f, r.schema)
	case "__type":
		name, _ := argValue(f, "name").(string)
		def := r.schema.Types[name]
		if def == nil || !r.visible(def) {
			return nil, nil
		}
		return r.complete(tree, f, def)
	}
	return nil, fmt.Errorf("introspection: unknown root field %q", f.Name)
}

// complete builds the selection of f over source, an introspection object
// or a list of them.
func (r *Resolver) complete(tree *normalized.Tree, f *normalized.Field, source any) (any, error) {
	switch src := source.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]any, len(src))
		for i, item := range src {
			v, err := r.complete(tree, f, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	typeName := objectTypeName(source)
	out := make(map[string]any, len(f.Children))
	for _, id := range f.Children {
		child := tree.Field(id)
		if !child.HasObjectType(typeName) {
			continue
		}
		if child.Name == language.TypeNameField {
			out[child.ResultKey()] = typeName
			continue
		}
		v, err := r.resolve(source, child)
		if err != nil {
			return nil, err
		}
		if len(child.Children) > 0 {
			if v, err = r.complete(tree, child, v); err != nil {
				return nil, err
			}
		}
		out[child.ResultKey()] = v
	}
	return out, nil
}

func (r *Resolver) resolve(source any, f *normalized.Field) (any, error) {
	var (
		v  any
		ok bool
	)
	switch src := source.(type) {
	case *language.Schema:
		v, ok = r.schemaField(src, f.Name)
	case *language.Definition:
		v, ok = r.typeField(src, f)
	case *language.Type:
		v, ok = r.typeRefField(src, f)
	case *language.FieldDefinition:
		v, ok = fieldField(src, f)
	case *language.ArgumentDefinition:
		v, ok = inputValueField(src, f.Name)
	case *language.EnumValueDefinition:
		v, ok = enumValueField(src, f.Name)
	case *language.DirectiveDefinition:
		v, ok = directiveField(src, f)
	}
	if !ok {
		return nil, fmt.Errorf("introspection: cannot resolve %s on %s", f.Name, objectTypeName(source))
	}
	return v, nil
}

func objectTypeName(source any) string {
	switch source.(type) {
	case *language.Schema:
		return "__Schema"
	case *language.Definition, *language.Type:
		return "__Type"
	case *language.FieldDefinition:
		return "__Field"
	case *language.ArgumentDefinition:
		return "__InputValue"
	case *language.EnumValueDefinition:
		return "__EnumValue"
	case *language.DirectiveDefinition:
		return "__Directive"
	}
	return ""
}

// visible hides the gateway's own input types.
func (r *Resolver) visible(def *language.Definition) bool {
	return def.Position == nil || def.Position.Src == nil || def.Position.Src.Name != schema.Prelude.Name
}

func (r *Resolver) schemaField(s *language.Schema, field string) (any, bool) {
	switch field {
	case "description":
		return nil, true
	case "types":
		names := make([]string, 0, len(s.Types))
		for name, def := range s.Types {
			if r.visible(def) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		out := make([]any, len(names))
		for i, name := range names {
			out[i] = s.Types[name]
		}
		return out, true
	case "queryType":
		return definitionOrNil(s.Query), true
	case "mutationType":
		return definitionOrNil(s.Mutation), true
	case "subscriptionType":
		return definitionOrNil(s.Subscription), true
	case "directives":
		names := make([]string, 0, len(s.Directives))
		for name := range s.Directives {
			if !schema.IsGatewayDirective(name) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		out := make([]any, len(names))
		for i, name := range names {
			out[i] = s.Directives[name]
		}
		return out, true
	}
	return nil, false
}

func (r *Resolver) typeField(def *language.Definition, f *normalized.Field) (any, bool) {
	includeDeprecated := boolArg(f, "includeDeprecated")
	switch f.Name {
	case "kind":
		return string(def.Kind), true
	case "name":
		return def.Name, true
	case "description":
		return stringOrNil(def.Description), true
	case "specifiedByURL", "ofType":
		return nil, true
	case "isOneOf":
		if def.Kind != language.InputObject {
			return nil, true
		}
		return def.Directives.ForName("oneOf") != nil, true
	case "fields":
		if def.Kind != language.Object && def.Kind != language.Interface {
			return nil, true
		}
		out := []any{}
		for _, fd := range def.Fields {
			if strings.HasPrefix(fd.Name, "__") || (!includeDeprecated && deprecated(fd.Directives)) {
				continue
			}
			out = append(out, fd)
		}
		return out, true
	case "interfaces":
		if def.Kind != language.Object && def.Kind != language.Interface {
			return nil, true
		}
		out := []any{}
		for _, name := range def.Interfaces {
			if iface := r.schema.Types[name]; iface != nil {
				out = append(out, iface)
			}
		}
		return out, true
	case "possibleTypes":
		if def.Kind != language.Interface && def.Kind != language.Union {
			return nil, true
		}
		out := []any{}
		for _, pt := range r.schema.GetPossibleTypes(def) {
			out = append(out, pt)
		}
		return out, true
	case "enumValues":
		if def.Kind != language.Enum {
			return nil, true
		}
		out := []any{}
		for _, ev := range def.EnumValues {
			if !includeDeprecated && deprecated(ev.Directives) {
				continue
			}
			out = append(out, ev)
		}
		return out, true
	case "inputFields":
		if def.Kind != language.InputObject {
			return nil, true
		}
		out := []any{}
		for _, fd := range def.Fields {
			out = append(out, &language.ArgumentDefinition{
				Name:         fd.Name,
				Description:  fd.Description,
				DefaultValue: fd.DefaultValue,
				Type:         fd.Type,
				Directives:   fd.Directives,
			})
		}
		return out, true
	}
	return nil, false
}

// typeRefField resolves __Type fields of a possibly wrapped type.
func (r *Resolver) typeRefField(t *language.Type, f *normalized.Field) (any, bool) {
	switch {
	case t.NonNull:
		unwrapped := *t
		unwrapped.NonNull = false
		return wrapperField("NON_NULL", &unwrapped, f.Name)
	case t.Elem != nil:
		return wrapperField("LIST", t.Elem, f.Name)
	}
	def := r.schema.Types[t.NamedType]
	if def == nil {
		return nil, true
	}
	return r.typeField(def, f)
}

func wrapperField(kind string, ofType *language.Type, field string) (any, bool) {
	switch field {
	case "kind":
		return kind, true
	case "ofType":
		return ofType, true
	case "name", "description", "specifiedByURL", "fields", "interfaces",
		"possibleTypes", "enumValues", "inputFields", "isOneOf":
		return nil, true
	}
	return nil, false
}

func fieldField(fd *language.FieldDefinition, f *normalized.Field) (any, bool) {
	switch f.Name {
	case "name":
		return fd.Name, true
	case "description":
		return stringOrNil(fd.Description), true
	case "args":
		includeDeprecated := boolArg(f, "includeDeprecated")
		out := []any{}
		for _, arg := range fd.Arguments {
			if !includeDeprecated && deprecated(arg.Directives) {
				continue
			}
			out = append(out, arg)
		}
		return out, true
	case "type":
		return fd.Type, true
	case "isDeprecated":
		return deprecated(fd.Directives), true
	case "deprecationReason":
		return deprecationReason(fd.Directives), true
	}
	return nil, false
}

func inputValueField(arg *language.ArgumentDefinition, field string) (any, bool) {
	switch field {
	case "name":
		return arg.Name, true
	case "description":
		return stringOrNil(arg.Description), true
	case "type":
		return arg.Type, true
	case "defaultValue":
		if arg.DefaultValue == nil {
			return nil, true
		}
		return arg.DefaultValue.String(), true
	case "isDeprecated":
		return deprecated(arg.Directives), true
	case "deprecationReason":
		return deprecationReason(arg.Directives), true
	}
	return nil, false
}

func enumValueField(ev *language.EnumValueDefinition, field string) (any, bool) {
	switch field {
	case "name":
		return ev.Name, true
	case "description":
		return stringOrNil(ev.Description), true
	case "isDeprecated":
		return deprecated(ev.Directives), true
	case "deprecationReason":
		return deprecationReason(ev.Directives), true
	}
	return nil, false
}

func directiveField(d *language.DirectiveDefinition, f *normalized.Field) (any, bool) {
	switch f.Name {
	case "name":
		return d.Name, true
	case "description":
		return stringOrNil(d.Description), true
	case "isRepeatable":
		return d.IsRepeatable, true
	case "locations":
		out := make([]any, len(d.Locations))
		for i, l := range d.Locations {
			out[i] = string(l)
		}
		return out, true
	case "args":
		out := []any{}
		for _, arg := range d.Arguments {
			out = append(out, arg)
		}
		return out, true
	}
	return nil, false
}

func deprecated(directives language.DirectiveList) bool {
	return directives.ForName("deprecated") != nil
}

func deprecationReason(directives language.DirectiveList) any {
	d := directives.ForName("deprecated")
	if d == nil {
		return nil
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return "No longer supported"
}

func definitionOrNil(def *language.Definition) any {
	if def == nil {
		return nil
	}
	return def
}

func stringOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func argValue(f *normalized.Field, name string) any {
	arg := f.Argument(name)
	if arg == nil || arg.Value == nil {
		return nil
	}
	v, err := arg.Value.Value(nil)
	if err != nil {
		return nil
	}
	return v
}

func boolArg(f *normalized.Field, name string) bool {
	b, _ := argValue(f, name).(bool)
	return b
}
