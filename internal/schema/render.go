package schema

import (
	"sort"
	"strings"

	language "github.com/russellyou/nadel/internal/language"
)

// Render produces the client-facing SDL of an overall schema: built-in
// definitions are left out and gateway directives are stripped.
// Deterministic ordering: type and directive names sorted lexicographically.
func Render(s *language.Schema) string {
	if s == nil {
		return ""
	}
	doc := &language.SchemaDocument{}

	typeNames := make([]string, 0, len(s.Types))
	for name, def := range s.Types {
		if def.BuiltIn {
			continue
		}
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)
	for _, name := range typeNames {
		doc.Definitions = append(doc.Definitions, stripDefinition(s.Types[name]))
	}

	directiveNames := make([]string, 0, len(s.Directives))
	for name, d := range s.Directives {
		if d.Position != nil && d.Position.Src != nil && d.Position.Src.BuiltIn {
			continue
		}
		directiveNames = append(directiveNames, name)
	}
	sort.Strings(directiveNames)
	for _, name := range directiveNames {
		doc.Directives = append(doc.Directives, s.Directives[name])
	}

	if def := customRoots(s); def != nil {
		doc.Schema = append(doc.Schema, def)
	}
	return language.FormatSchemaDocument(doc)
}

func stripDefinition(def *language.Definition) *language.Definition {
	out := *def
	out.Directives = stripDirectives(def.Directives)
	out.Fields = nil
	for _, f := range def.Fields {
		if strings.HasPrefix(f.Name, "__") {
			continue
		}
		field := *f
		field.Directives = stripDirectives(f.Directives)
		out.Fields = append(out.Fields, &field)
	}
	return &out
}

func stripDirectives(list language.DirectiveList) language.DirectiveList {
	var out language.DirectiveList
	for _, d := range list {
		if IsGatewayDirective(d.Name) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// customRoots returns a schema definition when a root operation type does
// not use its default name.
func customRoots(s *language.Schema) *language.SchemaDefinition {
	def := &language.SchemaDefinition{}
	custom := false
	add := func(op language.Operation, root *language.Definition, defaultName string) {
		if root == nil {
			return
		}
		if root.Name != defaultName {
			custom = true
		}
		def.OperationTypes = append(def.OperationTypes, &language.OperationTypeDefinition{Operation: op, Type: root.Name})
	}
	add(language.Query, s.Query, "Query")
	add(language.Mutation, s.Mutation, "Mutation")
	add(language.Subscription, s.Subscription, "Subscription")
	if !custom {
		return nil
	}
	return def
}
