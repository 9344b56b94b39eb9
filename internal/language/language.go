package language

import (
	"bytes"

	gqlparser "github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// Prelude holds the GraphQL built-in scalars, directives and introspection
// types.
var Prelude = validator.Prelude

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseSchemas parses sources into one schema document.
func ParseSchemas(sources ...*Source) (*SchemaDocument, error) {
	return parser.ParseSchemas(sources...)
}

// BuildSchema validates doc and resolves it into a schema. Unlike LoadSchema
// the prelude is not added; callers parse it into doc themselves.
func BuildSchema(doc *SchemaDocument) (*Schema, error) {
	return validator.ValidateSchemaDocument(doc)
}

// LoadSchema parses and validates the given sources as one schema. The
// GraphQL prelude (built-in scalars and directives) is added automatically.
func LoadSchema(sources ...*Source) (*Schema, error) {
	return gqlparser.LoadSchema(sources...)
}

// LoadQuery parses query and validates it against schema.
func LoadQuery(schema *Schema, query string) (*QueryDocument, ErrorList) {
	return gqlparser.LoadQuery(schema, query)
}

// FormatQuery prints doc as GraphQL source.
func FormatQuery(doc *QueryDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)
	return buf.String()
}

// FormatSchemaDocument prints doc as GraphQL SDL.
func FormatSchemaDocument(doc *SchemaDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

// CoerceVariables checks the raw variables of a request against the
// variable definitions of op and applies their defaults.
func CoerceVariables(schema *Schema, op *OperationDefinition, vars map[string]any) (map[string]any, error) {
	coerced, err := validator.VariableValues(schema, op, vars)
	if err != nil {
		return nil, err
	}
	return coerced, nil
}
