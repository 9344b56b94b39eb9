package schema

import (
	language "github.com/russellyou/nadel/internal/language"
)

// Directive names understood by the blueprint factory.
const (
	DirectiveRenamed    = "renamed"
	DirectiveHydrated   = "hydrated"
	DirectiveNamespaced = "namespaced"
)

// IsGatewayDirective reports whether name is one of the mapping directives
// that only the gateway interprets.
func IsGatewayDirective(name string) bool {
	switch name {
	case DirectiveRenamed, DirectiveHydrated, DirectiveNamespaced:
		return true
	}
	return false
}

const preludeSDL = `
"Maps an overall type or field onto a differently named underlying one. A dotted path on a field reads the value from a nested underlying field."
directive @renamed(from: String!) on FIELD_DEFINITION | OBJECT | INTERFACE | UNION | INPUT_OBJECT | SCALAR | ENUM

"Resolves the field by calling a field of another service. Repeat it to hydrate a polymorphic field from several sources."
directive @hydrated(
  service: String!
  field: String!
  arguments: [NadelHydrationArgument!]!
  identifiedBy: String = "id"
  indexed: Boolean = false
  batched: Boolean = false
  batchSize: Int = 200
  timeout: Int = -1
) repeatable on FIELD_DEFINITION

"Marks a field whose object groups fields owned by several services."
directive @namespaced on FIELD_DEFINITION

"An argument of a hydration actor field. The value is $source.<path> or $argument.<name>."
input NadelHydrationArgument {
  name: String!
  value: String!
}
`

// Prelude declares the gateway directives. It is marked built in so that it
// never shows up in rendered SDL.
var Prelude = &language.Source{Name: "nadel_prelude.graphql", Input: preludeSDL, BuiltIn: true}
