package introspection

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/schema"
)

const issuesSDL = `
type Query {
  issue(id: ID!): Issue
}
"An issue."
type Issue {
  id: ID!
  labels: [String!]
  old: String @deprecated(reason: "use title")
  status: Status @renamed(from: "state")
}
enum Status {
  OPEN
  CLOSED
}
`

const issuesUnderlying = `
type Query {
  issue(id: ID!): Issue
}
type Issue {
  id: ID!
  labels: [String!]
  old: String
  state: Status
}
enum Status {
  OPEN
  CLOSED
}
`

func resolveAll(t *testing.T, query string) map[string]any {
	t.Helper()
	set, err := schema.Load(context.Background(), schema.NewInMemoryDiscovery([]schema.InMemoryService{
		{Name: "issues", Overall: issuesSDL, Underlying: issuesUnderlying},
	}))
	require.NoError(t, err)

	doc, errs := language.LoadQuery(set.Overall, query)
	if len(errs) > 0 {
		t.Fatalf("query does not validate: %v", errs)
	}
	op, err := normalized.Normalize(set.Overall, doc, "", nil)
	require.NoError(t, err)

	r := New(set.Overall)
	out := map[string]any{}
	for _, id := range op.Roots {
		f := op.Tree.Field(id)
		require.True(t, IsIntrospectionField(f.Name))
		v, err := r.ResolveRoot(op.Tree, id, op.RootType)
		require.NoError(t, err)
		out[f.ResultKey()] = v
	}

	// Round trip through JSON so expectations can be written as JSON.
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return decoded
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &out))
	return out
}

func TestTypename(t *testing.T) {
	got := resolveAll(t, `{ __typename kind: __typename }`)
	if diff := cmp.Diff(decode(t, `{"__typename": "Query", "kind": "Query"}`), got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestType(t *testing.T) {
	got := resolveAll(t, `{
  __type(name: "Issue") {
    __typename
    kind
    name
    description
    fields {
      name
      type { kind name ofType { kind name ofType { kind name } } }
    }
  }
  missing: __type(name: "Nope") { name }
}`)
	want := decode(t, `{
  "__type": {
    "__typename": "__Type",
    "kind": "OBJECT",
    "name": "Issue",
    "description": "An issue.",
    "fields": [
      {"name": "id", "type": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "ID", "ofType": null}}},
      {"name": "labels", "type": {"kind": "LIST", "name": null, "ofType": {"kind": "NON_NULL", "name": null, "ofType": {"kind": "SCALAR", "name": "String"}}}},
      {"name": "status", "type": {"kind": "ENUM", "name": "Status", "ofType": null}}
    ]
  },
  "missing": null
}`)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestDeprecatedFields(t *testing.T) {
	got := resolveAll(t, `{ __type(name: "Issue") { fields(includeDeprecated: true) { name isDeprecated deprecationReason } } }`)
	fields := got["__type"].(map[string]any)["fields"].([]any)
	require.Len(t, fields, 4)
	require.Equal(t, map[string]any{"name": "old", "isDeprecated": true, "deprecationReason": "use title"}, fields[2])
}

func TestSchema(t *testing.T) {
	got := resolveAll(t, `{
  __schema {
    queryType { name }
    mutationType { name }
    types { name }
    directives { name }
  }
}`)
	s := got["__schema"].(map[string]any)
	require.Equal(t, map[string]any{"name": "Query"}, s["queryType"])
	require.Nil(t, s["mutationType"])

	var types []string
	for _, typ := range s["types"].([]any) {
		types = append(types, typ.(map[string]any)["name"].(string))
	}
	require.Contains(t, types, "Issue")
	require.Contains(t, types, "Status")
	require.Contains(t, types, "__Schema")
	require.NotContains(t, types, "NadelHydrationArgument")

	var directives []string
	for _, d := range s["directives"].([]any) {
		directives = append(directives, d.(map[string]any)["name"].(string))
	}
	require.Contains(t, directives, "deprecated")
	require.NotContains(t, directives, schema.DirectiveHydrated)
	require.NotContains(t, directives, schema.DirectiveRenamed)
}
