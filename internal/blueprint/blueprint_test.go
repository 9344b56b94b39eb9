package blueprint_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/russellyou/nadel/internal/blueprint"
	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/schema"
)

const (
	issuesOverall = `
type Query {
  issue(id: ID!): Issue
  issues: [Issue]
  jira: JiraQuery @namespaced
}
type JiraQuery {
  issueCount: Int
}
interface Node {
  id: ID!
  name: String @renamed(from: "details.name")
}
type Issue implements Node @renamed(from: "JiraIssue") {
  id: ID!
  name: String
  title: String @renamed(from: "summary")
  assignee: User @hydrated(service: "users", field: "userById", arguments: [{name: "id", value: "$source.assigneeId"}], timeout: 500)
  watchers: [User] @hydrated(service: "users", field: "userById", arguments: [{name: "id", value: "$source.watcherIds"}])
  reporter: User @hydrated(service: "users", field: "usersByIds", arguments: [{name: "ids", value: "$source.reporterId"}], indexed: true, batchSize: 2)
  collaborators(first: Int): [User] @hydrated(service: "users", field: "usersByIds", arguments: [{name: "ids", value: "$source.collaboratorIds"}, {name: "first", value: "$argument.first"}])
}
`
	issuesUnderlying = `
type Query {
  issue(id: ID!): JiraIssue
  issues: [JiraIssue]
  jira: JiraQuery
}
type JiraQuery {
  issueCount: Int
}
type Details {
  name: String
}
interface Node {
  id: ID!
  details: Details
}
type JiraIssue implements Node {
  id: ID!
  details: Details
  summary: String
  assigneeId: ID
  watcherIds: [ID]
  reporterId: ID
  collaboratorIds: [ID]
}
`
	usersOverall = `
type Query {
  me: User
}
extend type JiraQuery {
  myIssueCount: Int
}
type User {
  id: ID!
  name: String
}
`
	usersUnderlying = `
type Query {
  me: User
  userById(id: ID!): User
  usersByIds(ids: [ID!]!, first: Int): [User]
  jira: JiraQuery
}
type JiraQuery {
  myIssueCount: Int
}
type User {
  id: ID!
  name: String
}
`
)

func load(t *testing.T, svcs ...schema.InMemoryService) *schema.Set {
	t.Helper()
	set, err := schema.Load(context.Background(), schema.NewInMemoryDiscovery(svcs))
	require.NoError(t, err)
	return set
}

func build(t *testing.T) *blueprint.Blueprint {
	t.Helper()
	set := load(t,
		schema.InMemoryService{Name: "issues", Overall: issuesOverall, Underlying: issuesUnderlying},
		schema.InMemoryService{Name: "users", Overall: usersOverall, Underlying: usersUnderlying},
	)
	bp, err := blueprint.New(set)
	require.NoError(t, err)
	return bp
}

var ignoreDefinitions = cmpopts.IgnoreTypes(&language.FieldDefinition{}, &language.ArgumentDefinition{})

func TestTypeRenames(t *testing.T) {
	bp := build(t)

	require.Equal(t, "JiraIssue", bp.UnderlyingTypeName("Issue"))
	require.Equal(t, "User", bp.UnderlyingTypeName("User"))

	name, ok := bp.OverallTypeName("issues", "JiraIssue")
	require.True(t, ok)
	require.Equal(t, "Issue", name)

	name, ok = bp.OverallTypeName("users", "JiraIssue")
	require.False(t, ok)
	require.Equal(t, "JiraIssue", name)

	want := []*blueprint.TypeRename{{Service: "issues", OverallName: "Issue", UnderlyingName: "JiraIssue"}}
	if diff := cmp.Diff(want, bp.TypeRenames()); diff != "" {
		t.Fatalf("type renames mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldInstructions(t *testing.T) {
	bp := build(t)
	issue := func(field string) blueprint.Coordinates {
		return blueprint.Coordinates{TypeName: "Issue", FieldName: field}
	}

	for _, tc := range []struct {
		name  string
		coord blueprint.Coordinates
		want  []blueprint.FieldInstruction
	}{
		{
			name:  "rename",
			coord: issue("title"),
			want:  []blueprint.FieldInstruction{&blueprint.Rename{Coordinates: issue("title"), UnderlyingName: "summary"}},
		},
		{
			name:  "deep rename inherited from interface",
			coord: issue("name"),
			want:  []blueprint.FieldInstruction{&blueprint.DeepRename{Coordinates: issue("name"), PathToField: []string{"details", "name"}}},
		},
		{
			name:  "one-to-one hydration",
			coord: issue("assignee"),
			want: []blueprint.FieldInstruction{&blueprint.Hydration{
				Coordinates:      issue("assignee"),
				ActorService:     "users",
				PathToActorField: []string{"userById"},
				Arguments: []blueprint.HydrationArgument{
					{Name: "id", Source: &blueprint.FieldValue{Path: []string{"assigneeId"}}},
				},
				Strategy: blueprint.OneToOne,
				Timeout:  500 * time.Millisecond,
			}},
		},
		{
			name:  "many-to-one hydration",
			coord: issue("watchers"),
			want: []blueprint.FieldInstruction{&blueprint.Hydration{
				Coordinates:      issue("watchers"),
				ActorService:     "users",
				PathToActorField: []string{"userById"},
				Arguments: []blueprint.HydrationArgument{
					{Name: "id", Source: &blueprint.FieldValue{Path: []string{"watcherIds"}}},
				},
				Strategy: blueprint.ManyToOne,
			}},
		},
		{
			name:  "indexed batch hydration",
			coord: issue("reporter"),
			want: []blueprint.FieldInstruction{&blueprint.BatchHydration{
				Coordinates:      issue("reporter"),
				ActorService:     "users",
				PathToActorField: []string{"usersByIds"},
				Arguments: []blueprint.HydrationArgument{
					{Name: "ids", Source: &blueprint.FieldValue{Path: []string{"reporterId"}}},
				},
				BatchSize: 2,
				Match:     blueprint.MatchIndex{},
			}},
		},
		{
			name:  "batch hydration by object identifier",
			coord: issue("collaborators"),
			want: []blueprint.FieldInstruction{&blueprint.BatchHydration{
				Coordinates:      issue("collaborators"),
				ActorService:     "users",
				PathToActorField: []string{"usersByIds"},
				Arguments: []blueprint.HydrationArgument{
					{Name: "ids", Source: &blueprint.FieldValue{Path: []string{"collaboratorIds"}}},
					{Name: "first", Source: &blueprint.ArgumentValue{Name: "first"}},
				},
				BatchSize: 200,
				Match:     &blueprint.MatchObjectIdentifier{ResultID: "id"},
			}},
		},
		{
			name:  "plain field",
			coord: issue("id"),
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := bp.FieldInstructions(tc.coord)
			if diff := cmp.Diff(tc.want, got, ignoreDefinitions); diff != "" {
				t.Fatalf("instructions mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("actor definitions are resolved", func(t *testing.T) {
		ins := bp.FieldInstructions(issue("collaborators"))[0].(*blueprint.BatchHydration)
		require.Equal(t, "usersByIds", ins.ActorField.Name)
		require.Equal(t, "ids", ins.BatchArgument().Name)
		require.Equal(t, "[ID!]!", ins.BatchArgument().Definition.Type.String())
		require.Equal(t, [][]string{{"collaboratorIds"}}, ins.SourcePaths())
	})
}

func TestOwnership(t *testing.T) {
	bp := build(t)

	for _, tc := range []struct {
		coord blueprint.Coordinates
		owner string
	}{
		{blueprint.Coordinates{TypeName: "Query", FieldName: "issue"}, "issues"},
		{blueprint.Coordinates{TypeName: "Query", FieldName: "me"}, "users"},
		{blueprint.Coordinates{TypeName: "JiraQuery", FieldName: "issueCount"}, "issues"},
		{blueprint.Coordinates{TypeName: "JiraQuery", FieldName: "myIssueCount"}, "users"},
	} {
		owner, ok := bp.Owner(tc.coord)
		require.True(t, ok, tc.coord.String())
		require.Equal(t, tc.owner, owner, tc.coord.String())
	}

	_, ok := bp.Owner(blueprint.Coordinates{TypeName: "Query", FieldName: "nope"})
	require.False(t, ok)

	require.True(t, bp.IsNamespaced(blueprint.Coordinates{TypeName: "Query", FieldName: "jira"}))
	require.False(t, bp.IsNamespaced(blueprint.Coordinates{TypeName: "Query", FieldName: "issue"}))
	require.Equal(t, []string{"issues", "users"}, bp.Services())
	require.NotNil(t, bp.Underlying("users"))
	require.Nil(t, bp.Underlying("nope"))
}

func TestSchemaMappingErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		overall  string
		messages []string
	}{
		{
			name:     "renamed field missing",
			overall:  `type Query { a: String @renamed(from: "missing") }`,
			messages: []string{`Query.a: Field "missing" not found on underlying type "Query" of service "svc"`},
		},
		{
			name:     "deep rename through a scalar",
			overall:  `type Query { a: String @renamed(from: "name.first") }`,
			messages: []string{`Query.a: Path "name.first" in service "svc" must pass through single objects only`},
		},
		{
			name:     "renamed type missing",
			overall:  `type Query { a: String } type Thing @renamed(from: "Nothing") { x: String }`,
			messages: []string{`Thing: Type "Nothing" not found in underlying schema of service "svc"`},
		},
		{
			name:     "unknown actor service",
			overall:  `type Query { a: String @hydrated(service: "ghost", field: "x", arguments: []) }`,
			messages: []string{`Query.a: Hydration actor service "ghost" does not exist`},
		},
		{
			name:    "bad hydration arguments",
			overall: `type Query { a(x: Int): String @hydrated(service: "svc", field: "byId", arguments: [{name: "nope", value: "$source.name"}, {name: "id", value: "$argument.y"}, {name: "id", value: "literal"}]) }`,
			messages: []string{
				`Query.a: Argument "nope" does not exist on actor field "byId"`,
				`Query.a: Hydration reads $argument.y but the field has no such argument`,
				`Query.a: Hydration argument value "literal" must start with $source. or $argument.`,
			},
		},
		{
			name:     "unknown identifier field",
			overall:  `type Query { a: [String] @hydrated(service: "svc", field: "byIds", arguments: [{name: "ids", value: "$source.ids"}], identifiedBy: "uuid") }`,
			messages: []string{`Query.a: Field "uuid" not found on underlying type "Thing" of service "svc"`},
		},
		{
			name:     "rename and hydration together",
			overall:  `type Query { name: String @renamed(from: "name") @hydrated(service: "svc", field: "byId", arguments: []) }`,
			messages: []string{`Query.name: Field carries both @renamed and @hydrated`},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			set := load(t, schema.InMemoryService{
				Name:    "svc",
				Overall: tc.overall,
				Underlying: `
type Query { name: String ids: [ID] byId(id: ID): Thing byIds(ids: [ID]): [Thing] }
type Thing { id: ID }
`,
			})
			_, err := blueprint.New(set)
			require.Error(t, err)

			var mappingErr blueprint.SchemaMappingError
			require.ErrorAs(t, err, &mappingErr)
			var got []string
			for _, v := range mappingErr {
				got = append(got, v.Coordinates.String()+": "+v.Message)
			}
			if diff := cmp.Diff(tc.messages, got); diff != "" {
				t.Fatalf("violations mismatch (-want +got):\n%s", diff)
			}
			require.Contains(t, err.Error(), "schema mapping violations found")
		})
	}
}
