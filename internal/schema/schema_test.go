package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const (
	issuesOverall = `
type Query {
  issue(id: ID!): Issue
  issues: [Issue]
}
type Issue @renamed(from: "JiraIssue") {
  id: ID!
  title: String @renamed(from: "summary")
  assignee: User @hydrated(service: "users", field: "userById", arguments: [{name: "id", value: "$source.assigneeId"}])
}
`
	issuesUnderlying = `
type Query {
  issue(id: ID!): JiraIssue
  issues: [JiraIssue]
}
type JiraIssue {
  id: ID!
  summary: String
  assigneeId: ID
}
`
	usersOverall = `
type Query {
  me: User
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
}
type User {
  id: ID!
  name: String
}
`
)

func testDiscovery() *InMemoryDiscovery {
	return NewInMemoryDiscovery([]InMemoryService{
		{Name: "users", Overall: usersOverall, Underlying: usersUnderlying},
		{Name: "issues", Overall: issuesOverall, Underlying: issuesUnderlying},
	})
}

func TestLoad(t *testing.T) {
	set, err := Load(context.Background(), testDiscovery())
	require.NoError(t, err)

	var names []string
	for _, svc := range set.Services {
		names = append(names, svc.Name)
	}
	if diff := cmp.Diff([]string{"issues", "users"}, names); diff != "" {
		t.Fatalf("service order mismatch (-want +got):\n%s", diff)
	}

	t.Run("query types are merged across services", func(t *testing.T) {
		query := set.Overall.Query
		require.NotNil(t, query)
		for _, name := range []string{"issue", "issues", "me"} {
			require.NotNil(t, query.Fields.ForName(name), "missing Query.%s", name)
		}
	})

	t.Run("service documents keep only their own fields", func(t *testing.T) {
		doc := set.Service("users").Overall
		query := doc.Definitions.ForName("Query")
		require.NotNil(t, query)
		require.Len(t, query.Fields, 1)
		require.Equal(t, "me", query.Fields[0].Name)
	})

	t.Run("underlying schemas are separate", func(t *testing.T) {
		require.NotNil(t, set.Service("issues").Underlying.Types["JiraIssue"])
		require.Nil(t, set.Service("users").Underlying.Types["JiraIssue"])
	})

	require.Nil(t, set.Service("missing"))
}

func TestLoadReportsBrokenSDL(t *testing.T) {
	disc := NewInMemoryDiscovery([]InMemoryService{
		{Name: "broken", Overall: "type Query {", Underlying: "type Query { a: String }"},
	})
	_, err := Load(context.Background(), disc)
	require.Error(t, err)
	require.Contains(t, err.Error(), `"broken"`)
}

func TestLoadRejectsUnknownDirective(t *testing.T) {
	disc := NewInMemoryDiscovery([]InMemoryService{
		{Name: "svc", Overall: `type Query { a: String @unknown }`, Underlying: `type Query { a: String }`},
	})
	_, err := Load(context.Background(), disc)
	require.Error(t, err)
}

func TestFileSystemDiscovery(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write("issues/issues.graphql", issuesOverall)
	write("issues/issues.underlying.graphql", issuesUnderlying)
	write("users.graphql", usersOverall)
	write("users.underlying.graphql", usersUnderlying)
	write("README.md", "not a schema")

	disc, err := NewFileSystemDiscovery(context.Background(), root)
	require.NoError(t, err)

	metas, err := disc.ListServices(context.Background())
	require.NoError(t, err)
	want := []*ServiceMetadata{
		{
			Name:           "issues",
			OverallPath:    filepath.Join("issues", "issues.graphql"),
			UnderlyingPath: filepath.Join("issues", "issues.underlying.graphql"),
		},
		{Name: "users", OverallPath: "users.graphql", UnderlyingPath: "users.underlying.graphql"},
	}
	if diff := cmp.Diff(want, metas); diff != "" {
		t.Fatalf("metadata mismatch (-want +got):\n%s", diff)
	}

	sdl, err := disc.ReadUnderlyingSDL(context.Background(), "users")
	require.NoError(t, err)
	require.Equal(t, usersUnderlying, sdl)

	_, err = disc.ReadOverallSDL(context.Background(), "nope")
	require.Error(t, err)

	set, err := Load(context.Background(), disc)
	require.NoError(t, err)
	require.Len(t, set.Services, 2)
}

func TestFileSystemDiscoveryRequiresBothSchemas(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "lonely.graphql"), []byte(usersOverall), 0o644))

	_, err := NewFileSystemDiscovery(context.Background(), root)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no underlying schema")
}

func TestRender(t *testing.T) {
	set, err := Load(context.Background(), testDiscovery())
	require.NoError(t, err)

	actual := Render(set.Overall)
	require.Contains(t, actual, "type Issue")
	require.Contains(t, actual, "assignee: User")
	require.NotContains(t, actual, "@renamed")
	require.NotContains(t, actual, "@hydrated")
	require.NotContains(t, actual, "NadelHydrationArgument")
	require.NotContains(t, actual, "__Schema")
	require.NotContains(t, actual, "scalar String")

	// The set itself keeps the directives.
	require.NotNil(t, set.Overall.Types["Issue"].Fields.ForName("assignee").Directives.ForName(DirectiveHydrated))

	snapshotPath := filepath.Join("testdata", "overall_rendered.graphql")
	if _, err := os.Stat(snapshotPath); os.IsNotExist(err) {
		require.NoError(t, os.MkdirAll("testdata", 0o755))
		require.NoError(t, os.WriteFile(snapshotPath, []byte(actual), 0o644))
		t.Logf("Created snapshot file: %s", snapshotPath)
		return
	}
	expected, err := os.ReadFile(snapshotPath)
	require.NoError(t, err)
	if diff := cmp.Diff(string(expected), actual); diff != "" {
		t.Errorf("Rendered schema snapshot mismatch (-want +got):\n%s", diff)
	}
}
