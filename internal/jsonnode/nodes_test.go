package jsonnode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/wundergraph/astjson"
)

// flatNode holds the compact JSON encoding of a node value.
type flatNode struct {
	Path  string
	Value string
}

func flat(nodes []Node) []flatNode {
	out := make([]flatNode, len(nodes))
	for i, n := range nodes {
		out[i] = flatNode{Path: n.Path.String(), Value: string(n.Value.MarshalTo(nil))}
	}
	return out
}

func TestGetNodesAt(t *testing.T) {
	data := astjson.MustParse(`{
		"issues": [
			{"id": "1", "labels": ["a", "b"], "owner": {"name": "Ada"}},
			{"id": "2", "labels": [], "owner": null},
			null
		],
		"me": {"name": "Lin"}
	}`)

	tests := []struct {
		name    string
		path    QueryPath
		flatten bool
		want    []flatNode
	}{
		{
			name: "root",
			path: nil,
			want: []flatNode{{Path: "/", Value: string(data.MarshalTo(nil))}},
		},
		{
			name: "object key",
			path: QueryPath{"me", "name"},
			want: []flatNode{{Path: "/me/name", Value: `"Lin"`}},
		},
		{
			name: "walks lists in the middle",
			path: QueryPath{"issues", "id"},
			want: []flatNode{
				{Path: "/issues/0/id", Value: `"1"`},
				{Path: "/issues/1/id", Value: `"2"`},
			},
		},
		{
			name: "null terminates without flatten",
			path: QueryPath{"issues", "owner"},
			want: []flatNode{
				{Path: "/issues/0/owner", Value: `{"name":"Ada"}`},
				{Path: "/issues/1/owner", Value: "null"},
			},
		},
		{
			name:    "flatten expands terminal lists",
			path:    QueryPath{"issues", "labels"},
			flatten: true,
			want: []flatNode{
				{Path: "/issues/0/labels/0", Value: `"a"`},
				{Path: "/issues/0/labels/1", Value: `"b"`},
			},
		},
		{
			name: "terminal list kept without flatten",
			path: QueryPath{"issues", "labels"},
			want: []flatNode{
				{Path: "/issues/0/labels", Value: `["a","b"]`},
				{Path: "/issues/1/labels", Value: "[]"},
			},
		},
		{
			name: "missing key",
			path: QueryPath{"nope"},
			want: []flatNode{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := flat(New(data).GetNodesAt(tt.path, tt.flatten))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("nodes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlattenNestedLists(t *testing.T) {
	data := astjson.MustParse(`{"grid": [[1, 2], [3]]}`)
	got := flat(New(data).GetNodesAt(QueryPath{"grid"}, true))
	want := []flatNode{
		{Path: "/grid/0/0", Value: "1"},
		{Path: "/grid/0/1", Value: "2"},
		{Path: "/grid/1/0", Value: "3"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("nodes mismatch (-want +got):\n%s", diff)
	}
}

func TestGetNodeAtRelative(t *testing.T) {
	data := astjson.MustParse(`{"dog": {"collar": {"name": "Luna"}, "breed": 7}}`)
	dogs := New(data).GetNodesAt(QueryPath{"dog"}, true)
	require.Len(t, dogs, 1)

	node, ok := GetNodeAt(dogs[0], QueryPath{"collar", "name"})
	require.True(t, ok)
	require.Equal(t, "/dog/collar/name", node.Path.String())
	require.Equal(t, "Luna", string(node.Value.GetStringBytes()))

	_, ok = GetNodeAt(dogs[0], QueryPath{"tag", "name"})
	require.False(t, ok)

	name, ok := dogs[0].StringAt("breed")
	require.False(t, ok, "numbers are not strings")
	require.Empty(t, name)
	require.True(t, dogs[0].IsObject())
	require.Nil(t, dogs[0].Get("tag"))
}

func TestValueConversions(t *testing.T) {
	v, err := FromAny(map[string]any{"ids": []any{"1", nil}, "n": 2})
	require.NoError(t, err)
	require.Equal(t, `{"ids":["1",null],"n":2}`, string(v.MarshalTo(nil)))
	require.Equal(t, map[string]any{"ids": []any{"1", nil}, "n": float64(2)}, ToAny(v))

	require.Nil(t, ToAny(nil))
	require.Nil(t, ToAny(astjson.NullValue))
	require.True(t, IsNull(nil))
	require.True(t, IsNull(v.Get("ids", "1")))
	require.False(t, IsNull(v.Get("n")))

	cloned := Clone(v)
	cloned.Set(nil, "n", astjson.MustParse("3"))
	require.Equal(t, `{"ids":["1",null],"n":2}`, string(v.MarshalTo(nil)))
	require.True(t, Equal(v.Get("ids", "0"), astjson.MustParse(`"1"`)))
	require.False(t, Equal(v.Get("ids", "0"), astjson.MustParse("1")))
	require.True(t, Equal(nil, astjson.NullValue))

	escaped := astjson.MustParse(`{"k\u0065y": ["a\nb"]}`)
	Settle(escaped)
	require.Equal(t, "a\nb", string(escaped.GetArray("key")[0].GetStringBytes()))
}

func TestPathValuesAndAppend(t *testing.T) {
	base := PathOf("issues", 1)
	child := base.Key("assignee")
	require.Equal(t, []any{"issues", 1}, base.Values())
	require.Equal(t, []any{"issues", 1, "assignee"}, child.Values())
	require.Equal(t, "/issues/1", child.Parent().String())
	require.True(t, child[1].IsIndex())
	require.Equal(t, 1, child[1].Index())
}
