package result

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/wundergraph/astjson"

	jsonnode "github.com/russellyou/nadel/internal/jsonnode"
)

func decodeMap(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func requireJSON(t *testing.T, want string, got *astjson.Value) {
	t.Helper()
	require.JSONEq(t, want, string(jsonnode.OrNull(got).MarshalTo(nil)))
}

func p(elems ...any) jsonnode.Path { return jsonnode.PathOf(elems...) }

func str(s string) *astjson.Value { return astjson.StringValue(nil, s) }

func TestDocumentSet(t *testing.T) {
	t.Run("creates intermediate objects", func(t *testing.T) {
		doc := NewDocument(nil)
		require.NoError(t, doc.Set(p("a", "b", "c"), str("x")))
		requireJSON(t, `{"a": {"b": {"c": "x"}}}`, doc.Data())
	})

	t.Run("replaces null parents", func(t *testing.T) {
		doc := NewDocument(astjson.MustParse(`{"a": null}`))
		require.NoError(t, doc.Set(p("a", "b"), astjson.MustParse("1")))
		requireJSON(t, `{"a": {"b": 1}}`, doc.Data())
	})

	t.Run("writes into list elements", func(t *testing.T) {
		doc := NewDocument(astjson.MustParse(`{"xs": [{"v": 1}, {"v": 2}]}`))
		require.NoError(t, doc.Set(p("xs", 1, "v"), str("two")))
		got, ok := doc.Get(p("xs", 1, "v"))
		require.True(t, ok)
		requireJSON(t, `"two"`, got)
	})

	t.Run("replaces null list elements", func(t *testing.T) {
		doc := NewDocument(astjson.MustParse(`{"xs": [null]}`))
		require.NoError(t, doc.Set(p("xs", 0, "v"), str("x")))
		requireJSON(t, `{"xs": [{"v": "x"}]}`, doc.Data())
	})

	t.Run("nil writes null", func(t *testing.T) {
		doc := NewDocument(nil)
		require.NoError(t, doc.Set(p("a"), nil))
		requireJSON(t, `{"a": null}`, doc.Data())
	})

	t.Run("never creates lists", func(t *testing.T) {
		doc := NewDocument(nil)
		require.Error(t, doc.Set(p("xs", 0, "v"), str("x")))
	})

	t.Run("out of range index", func(t *testing.T) {
		doc := NewDocument(astjson.MustParse(`{"xs": [1]}`))
		require.Error(t, doc.Set(p("xs", 3), str("x")))
		require.Error(t, doc.Set(p("xs", 3, "v"), str("x")))
	})

	t.Run("cannot descend into scalars", func(t *testing.T) {
		doc := NewDocument(astjson.MustParse(`{"a": "scalar"}`))
		require.Error(t, doc.Set(p("a", "b"), str("x")))
	})

	t.Run("root must be an object", func(t *testing.T) {
		doc := NewDocument(nil)
		require.Error(t, doc.Set(nil, str("x")))
		require.NoError(t, doc.Set(nil, astjson.MustParse(`{"k": 1}`)))
		requireJSON(t, `{"k": 1}`, doc.Data())
	})
}

func TestDocumentRemove(t *testing.T) {
	doc := NewDocument(astjson.MustParse(`{"a": {"b": 1, "c": 2}, "xs": [1, 2, 3]}`))
	doc.Remove(p("a", "b"))
	doc.Remove(p("xs", 1))
	doc.Remove(p("missing", "deep"))
	doc.Remove(p("a", "b"))

	requireJSON(t, `{"a": {"c": 2}, "xs": [1, null, 3]}`, doc.Data())
}

func TestDocumentCopyIsDeep(t *testing.T) {
	doc := NewDocument(astjson.MustParse(`{"src": {"inner": {"v": 1}}}`))
	require.NoError(t, doc.Copy(p("src"), p("dst")))
	require.NoError(t, doc.Set(p("src", "inner", "v"), astjson.MustParse("2")))

	got, _ := doc.Get(p("dst", "inner", "v"))
	requireJSON(t, `1`, got)

	require.NoError(t, doc.Copy(p("nothing"), p("empty")))
	got, ok := doc.Get(p("empty"))
	require.True(t, ok)
	require.True(t, jsonnode.IsNull(got))
}

func TestApply(t *testing.T) {
	data := astjson.MustParse(`{
		"dog": {
			"nadel__deep_rename__name__collar": {"name": "Luna"},
			"nadel__deep_rename__name____typename": "Dog"
		}
	}`)
	addErr := NewError("boom", p("dog", "owner"), nil)
	instructions := []Instruction{
		&Copy{From: p("dog", "nadel__deep_rename__name__collar", "name"), To: p("dog", "name")},
		&Remove{Path: p("dog", "nadel__deep_rename__name__collar")},
		&Set{Path: p("dog", "owner"), Value: nil},
		&Set{Path: p("dog", "owner"), Value: str("override")},
		&AddError{Error: addErr},
	}

	got, errs, err := Apply(data, instructions)
	require.NoError(t, err)
	requireJSON(t, `{"dog": {"name": "Luna", "owner": "override"}}`, got)
	require.Equal(t, []*Error{addErr}, errs)
	require.Equal(t, []any{"dog", "owner"}, errs[0].Path)
}

func TestApplyStripsArtificialKeysEverywhere(t *testing.T) {
	data := astjson.MustParse(`{
		"issues": [
			{"id": "1", "nadel__hydration__assignee__assigneeId": "u1"},
			{"id": "2", "nested": {"nadel__batch_hydration__x__id": "u2", "nadel__batch_hydration__x__key": "k"}}
		]
	}`)
	got, _, err := Apply(data, nil)
	require.NoError(t, err)
	requireJSON(t, `{"issues": [{"id": "1"}, {"id": "2", "nested": {}}]}`, got)
}

func TestApplyReportsBadPaths(t *testing.T) {
	_, _, err := Apply(astjson.MustParse(`{"a": "x"}`), []Instruction{&Set{Path: p("a", "b"), Value: astjson.MustParse("1")}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Set(/a/b, 1)")
}

func TestErrorFromMap(t *testing.T) {
	raw := decodeMap(t, `{
		"message": "nope",
		"path": ["issues", 0, "id"],
		"locations": [{"line": 1, "column": 3}],
		"extensions": {"code": "BAD"},
		"errorType": "DataFetchingException"
	}`)
	got := ErrorFromMap(raw)
	want := &Error{
		Message:   "nope",
		Path:      []any{"issues", 0, "id"},
		Locations: []Location{{Line: 1, Column: 3}},
		Extensions: map[string]any{
			"code":      "BAD",
			"errorType": "DataFetchingException",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("error mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyInstructionsKeepsArtificialKeys(t *testing.T) {
	data := astjson.MustParse(`{"user": {"name": "Ada", "nadel__batch_hydration__owner__id": "u1"}}`)
	got, _, err := ApplyInstructions(data, []Instruction{&Set{Path: p("user", "age"), Value: astjson.MustParse("3")}})
	require.NoError(t, err)
	requireJSON(t, `{"user": {"name": "Ada", "age": 3, "nadel__batch_hydration__owner__id": "u1"}}`, got)
}

func TestResponseJSON(t *testing.T) {
	t.Run("parses data errors and extensions", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`{
			"data": {"issue": {"id": "1"}},
			"errors": [{"message": "partial", "path": ["issue", "title"]}],
			"extensions": {"cost": 3}
		}`))
		require.NoError(t, err)
		requireJSON(t, `{"issue": {"id": "1"}}`, resp.Data)
		require.Equal(t, []*Error{{Message: "partial", Path: []any{"issue", "title"}}}, resp.Errors)
		require.Equal(t, map[string]any{"cost": float64(3)}, resp.Extensions)
	})

	t.Run("null data", func(t *testing.T) {
		resp, err := ParseResponse([]byte(`{"data": null, "errors": [{"message": "down"}]}`))
		require.NoError(t, err)
		require.Nil(t, resp.Data)
		require.Len(t, resp.Errors, 1)
	})

	t.Run("rejects non-object bodies", func(t *testing.T) {
		_, err := ParseResponse([]byte(`[1]`))
		require.Error(t, err)
		_, err = ParseResponse([]byte(`{"data": 1}`))
		require.Error(t, err)
		_, err = ParseResponse([]byte(`{"data":`))
		require.Error(t, err)
	})

	t.Run("marshals and unmarshals", func(t *testing.T) {
		resp := &Response{
			Data:       astjson.MustParse(`{"hello": "world"}`),
			Errors:     []*Error{{Message: "nope"}},
			Extensions: map[string]any{"k": "v"},
		}
		raw, err := json.Marshal(resp)
		require.NoError(t, err)
		require.JSONEq(t, `{"data": {"hello": "world"}, "errors": [{"message": "nope"}], "extensions": {"k": "v"}}`, string(raw))

		var back Response
		require.NoError(t, json.Unmarshal(raw, &back))
		requireJSON(t, `{"hello": "world"}`, back.Data)
		require.Equal(t, resp.Errors, back.Errors)

		raw, err = json.Marshal(ErrorResponse(&Error{Message: "down"}))
		require.NoError(t, err)
		require.JSONEq(t, `{"data": null, "errors": [{"message": "down"}]}`, string(raw))
	})
}
