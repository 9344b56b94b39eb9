package transform

import (
	"context"

	"github.com/wundergraph/astjson"

	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/result"
)

// TypeRename maps __typename values of the service back to overall type
// names. Names without a registered rename are left as they are, so names
// that are already overall are never mapped twice.
type TypeRename struct{}

func (*TypeRename) Name() string { return "type rename" }

func (*TypeRename) IsApplicable(tc *Context, id normalized.ID) (any, bool) {
	return nil, tc.Overall.Field(id).Name == language.TypeNameField
}

func (*TypeRename) TransformField(tc *Context, cont *Continuation, id normalized.ID, state any) (FieldResult, error) {
	newID, err := cont.Copy(id, tc.ObjectTypeNames(id))
	if err != nil {
		return FieldResult{}, err
	}
	return FieldResult{NewFields: []normalized.ID{newID}}, nil
}

func (*TypeRename) ResultInstructions(ctx context.Context, rc *ResultContext, app *Applied) ([]result.Instruction, error) {
	key := rc.Overall.Field(app.Field).ResultKey()
	var out []result.Instruction
	for _, parent := range rc.ParentNodes(app) {
		underlying, ok := parent.StringAt(key)
		if !ok {
			continue
		}
		if overall := rc.OverallTypeName(underlying); overall != underlying {
			out = append(out, &result.Set{Path: parent.Path.Key(key), Value: astjson.StringValue(nil, overall)})
		}
	}
	return out, nil
}
