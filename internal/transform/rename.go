package transform

import (
	"context"

	"github.com/russellyou/nadel/internal/blueprint"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/result"
)

// Rename selects the underlying field aliased with the overall result key,
// so the result needs no rewrite.
type Rename struct{}

type renameState struct {
	byType map[string]*blueprint.Rename
	plain  []string
}

func (*Rename) Name() string { return "rename" }

func (*Rename) IsApplicable(tc *Context, id normalized.ID) (any, bool) {
	f := tc.Overall.Field(id)
	st := &renameState{byType: make(map[string]*blueprint.Rename)}
	for _, typeName := range tc.ObjectTypeNames(id) {
		var found *blueprint.Rename
		for _, ins := range tc.Blueprint.FieldInstructions(blueprint.Coordinates{TypeName: typeName, FieldName: f.Name}) {
			if r, ok := ins.(*blueprint.Rename); ok {
				found = r
				break
			}
		}
		if found == nil {
			st.plain = append(st.plain, typeName)
			continue
		}
		st.byType[typeName] = found
	}
	return st, len(st.byType) > 0
}

func (*Rename) TransformField(tc *Context, cont *Continuation, id normalized.ID, state any) (FieldResult, error) {
	st := state.(*renameState)
	f := tc.Overall.Field(id)
	tree := cont.Tree()

	var (
		fr     FieldResult
		names  []string
		groups = make(map[string][]string)
	)
	for _, typeName := range tc.ObjectTypeNames(id) {
		ins, ok := st.byType[typeName]
		if !ok {
			continue
		}
		if _, seen := groups[ins.UnderlyingName]; !seen {
			names = append(names, ins.UnderlyingName)
		}
		groups[ins.UnderlyingName] = append(groups[ins.UnderlyingName], typeName)
	}
	for _, name := range names {
		alias := f.ResultKey()
		if alias == name {
			alias = ""
		}
		newID := tree.Add(normalized.Field{
			Name:            name,
			Alias:           alias,
			ObjectTypeNames: tc.UnderlyingTypeNames(groups[name]),
			Arguments:       f.Arguments,
		})
		children, err := cont.Transform(f.Children, newID)
		if err != nil {
			return FieldResult{}, err
		}
		tree.SetChildren(newID, children)
		fr.NewFields = append(fr.NewFields, newID)
	}
	if len(st.plain) > 0 {
		rest, err := cont.Rest(id, st.plain)
		if err != nil {
			return FieldResult{}, err
		}
		fr.NewFields = append(fr.NewFields, rest.NewFields...)
		fr.Artificial = append(fr.Artificial, rest.Artificial...)
	}
	return fr, nil
}

func (*Rename) ResultInstructions(ctx context.Context, rc *ResultContext, app *Applied) ([]result.Instruction, error) {
	return nil, nil
}
