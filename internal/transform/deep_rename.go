package transform

import (
	"context"
	"strings"

	"github.com/russellyou/nadel/internal/blueprint"
	"github.com/russellyou/nadel/internal/jsonnode"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/result"
)

// DeepRename reads a field from a nested underlying field. The nested path
// is selected under an artificial alias and copied to the overall result
// key afterwards.
type DeepRename struct{}

type deepRenameState struct {
	aliases   AliasHelper
	resultKey string
	byType    map[string]*blueprint.DeepRename
	plain     []string
	// needTypeName is set when the instruction depends on the concrete type
	// of the parent.
	needTypeName bool
}

func (*DeepRename) Name() string { return "deep rename" }

func (*DeepRename) IsApplicable(tc *Context, id normalized.ID) (any, bool) {
	f := tc.Overall.Field(id)
	st := &deepRenameState{
		aliases:   NewAliasHelper(tagDeepRename, f.ResultKey()),
		resultKey: f.ResultKey(),
		byType:    make(map[string]*blueprint.DeepRename),
	}
	for _, typeName := range tc.ObjectTypeNames(id) {
		var found *blueprint.DeepRename
		for _, ins := range tc.Blueprint.FieldInstructions(blueprint.Coordinates{TypeName: typeName, FieldName: f.Name}) {
			if r, ok := ins.(*blueprint.DeepRename); ok {
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

func (*DeepRename) TransformField(tc *Context, cont *Continuation, id normalized.ID, state any) (FieldResult, error) {
	st := state.(*deepRenameState)
	f := tc.Overall.Field(id)
	tree := cont.Tree()

	var (
		paths  []string
		groups = make(map[string][]string)
		byPath = make(map[string]*blueprint.DeepRename)
	)
	for _, typeName := range tc.ObjectTypeNames(id) {
		ins, ok := st.byType[typeName]
		if !ok {
			continue
		}
		key := strings.Join(ins.PathToField, ".")
		if _, seen := groups[key]; !seen {
			paths = append(paths, key)
			byPath[key] = ins
		}
		groups[key] = append(groups[key], typeName)
	}
	st.needTypeName = len(paths) > 1 || len(st.plain) > 0

	var fr FieldResult
	for _, key := range paths {
		ins := byPath[key]
		root, last, err := addChain(tc, tree, st.aliases.Alias(ins.PathToField[0]), ins.PathToField, tc.UnderlyingTypeNames(groups[key]))
		if err != nil {
			return FieldResult{}, err
		}
		children, err := cont.Transform(f.Children, last)
		if err != nil {
			return FieldResult{}, err
		}
		tree.SetChildren(last, children)
		fr.Artificial = append(fr.Artificial, root)
	}
	if len(st.plain) > 0 {
		rest, err := cont.Rest(id, st.plain)
		if err != nil {
			return FieldResult{}, err
		}
		fr.NewFields = append(fr.NewFields, rest.NewFields...)
		fr.Artificial = append(fr.Artificial, rest.Artificial...)
	}
	if st.needTypeName {
		fr.Artificial = append(fr.Artificial, typeNameField(tc, tree, st.aliases.TypeNameAlias(), tc.ObjectTypeNames(id)))
	}
	return fr, nil
}

func (*DeepRename) ResultInstructions(ctx context.Context, rc *ResultContext, app *Applied) ([]result.Instruction, error) {
	st := app.State.(*deepRenameState)

	var single *blueprint.DeepRename
	if !st.needTypeName {
		for _, ins := range st.byType {
			single = ins
			break
		}
	}

	var out []result.Instruction
	for _, parent := range rc.ParentNodes(app) {
		ins := single
		if st.needTypeName {
			typeName, _ := parent.StringAt(st.aliases.TypeNameAlias())
			ins = st.byType[rc.OverallTypeName(typeName)]
		}
		if ins == nil {
			continue
		}

		rootAlias := st.aliases.Alias(ins.PathToField[0])
		dest := parent.Path.Key(st.resultKey)
		qp := jsonnode.QueryPath{rootAlias}.Append(ins.PathToField[1:]...)
		if node, ok := jsonnode.GetNodeAt(parent, qp); ok {
			out = append(out, &result.Copy{From: node.Path, To: dest})
		} else {
			out = append(out, &result.Set{Path: dest})
		}
		out = append(out, &result.Remove{Path: parent.Path.Key(rootAlias)})
		if st.needTypeName {
			out = append(out, &result.Remove{Path: parent.Path.Key(st.aliases.TypeNameAlias())})
		}
	}
	return out, nil
}
