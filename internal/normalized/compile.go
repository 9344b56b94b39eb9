package normalized

import (
	"fmt"

	language "github.com/russellyou/nadel/internal/language"
)

// Compile turns the subtrees under roots into an operation document valid
// against schema. Fields that do not apply to every possible type of their
// parent, or that the abstract parent does not declare, are wrapped in inline
// fragments. Arguments are
// written as literals, so the document declares no variables.
func Compile(tree *Tree, roots []ID, kind language.Operation, name string, schema *language.Schema) (*language.QueryDocument, error) {
	var root *language.Definition
	switch kind {
	case language.Query:
		root = schema.Query
	case language.Mutation:
		root = schema.Mutation
	case language.Subscription:
		root = schema.Subscription
	}
	if root == nil {
		return nil, fmt.Errorf("schema does not support %s operations", kind)
	}
	c := &compiler{tree: tree, schema: schema}
	ss, err := c.selectionSet(roots, root.Name)
	if err != nil {
		return nil, err
	}
	op := &language.OperationDefinition{Operation: kind, Name: name, SelectionSet: ss}
	return &language.QueryDocument{Operations: []*language.OperationDefinition{op}}, nil
}

type compiler struct {
	tree   *Tree
	schema *language.Schema
}

func (c *compiler) selectionSet(children []ID, parentType string) (language.SelectionSet, error) {
	parent := c.schema.Types[parentType]
	if parent == nil {
		return nil, fmt.Errorf("type %q not found", parentType)
	}
	possible := PossibleTypes(c.schema, parentType)

	var (
		out       language.SelectionSet
		fragments []*language.InlineFragment
	)
	fragmentFor := func(typeName string) *language.InlineFragment {
		for _, frag := range fragments {
			if frag.TypeCondition == typeName {
				return frag
			}
		}
		frag := &language.InlineFragment{TypeCondition: typeName}
		fragments = append(fragments, frag)
		return frag
	}

	for _, id := range children {
		f := c.tree.Field(id)
		direct := parent.Kind == language.Object ||
			coversAll(f.ObjectTypeNames, possible) && (f.Name == language.TypeNameField || parent.Fields.ForName(f.Name) != nil)
		if direct {
			sel, err := c.field(id, parentType)
			if err != nil {
				return nil, err
			}
			out = append(out, sel)
			continue
		}
		for _, typeName := range f.ObjectTypeNames {
			if !contains(possible, typeName) {
				continue
			}
			sel, err := c.field(id, typeName)
			if err != nil {
				return nil, err
			}
			frag := fragmentFor(typeName)
			frag.SelectionSet = append(frag.SelectionSet, sel)
		}
	}
	for _, frag := range fragments {
		out = append(out, frag)
	}
	return out, nil
}

func (c *compiler) field(id ID, ownerType string) (*language.Field, error) {
	f := c.tree.Field(id)
	sel := &language.Field{Alias: f.Alias, Name: f.Name}
	for _, arg := range f.Arguments {
		sel.Arguments = append(sel.Arguments, &language.Argument{Name: arg.Name, Value: arg.Value})
	}
	if len(f.Children) == 0 {
		return sel, nil
	}
	owner := c.schema.Types[ownerType]
	if owner == nil {
		return nil, fmt.Errorf("type %q not found", ownerType)
	}
	def := owner.Fields.ForName(f.Name)
	if def == nil {
		return nil, fmt.Errorf("field %q not found on type %q", f.Name, ownerType)
	}
	ss, err := c.selectionSet(f.Children, def.Type.Name())
	if err != nil {
		return nil, err
	}
	sel.SelectionSet = ss
	return sel, nil
}

func coversAll(types, possible []string) bool {
	for _, p := range possible {
		if !contains(types, p) {
			return false
		}
	}
	return true
}
