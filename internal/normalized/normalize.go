package normalized

import (
	"fmt"

	language "github.com/russellyou/nadel/internal/language"
)

// Operation is a normalized operation: its fields and their arguments no
// longer depend on fragments, directives or variables.
type Operation struct {
	Tree     *Tree
	Roots    []ID
	Kind     language.Operation
	Name     string
	RootType string
}

// Normalize resolves the named operation of a validated document into a
// field tree. Fragments are inlined, @skip and @include are evaluated and
// variables are replaced by literals. vars must already be coerced.
func Normalize(schema *language.Schema, doc *language.QueryDocument, operationName string, vars map[string]any) (*Operation, error) {
	op := doc.Operations.ForName(operationName)
	if op == nil {
		if operationName == "" {
			return nil, fmt.Errorf("operation name is required when the document has %d operations", len(doc.Operations))
		}
		return nil, fmt.Errorf("unknown operation %q", operationName)
	}
	var root *language.Definition
	switch op.Operation {
	case language.Query:
		root = schema.Query
	case language.Mutation:
		root = schema.Mutation
	case language.Subscription:
		root = schema.Subscription
	}
	if root == nil {
		return nil, fmt.Errorf("schema does not support %s operations", op.Operation)
	}

	n := &normalizer{schema: schema, doc: doc, vars: vars, tree: NewTree()}
	roots, err := n.collect([]string{root.Name}, []language.SelectionSet{op.SelectionSet})
	if err != nil {
		return nil, err
	}
	return &Operation{Tree: n.tree, Roots: roots, Kind: op.Operation, Name: op.Name, RootType: root.Name}, nil
}

type normalizer struct {
	schema *language.Schema
	doc    *language.QueryDocument
	vars   map[string]any
	tree   *Tree
}

// fieldGroup gathers the selections sharing one result key.
type fieldGroup struct {
	key        string
	selections []*language.Field
	// types[i] lists the object types selections[i] applies to.
	types [][]string
}

func (n *normalizer) collect(possible []string, sets []language.SelectionSet) ([]ID, error) {
	var groups []*fieldGroup
	byKey := make(map[string]*fieldGroup)

	var walk func(ss language.SelectionSet, allowed []string) error
	walk = func(ss language.SelectionSet, allowed []string) error {
		for _, sel := range ss {
			switch sel := sel.(type) {
			case *language.Field:
				if skip, err := n.skipped(sel.Directives); err != nil || skip {
					if err != nil {
						return err
					}
					continue
				}
				key := sel.Alias
				if key == "" {
					key = sel.Name
				}
				g, ok := byKey[key]
				if !ok {
					g = &fieldGroup{key: key}
					byKey[key] = g
					groups = append(groups, g)
				}
				g.selections = append(g.selections, sel)
				g.types = append(g.types, allowed)
			case *language.InlineFragment:
				if skip, err := n.skipped(sel.Directives); err != nil || skip {
					if err != nil {
						return err
					}
					continue
				}
				narrowed := allowed
				if sel.TypeCondition != "" {
					narrowed = intersect(allowed, n.possibleTypes(sel.TypeCondition))
				}
				if err := walk(sel.SelectionSet, narrowed); err != nil {
					return err
				}
			case *language.FragmentSpread:
				if skip, err := n.skipped(sel.Directives); err != nil || skip {
					if err != nil {
						return err
					}
					continue
				}
				def := n.doc.Fragments.ForName(sel.Name)
				if def == nil {
					return fmt.Errorf("unknown fragment %q", sel.Name)
				}
				if err := walk(def.SelectionSet, intersect(allowed, n.possibleTypes(def.TypeCondition))); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, ss := range sets {
		if err := walk(ss, possible); err != nil {
			return nil, err
		}
	}

	var ids []ID
	for _, g := range groups {
		for _, part := range partition(possible, g) {
			id, err := n.field(g.key, part.types, part.selections)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type part struct {
	types      []string
	selections []*language.Field
}

// partition splits a group by object type. Types selecting exactly the same
// selections share one normalized field.
func partition(possible []string, g *fieldGroup) []part {
	var parts []part
	for _, typeName := range possible {
		var sels []*language.Field
		for i, types := range g.types {
			if contains(types, typeName) {
				sels = append(sels, g.selections[i])
			}
		}
		if len(sels) == 0 {
			continue
		}
		merged := false
		for i := range parts {
			if sameSelections(parts[i].selections, sels) {
				parts[i].types = append(parts[i].types, typeName)
				merged = true
				break
			}
		}
		if !merged {
			parts = append(parts, part{types: []string{typeName}, selections: sels})
		}
	}
	return parts
}

func (n *normalizer) field(key string, types []string, sels []*language.Field) (ID, error) {
	first := sels[0]
	f := Field{Name: first.Name, ObjectTypeNames: types}
	if key != first.Name {
		f.Alias = key
	}
	for _, arg := range first.Arguments {
		value, ok := substitute(arg.Value, n.vars, n.schema)
		if !ok {
			continue
		}
		f.Arguments = append(f.Arguments, &Argument{Name: arg.Name, Value: value})
	}
	id := n.tree.Add(f)

	var childSets []language.SelectionSet
	for _, sel := range sels {
		if len(sel.SelectionSet) > 0 {
			childSets = append(childSets, sel.SelectionSet)
		}
	}
	if len(childSets) == 0 {
		return id, nil
	}
	if first.Definition == nil {
		return NoID, fmt.Errorf("field %q has no definition; the document must be validated", first.Name)
	}
	children, err := n.collect(n.possibleTypes(first.Definition.Type.Name()), childSets)
	if err != nil {
		return NoID, err
	}
	n.tree.SetChildren(id, children)
	return id, nil
}

func (n *normalizer) skipped(directives language.DirectiveList) (bool, error) {
	for _, d := range directives {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil {
			return false, fmt.Errorf("@%s requires an if argument", d.Name)
		}
		v, err := arg.Value.Value(n.vars)
		if err != nil {
			return false, err
		}
		b, _ := v.(bool)
		if d.Name == "skip" && b {
			return true, nil
		}
		if d.Name == "include" && !b {
			return true, nil
		}
	}
	return false, nil
}

func (n *normalizer) possibleTypes(typeName string) []string {
	return PossibleTypes(n.schema, typeName)
}

// PossibleTypes returns the object types a value of the named type can
// have, in schema order.
func PossibleTypes(schema *language.Schema, typeName string) []string {
	def := schema.Types[typeName]
	if def == nil {
		return nil
	}
	if def.Kind == language.Object {
		return []string{def.Name}
	}
	var out []string
	for _, t := range schema.GetPossibleTypes(def) {
		out = append(out, t.Name)
	}
	return out
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		if contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// sameSelections reports whether two selection lists produce the same
// normalized field. Leaf selections sharing a result key always do.
func sameSelections(a, b []*language.Field) bool {
	if isLeaf(a) && isLeaf(b) {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isLeaf(sels []*language.Field) bool {
	for _, sel := range sels {
		if len(sel.SelectionSet) > 0 {
			return false
		}
	}
	return true
}
