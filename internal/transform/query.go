package transform

import (
	"fmt"

	"github.com/russellyou/nadel/internal/normalized"
)

// DefaultTransforms returns the rules in the order they are tried. The first
// rule that applies to a field claims it.
func DefaultTransforms() []Transform {
	return []Transform{
		&Rename{},
		&DeepRename{},
		&Hydration{},
		&BatchHydration{},
		&TypeRename{},
	}
}

// QueryTransformer rewrites overall fields into the query sent to one
// service.
type QueryTransformer struct {
	transforms []Transform
}

// NewQueryTransformer returns a transformer trying transforms in order.
// Without arguments the default rules are used.
func NewQueryTransformer(transforms ...Transform) *QueryTransformer {
	if len(transforms) == 0 {
		transforms = DefaultTransforms()
	}
	return &QueryTransformer{transforms: transforms}
}

// QueryResult is a rewritten query together with what the result phase
// needs to undo the rewrite.
type QueryResult struct {
	Tree  *normalized.Tree
	Roots []normalized.ID
	// Artificial fields were added for bookkeeping only.
	Artificial []normalized.ID
	// OverallToUnderlying maps overall fields to the fields that replaced
	// them.
	OverallToUnderlying map[normalized.ID][]normalized.ID
	// Applied lists claimed fields, children before their ancestors.
	Applied []*Applied
}

// Transform rewrites the overall fields under roots. The rewritten fields
// become roots of the result tree.
func (q *QueryTransformer) Transform(tc *Context, roots []normalized.ID) (*QueryResult, error) {
	return q.TransformInto(tc, normalized.NewTree(), normalized.NoID, roots)
}

// TransformInto rewrites fields below parent, a field already present in
// tree, or at the root of tree when parent is NoID. The rewritten fields
// are appended to the children of parent and returned as Roots.
func (q *QueryTransformer) TransformInto(tc *Context, tree *normalized.Tree, parent normalized.ID, fields []normalized.ID) (*QueryResult, error) {
	run := &queryRun{
		q:  q,
		tc: tc,
		res: &QueryResult{
			Tree:                tree,
			OverallToUnderlying: make(map[normalized.ID][]normalized.ID),
		},
	}
	out, err := run.transformFields(fields, parent)
	if err != nil {
		return nil, err
	}
	if parent != normalized.NoID {
		for _, id := range out {
			tree.Attach(parent, id)
		}
	}
	run.res.Roots = out
	return run.res, nil
}

type queryRun struct {
	q   *QueryTransformer
	tc  *Context
	res *QueryResult
}

func (r *queryRun) transformFields(fields []normalized.ID, underlyingParent normalized.ID) ([]normalized.ID, error) {
	var out []normalized.ID
	for _, id := range fields {
		ids, err := r.transformField(id, underlyingParent)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func (r *queryRun) transformField(id, underlyingParent normalized.ID) ([]normalized.ID, error) {
	fr, err := r.claim(0, id, underlyingParent)
	if err != nil {
		return nil, err
	}
	if len(fr.NewFields) > 0 {
		r.res.OverallToUnderlying[id] = append(r.res.OverallToUnderlying[id], fr.NewFields...)
	}
	r.res.Artificial = append(r.res.Artificial, fr.Artificial...)
	return append(append([]normalized.ID(nil), fr.NewFields...), fr.Artificial...), nil
}

// claim offers id to the rules from start on. The first rule that applies
// rewrites it; without one the field is copied.
func (r *queryRun) claim(start int, id, underlyingParent normalized.ID) (FieldResult, error) {
	for i := start; i < len(r.q.transforms); i++ {
		tr := r.q.transforms[i]
		state, ok := tr.IsApplicable(r.tc, id)
		if !ok {
			continue
		}
		cont := &Continuation{run: r, next: i + 1, parent: underlyingParent}
		fr, err := tr.TransformField(r.tc, cont, id, state)
		if err != nil {
			return FieldResult{}, fmt.Errorf("%s on %s: %w", tr.Name(), r.tc.Overall.Field(id).Name, err)
		}
		r.res.Applied = append(r.res.Applied, &Applied{
			Transform:        tr,
			Field:            id,
			UnderlyingParent: underlyingParent,
			State:            state,
		})
		return fr, nil
	}

	newID, err := r.copyField(id, r.tc.ObjectTypeNames(id))
	if err != nil {
		return FieldResult{}, err
	}
	return FieldResult{NewFields: []normalized.ID{newID}}, nil
}

// copyField adds the overall field restricted to typeNames, with object
// types renamed for the service, and rewrites its children below it.
func (r *queryRun) copyField(id normalized.ID, typeNames []string) (normalized.ID, error) {
	f := r.tc.Overall.Field(id)
	newID := r.res.Tree.Add(normalized.Field{
		Name:            f.Name,
		Alias:           f.Alias,
		ObjectTypeNames: r.tc.UnderlyingTypeNames(typeNames),
		Arguments:       f.Arguments,
	})
	children, err := r.transformFields(f.Children, newID)
	if err != nil {
		return normalized.NoID, err
	}
	r.res.Tree.SetChildren(newID, children)
	return newID, nil
}

// Continuation lets a rule hand fields back to the transformer.
type Continuation struct {
	run *queryRun
	// next is the rule after the one that claimed the field.
	next   int
	parent normalized.ID
}

// Tree returns the tree the rewritten query is built in.
func (c *Continuation) Tree() *normalized.Tree { return c.run.res.Tree }

// Transform rewrites fields with the full rule chain. The returned fields
// are meant to become children of underlyingParent; the caller attaches
// them.
func (c *Continuation) Transform(fields []normalized.ID, underlyingParent normalized.ID) ([]normalized.ID, error) {
	return c.run.transformFields(fields, underlyingParent)
}

// Rest hands field, restricted to typeNames, to the rules after the one
// that claimed it. Object types the claiming rule has no instruction for may
// still carry instructions of another kind. Without a later rule the field
// is copied.
func (c *Continuation) Rest(field normalized.ID, typeNames []string) (FieldResult, error) {
	tc := c.run.tc
	if tc.restricted == nil {
		tc.restricted = make(map[normalized.ID][]string)
	}
	prev, had := tc.restricted[field]
	tc.restricted[field] = typeNames
	defer func() {
		if had {
			tc.restricted[field] = prev
		} else {
			delete(tc.restricted, field)
		}
	}()
	return c.run.claim(c.next, field, c.parent)
}

// Copy adds the overall field restricted to typeNames, as if no rule had
// claimed it.
func (c *Continuation) Copy(field normalized.ID, typeNames []string) (normalized.ID, error) {
	return c.run.copyField(field, typeNames)
}
