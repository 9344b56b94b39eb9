package transform

import (
	"context"
	"errors"

	"github.com/wundergraph/astjson"
	"golang.org/x/sync/errgroup"

	"github.com/russellyou/nadel/internal/blueprint"
	"github.com/russellyou/nadel/internal/jsonnode"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/result"
)

// BatchHydration resolves a field for many parent objects with few actor
// calls. Source identifiers of all parents are gathered, split into chunks
// of at most BatchSize and matched back to their parents afterwards.
type BatchHydration struct{}

func (*BatchHydration) Name() string { return "batch hydration" }

func (*BatchHydration) IsApplicable(tc *Context, id normalized.ID) (any, bool) {
	st, batched := newHydrationState(tc, id, tagBatchHydration)
	return st, batched
}

func (*BatchHydration) TransformField(tc *Context, cont *Continuation, id normalized.ID, state any) (FieldResult, error) {
	return state.(*hydrationState).transformField(tc, cont)
}

// batchParent is one parent object waiting for its batch results.
type batchParent struct {
	dest   jsonnode.Path
	source *astjson.Value
}

type batchGroup struct {
	ins     *blueprint.BatchHydration
	parents []batchParent
}

func (*BatchHydration) ResultInstructions(ctx context.Context, rc *ResultContext, app *Applied) ([]result.Instruction, error) {
	st := app.State.(*hydrationState)

	var (
		out     []result.Instruction
		groups  []*batchGroup
		byIns   = make(map[*blueprint.BatchHydration]*batchGroup)
		singles []jsonnode.Node
		singled []*blueprint.Hydration
	)
	for _, parent := range rc.ParentNodes(app) {
		ins, err := st.instructionFor(rc, parent)
		if err != nil {
			return nil, err
		}
		switch ins := ins.(type) {
		case nil:
			if len(st.byType[st.overallType(rc, parent)]) > 0 {
				out = append(out, &result.Set{Path: st.dest(parent)})
			}
		case *blueprint.Hydration:
			singles = append(singles, parent)
			singled = append(singled, ins)
		case *blueprint.BatchHydration:
			g := byIns[ins]
			if g == nil {
				g = &batchGroup{ins: ins}
				byIns[ins] = g
				groups = append(groups, g)
			}
			path := ins.BatchArgument().Source.(*blueprint.FieldValue).Path
			g.parents = append(g.parents, batchParent{dest: st.dest(parent), source: st.sourceValue(parent, path)})
		}
	}

	perGroup := make([][]result.Instruction, len(groups))
	perSingle := make([][]result.Instruction, len(singles))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		g.Go(func() error {
			ins, err := st.batch(gctx, rc, group)
			perGroup[i] = ins
			return err
		})
	}
	for i, parent := range singles {
		g.Go(func() error {
			ins, err := st.hydrate(gctx, rc, parent, singled[i])
			perSingle[i] = ins
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, ins := range perGroup {
		out = append(out, ins...)
	}
	for _, ins := range perSingle {
		out = append(out, ins...)
	}
	return out, nil
}

// batch runs the actor calls of one group and matches the results back to
// the group's parents.
func (st *hydrationState) batch(ctx context.Context, rc *ResultContext, group *batchGroup) ([]result.Instruction, error) {
	ins := group.ins
	_, byIndex := ins.Match.(blueprint.MatchIndex)

	var (
		ids  []*astjson.Value
		seen = make(map[string]bool)
	)
	for _, p := range group.parents {
		for _, id := range identifiers(p.source) {
			if !byIndex {
				key := string(id.MarshalTo(nil))
				if seen[key] {
					continue
				}
				seen[key] = true
			}
			ids = append(ids, id)
		}
	}

	var out []result.Instruction
	if len(ids) == 0 {
		for _, p := range group.parents {
			out = append(out, &result.Set{Path: p.dest, Value: emptyLike(p.source)})
		}
		return out, nil
	}

	// The first parent receives the errors of the whole batch.
	errAt := group.parents[0].dest

	var identifierAlias string
	if m, ok := ins.Match.(*blueprint.MatchObjectIdentifier); ok {
		identifierAlias = st.aliases.Alias(m.ResultID)
	}

	chunks := chunk(ids, ins.BatchSize)
	values := make([][]*astjson.Value, len(chunks))
	errs := make([][]result.Instruction, len(chunks))
	batchArg := ins.BatchArgument().Name

	g, gctx := errgroup.WithContext(ctx)
	for i, chunkIDs := range chunks {
		args := st.arguments(rc, ins.ActorService, ins.Arguments, map[string]any{batchArg: anyList(chunkIDs)})
		g.Go(func() error {
			res, err := st.call(gctx, rc, ins, args, identifierAlias)
			if errors.Is(err, ErrAmbiguousHydration) {
				return err
			}
			if err != nil {
				errs[i] = []result.Instruction{&result.AddError{Error: actorCallError(rc, ins.ActorService, errAt, err)}}
				return nil
			}
			if res.Value != nil && res.Value.Type() == astjson.TypeArray {
				values[i] = res.Value.GetArray()
			}
			errs[i] = repath(res.Errors, errAt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var match func(id *astjson.Value) *astjson.Value
	if byIndex {
		byPosition := make([]*astjson.Value, len(ids))
		pos := 0
		for i, chunkIDs := range chunks {
			for j := range chunkIDs {
				if j < len(values[i]) {
					byPosition[pos] = values[i][j]
				}
				pos++
			}
		}
		next := 0
		match = func(*astjson.Value) *astjson.Value {
			v := byPosition[next]
			next++
			return v
		}
	} else {
		byID := make(map[string]*astjson.Value)
		for _, list := range values {
			for _, v := range list {
				if v == nil || v.Type() != astjson.TypeObject {
					continue
				}
				if id := v.Get(identifierAlias); !jsonnode.IsNull(id) {
					byID[string(id.MarshalTo(nil))] = v
				}
			}
		}
		// Parents sharing an identifier each get their own copy.
		match = func(id *astjson.Value) *astjson.Value { return jsonnode.Clone(byID[string(id.MarshalTo(nil))]) }
	}

	for _, p := range group.parents {
		switch {
		case jsonnode.IsNull(p.source):
			out = append(out, &result.Set{Path: p.dest})
		case p.source.Type() == astjson.TypeArray:
			list := astjson.ArrayValue(nil)
			for i, id := range p.source.GetArray() {
				var v *astjson.Value
				if !jsonnode.IsNull(id) {
					v = match(id)
				}
				list.SetArrayItem(nil, i, jsonnode.OrNull(v))
			}
			out = append(out, &result.Set{Path: p.dest, Value: list})
		default:
			out = append(out, &result.Set{Path: p.dest, Value: match(p.source)})
		}
	}
	for _, e := range errs {
		out = append(out, e...)
	}
	return out, nil
}

// identifiers returns the non-null identifiers of a source value.
func identifiers(source *astjson.Value) []*astjson.Value {
	switch {
	case jsonnode.IsNull(source):
		return nil
	case source.Type() == astjson.TypeArray:
		var out []*astjson.Value
		for _, id := range source.GetArray() {
			if !jsonnode.IsNull(id) {
				out = append(out, id)
			}
		}
		return out
	default:
		return []*astjson.Value{source}
	}
}

// emptyLike returns null for a single source and a list of nulls for a list
// source.
func emptyLike(source *astjson.Value) *astjson.Value {
	if source == nil || source.Type() != astjson.TypeArray {
		return nil
	}
	list := astjson.ArrayValue(nil)
	for i := range source.GetArray() {
		list.SetArrayItem(nil, i, astjson.NullValue)
	}
	return list
}

func anyList(values []*astjson.Value) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = jsonnode.ToAny(v)
	}
	return out
}

func chunk(ids []*astjson.Value, size int) [][]*astjson.Value {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]*astjson.Value
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	return append(out, ids)
}
