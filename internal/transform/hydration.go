package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wundergraph/astjson"
	"golang.org/x/sync/errgroup"

	"github.com/russellyou/nadel/internal/blueprint"
	"github.com/russellyou/nadel/internal/jsonnode"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/result"
)

// Hydration resolves a field with one actor call per parent object, or per
// element of a list source value. The hydrated field leaves the outgoing
// query; the source fields it needs are selected under artificial aliases.
type Hydration struct{}

// hydrationState is shared by Hydration and BatchHydration.
type hydrationState struct {
	field     normalized.ID
	resultKey string
	aliases   AliasHelper
	// byType holds *blueprint.Hydration and *blueprint.BatchHydration
	// instructions per overall object type.
	byType map[string][]blueprint.FieldInstruction
	plain  []string
}

func newHydrationState(tc *Context, id normalized.ID, tag string) (*hydrationState, bool) {
	f := tc.Overall.Field(id)
	st := &hydrationState{
		field:     id,
		resultKey: f.ResultKey(),
		aliases:   NewAliasHelper(tag, f.ResultKey()),
		byType:    make(map[string][]blueprint.FieldInstruction),
	}
	batched := false
	for _, typeName := range tc.ObjectTypeNames(id) {
		var found []blueprint.FieldInstruction
		for _, ins := range tc.Blueprint.FieldInstructions(blueprint.Coordinates{TypeName: typeName, FieldName: f.Name}) {
			switch ins.(type) {
			case *blueprint.Hydration:
				found = append(found, ins)
			case *blueprint.BatchHydration:
				found = append(found, ins)
				batched = true
			}
		}
		if len(found) == 0 {
			st.plain = append(st.plain, typeName)
			continue
		}
		st.byType[typeName] = found
	}
	return st, batched
}

func (*Hydration) Name() string { return "hydration" }

func (*Hydration) IsApplicable(tc *Context, id normalized.ID) (any, bool) {
	st, batched := newHydrationState(tc, id, tagHydration)
	return st, len(st.byType) > 0 && !batched
}

func (*Hydration) TransformField(tc *Context, cont *Continuation, id normalized.ID, state any) (FieldResult, error) {
	return state.(*hydrationState).transformField(tc, cont)
}

func (*Hydration) ResultInstructions(ctx context.Context, rc *ResultContext, app *Applied) ([]result.Instruction, error) {
	st := app.State.(*hydrationState)
	parents := rc.ParentNodes(app)
	perParent := make([][]result.Instruction, len(parents))

	// Every parent is resolved before the first actor call starts, so a
	// failure leaves no call behind.
	chosen := make([]*blueprint.Hydration, len(parents))
	for i, parent := range parents {
		ins, err := st.instructionFor(rc, parent)
		if err != nil {
			return nil, err
		}
		switch ins := ins.(type) {
		case nil:
			if len(st.byType[st.overallType(rc, parent)]) > 0 {
				perParent[i] = []result.Instruction{&result.Set{Path: st.dest(parent)}}
			}
		case *blueprint.Hydration:
			chosen[i] = ins
		default:
			return nil, fmt.Errorf("hydration: unexpected instruction %T for %s", ins, ins.Location())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, ins := range chosen {
		if ins == nil {
			continue
		}
		g.Go(func() error {
			out, err := st.hydrate(gctx, rc, parents[i], ins)
			perParent[i] = out
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []result.Instruction
	for _, ins := range perParent {
		out = append(out, ins...)
	}
	return out, nil
}

// transformField drops the hydrated field, keeps it for object types that
// resolve it normally, and selects the source fields and __typename under
// artificial aliases.
func (st *hydrationState) transformField(tc *Context, cont *Continuation) (FieldResult, error) {
	tree := cont.Tree()
	typeNames := tc.ObjectTypeNames(st.field)

	var fr FieldResult
	if len(st.plain) > 0 {
		rest, err := cont.Rest(st.field, st.plain)
		if err != nil {
			return FieldResult{}, err
		}
		fr.NewFields = append(fr.NewFields, rest.NewFields...)
		fr.Artificial = append(fr.Artificial, rest.Artificial...)
	}

	var (
		paths   []string
		byPath  = make(map[string][]string)
		typesOf = make(map[string][]string)
	)
	for _, typeName := range typeNames {
		for _, ins := range st.byType[typeName] {
			for _, path := range sourcePaths(ins) {
				key := strings.Join(path, ".")
				if _, seen := byPath[key]; !seen {
					paths = append(paths, key)
					byPath[key] = path
				}
				if !containsString(typesOf[key], typeName) {
					typesOf[key] = append(typesOf[key], typeName)
				}
			}
		}
	}
	for _, key := range paths {
		path := byPath[key]
		root, _, err := addChain(tc, tree, st.aliases.Alias(path[0]), path, tc.UnderlyingTypeNames(typesOf[key]))
		if err != nil {
			return FieldResult{}, err
		}
		fr.Artificial = append(fr.Artificial, root)
	}
	fr.Artificial = append(fr.Artificial, typeNameField(tc, tree, st.aliases.TypeNameAlias(), typeNames))
	return fr, nil
}

func (st *hydrationState) dest(parent jsonnode.Node) jsonnode.Path {
	return parent.Path.Key(st.resultKey)
}

func (st *hydrationState) overallType(rc *ResultContext, parent jsonnode.Node) string {
	typeName, _ := parent.StringAt(st.aliases.TypeNameAlias())
	return rc.OverallTypeName(typeName)
}

// instructionFor picks the instruction that hydrates the field of parent.
// Several candidates are resolved by the hook; without a hook the
// configuration is ambiguous.
func (st *hydrationState) instructionFor(rc *ResultContext, parent jsonnode.Node) (blueprint.FieldInstruction, error) {
	candidates := st.byType[st.overallType(rc, parent)]
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return candidates[0], nil
	}
	if rc.Hooks == nil {
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousHydration, candidates[0].Location())
	}
	return rc.Hooks.HydrationInstruction(candidates, parent), nil
}

// sourceValue reads a $source value selected for parent, nil when missing.
func (st *hydrationState) sourceValue(parent jsonnode.Node, path []string) *astjson.Value {
	qp := jsonnode.QueryPath{st.aliases.Alias(path[0])}.Append(path[1:]...)
	node, ok := jsonnode.GetNodeAt(parent, qp)
	if !ok {
		return nil
	}
	return node.Value
}

// arguments builds the actor field arguments. Values of $source arguments
// come from sources, keyed by argument name.
func (st *hydrationState) arguments(rc *ResultContext, service string, args []blueprint.HydrationArgument, sources map[string]any) []*normalized.Argument {
	schema := rc.Blueprint.Underlying(service)
	overall := rc.Overall.Field(st.field)
	var out []*normalized.Argument
	for _, arg := range args {
		switch src := arg.Source.(type) {
		case *blueprint.FieldValue:
			out = append(out, &normalized.Argument{Name: arg.Name, Value: normalized.ValueFromAny(sources[arg.Name], arg.Definition.Type, schema)})
		case *blueprint.ArgumentValue:
			if given := overall.Argument(src.Name); given != nil {
				out = append(out, &normalized.Argument{Name: arg.Name, Value: given.Value})
			}
		}
	}
	return out
}

func (st *hydrationState) call(ctx context.Context, rc *ResultContext, ins blueprint.FieldInstruction, args []*normalized.Argument, identifierAlias string) (*HydrationResult, error) {
	if rc.Hydrator == nil {
		return nil, fmt.Errorf("no hydrator configured")
	}
	return rc.Hydrator.Hydrate(ctx, &HydrationRequest{
		Instruction:     ins,
		Arguments:       args,
		Overall:         rc.Overall,
		Field:           st.field,
		SourceService:   rc.Service,
		IdentifierAlias: identifierAlias,
	})
}

// hydrate runs a one-to-one or many-to-one hydration for parent.
func (st *hydrationState) hydrate(ctx context.Context, rc *ResultContext, parent jsonnode.Node, ins *blueprint.Hydration) ([]result.Instruction, error) {
	dest := st.dest(parent)
	sources := make(map[string]any)
	var (
		listArg string
		items   []any
	)
	for _, arg := range ins.Arguments {
		fv, ok := arg.Source.(*blueprint.FieldValue)
		if !ok {
			continue
		}
		v := jsonnode.ToAny(st.sourceValue(parent, fv.Path))
		sources[arg.Name] = v
		if list, ok := v.([]any); ok && listArg == "" {
			listArg, items = arg.Name, list
		}
	}

	if ins.Strategy == blueprint.OneToOne {
		if len(sources) > 0 && allNil(sources) {
			return []result.Instruction{&result.Set{Path: dest}}, nil
		}
		res, err := st.call(ctx, rc, ins, st.arguments(rc, ins.ActorService, ins.Arguments, sources), "")
		if errors.Is(err, ErrAmbiguousHydration) {
			return nil, err
		}
		if err != nil {
			return []result.Instruction{
				&result.Set{Path: dest},
				&result.AddError{Error: actorCallError(rc, ins.ActorService, dest, err)},
			}, nil
		}
		out := []result.Instruction{&result.Set{Path: dest, Value: res.Value}}
		return append(out, repath(res.Errors, dest)...), nil
	}

	// Many-to-one: the list source is spread over one call per element.
	if listArg == "" {
		return []result.Instruction{&result.Set{Path: dest}}, nil
	}

	values := make([]*astjson.Value, len(items))
	errs := make([][]result.Instruction, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		if item == nil {
			continue
		}
		g.Go(func() error {
			elemSources := make(map[string]any, len(sources))
			for k, v := range sources {
				elemSources[k] = v
			}
			elemSources[listArg] = item
			elemDest := dest.Append(jsonnode.Index(i))
			res, err := st.call(gctx, rc, ins, st.arguments(rc, ins.ActorService, ins.Arguments, elemSources), "")
			if errors.Is(err, ErrAmbiguousHydration) {
				return err
			}
			if err != nil {
				errs[i] = []result.Instruction{&result.AddError{Error: actorCallError(rc, ins.ActorService, elemDest, err)}}
				return nil
			}
			values[i] = res.Value
			errs[i] = repath(res.Errors, elemDest)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	list := astjson.ArrayValue(nil)
	for i, v := range values {
		list.SetArrayItem(nil, i, jsonnode.OrNull(v))
	}
	out := []result.Instruction{&result.Set{Path: dest, Value: list}}
	for _, e := range errs {
		out = append(out, e...)
	}
	return out, nil
}

func sourcePaths(ins blueprint.FieldInstruction) [][]string {
	switch ins := ins.(type) {
	case *blueprint.Hydration:
		return ins.SourcePaths()
	case *blueprint.BatchHydration:
		return ins.SourcePaths()
	}
	return nil
}

// actorCallError reports a failed actor call at the hydrated field.
func actorCallError(rc *ResultContext, service string, at jsonnode.Path, err error) *result.Error {
	return result.NewError(
		fmt.Sprintf("An exception occurred invoking the service '%s': %v", service, err),
		at,
		map[string]any{"executionId": rc.ExecutionID},
	)
}

// repath moves actor errors to the hydrated field.
func repath(errs []*result.Error, at jsonnode.Path) []result.Instruction {
	var out []result.Instruction
	for _, e := range errs {
		moved := *e
		moved.Path = at.Values()
		out = append(out, &result.AddError{Error: &moved})
	}
	return out
}

func allNil(values map[string]any) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
