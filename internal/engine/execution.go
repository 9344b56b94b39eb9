package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wundergraph/astjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/russellyou/nadel/internal/blueprint"
	"github.com/russellyou/nadel/internal/eventbus"
	"github.com/russellyou/nadel/internal/events"
	"github.com/russellyou/nadel/internal/introspection"
	"github.com/russellyou/nadel/internal/jsonnode"
	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/reqid"
	"github.com/russellyou/nadel/internal/result"
	"github.com/russellyou/nadel/internal/service"
	"github.com/russellyou/nadel/internal/transform"
)

// execution is the state of one request.
type execution struct {
	engine         *Engine
	op             *normalized.Operation
	executionID    string
	serviceContext any
}

// part is one top-level field sent to one service, or answered locally
// when service is empty.
type part struct {
	service string
	root    normalized.ID
}

func (ex *execution) run(ctx context.Context) (*result.Response, error) {
	parts, err := ex.split()
	if err != nil {
		return result.ErrorResponse(result.NewError(err.Error(), nil, nil)), nil
	}

	responses := make([]*result.Response, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range parts {
		g.Go(func() error {
			resp, err := ex.runPart(gctx, p)
			responses[i] = resp
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(responses), nil
}

// split assigns top-level fields to their owning services. A namespaced
// field is sent once per service owning one of its children.
func (ex *execution) split() ([]part, error) {
	bp := ex.engine.bp
	tree := ex.op.Tree

	var parts []part
	for _, id := range ex.op.Roots {
		f := tree.Field(id)
		if introspection.IsIntrospectionField(f.Name) {
			parts = append(parts, part{root: id})
			continue
		}
		c := blueprint.Coordinates{TypeName: ex.op.RootType, FieldName: f.Name}
		owner, ok := bp.Owner(c)
		if !ok {
			return nil, fmt.Errorf("no service owns %s", c)
		}
		if !bp.IsNamespaced(c) {
			parts = append(parts, part{service: owner, root: id})
			continue
		}

		var (
			owners []string
			groups = make(map[string][]normalized.ID)
		)
		for _, child := range f.Children {
			cf := tree.Field(child)
			childOwner := owner
			if cf.Name != language.TypeNameField {
				if o, ok := bp.Owner(blueprint.Coordinates{TypeName: cf.ObjectTypeNames[0], FieldName: cf.Name}); ok {
					childOwner = o
				}
			}
			if _, seen := groups[childOwner]; !seen {
				owners = append(owners, childOwner)
			}
			groups[childOwner] = append(groups[childOwner], child)
		}
		for _, o := range owners {
			copied := tree.Add(normalized.Field{
				Name:            f.Name,
				Alias:           f.Alias,
				ObjectTypeNames: f.ObjectTypeNames,
				Arguments:       f.Arguments,
				Children:        groups[o],
			})
			parts = append(parts, part{service: o, root: copied})
		}
	}
	return parts, nil
}

func (ex *execution) runPart(ctx context.Context, p part) (*result.Response, error) {
	e := ex.engine
	key := ex.op.Tree.Field(p.root).ResultKey()

	if p.service == "" {
		v, err := e.introspection.ResolveRoot(ex.op.Tree, p.root, ex.op.RootType)
		var value *astjson.Value
		if err == nil {
			value, err = jsonnode.FromAny(v)
		}
		if err != nil {
			return &result.Response{
				Data:   object(key, nil),
				Errors: []*result.Error{result.NewError(err.Error(), jsonnode.PathOf(key), nil)},
			}, nil
		}
		return &result.Response{Data: object(key, value)}, nil
	}

	svc := e.services[p.service]
	tc := ex.transformContext(p.service)
	qr, err := e.queries.Transform(tc, []normalized.ID{p.root})
	if err != nil {
		return ex.exception(p.service, key, err), nil
	}
	doc, err := normalized.Compile(qr.Tree, qr.Roots, ex.op.Kind, ex.op.Name, e.bp.Underlying(p.service))
	if err != nil {
		return ex.exception(p.service, key, err), nil
	}

	resp, err := ex.call(ctx, svc, &service.Params{
		Query:          doc,
		OperationName:  ex.op.Name,
		ExecutionID:    ex.executionID,
		ServiceContext: ex.serviceContext,
	})
	if err != nil {
		return ex.exception(p.service, key, err), nil
	}

	data := result.NewDocument(resp.Data).Data()
	jsonnode.Settle(data)
	ins, err := transform.ResultTransformer{}.Instructions(ctx, tc, qr, data)
	if errors.Is(err, transform.ErrAmbiguousHydration) {
		return nil, err
	}
	if err != nil {
		return ex.exception(p.service, key, err), nil
	}
	out, errs, err := result.Apply(data, ins)
	if err != nil {
		return ex.exception(p.service, key, err), nil
	}
	if out.Get(key) == nil {
		out.Set(nil, key, astjson.NullValue)
	}
	return &result.Response{
		Data:       out,
		Errors:     append(append([]*result.Error(nil), resp.Errors...), errs...),
		Extensions: resp.Extensions,
	}, nil
}

func (ex *execution) transformContext(serviceName string) *transform.Context {
	return &transform.Context{
		Blueprint:   ex.engine.bp,
		Service:     serviceName,
		Overall:     ex.op.Tree,
		ExecutionID: ex.executionID,
		Hooks:       ex.engine.opts.Hooks,
		Hydrator:    &hydrator{ex: ex},
	}
}

// call runs one service call and publishes its events.
func (ex *execution) call(ctx context.Context, svc *service.Service, params *service.Params) (*result.Response, error) {
	ctx, callID := reqid.NewCallContext(ctx)
	hydration := ""
	if params.Hydration != nil {
		hydration = params.Hydration.SourceField
	}
	start := time.Now()
	eventbus.Publish(ctx, events.ServiceCallStart{
		Service:     svc.Name,
		CallID:      callID,
		ExecutionID: ex.executionID,
		Hydration:   hydration,
	})

	resp, err := svc.Execution.Execute(ctx, params)
	if err == nil && resp == nil {
		err = fmt.Errorf("service %q returned no response", svc.Name)
	}

	finish := events.ServiceCallFinish{
		Service:     svc.Name,
		CallID:      callID,
		ExecutionID: ex.executionID,
		Hydration:   hydration,
		Err:         err,
		Duration:    time.Since(start),
	}
	if resp != nil {
		finish.ErrorCount = len(resp.Errors)
	}
	eventbus.Publish(ctx, finish)
	if err != nil {
		ex.engine.logger.Error("service call failed",
			zap.String("service", svc.Name),
			zap.String("executionId", ex.executionID),
			zap.String("hydration", hydration),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// exception turns a failed pipeline into a null field and one error.
func (ex *execution) exception(serviceName, key string, err error) *result.Response {
	return &result.Response{
		Data: object(key, nil),
		Errors: []*result.Error{result.NewError(
			fmt.Sprintf("An exception occurred invoking the service '%s': %v", serviceName, err),
			jsonnode.PathOf(key),
			map[string]any{"executionId": ex.executionID},
		)},
	}
}

// object returns {key: value}; a nil value is null.
func object(key string, value *astjson.Value) *astjson.Value {
	obj := astjson.ObjectValue(nil)
	obj.Set(nil, key, jsonnode.OrNull(value))
	return obj
}

// merge combines part responses in field order. Objects of namespaced
// fields answered by several services are merged key by key.
func merge(parts []*result.Response) *result.Response {
	out := &result.Response{Data: astjson.ObjectValue(nil)}
	for _, p := range parts {
		out.Data = mergeValues(out.Data, p.Data)
		out.Errors = append(out.Errors, p.Errors...)
		for k, v := range p.Extensions {
			if out.Extensions == nil {
				out.Extensions = map[string]any{}
			}
			out.Extensions[k] = v
		}
	}
	return out
}

// mergeValues merges b into a. A null never replaces a value.
func mergeValues(a, b *astjson.Value) *astjson.Value {
	switch {
	case jsonnode.IsNull(b):
		return a
	case jsonnode.IsNull(a):
		return b
	case a.Type() == astjson.TypeObject && b.Type() == astjson.TypeObject:
		obj, _ := b.Object()
		obj.Visit(func(key []byte, v *astjson.Value) {
			k := string(key)
			if existing := a.Get(k); existing != nil {
				a.Set(nil, k, mergeMember(existing, v))
				return
			}
			a.Set(nil, k, v)
		})
		return a
	}
	return b
}

// mergeMember merges two values found under the same key, with the null
// handling of mergeValues around astjson.MergeValues.
func mergeMember(a, b *astjson.Value) *astjson.Value {
	if jsonnode.IsNull(a) || jsonnode.IsNull(b) {
		return mergeValues(a, b)
	}
	merged, _, err := astjson.MergeValues(nil, a, b)
	if err != nil {
		return b
	}
	return merged
}
