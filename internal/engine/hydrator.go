package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/russellyou/nadel/internal/blueprint"
	"github.com/russellyou/nadel/internal/jsonnode"
	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/result"
	"github.com/russellyou/nadel/internal/service"
	"github.com/russellyou/nadel/internal/transform"
)

// hydrator runs actor queries for the hydration rules of one request.
type hydrator struct {
	ex *execution
}

var _ transform.Hydrator = (*hydrator)(nil)

// actorCall is what hydration and batch hydration instructions share.
type actorCall struct {
	service   string
	path      []string
	field     *language.FieldDefinition
	timeout   time.Duration
	batchSize int
	resultID  string
}

func actorCallOf(ins blueprint.FieldInstruction) (*actorCall, error) {
	switch ins := ins.(type) {
	case *blueprint.Hydration:
		return &actorCall{
			service: ins.ActorService,
			path:    ins.PathToActorField,
			field:   ins.ActorField,
			timeout: ins.Timeout,
		}, nil
	case *blueprint.BatchHydration:
		c := &actorCall{
			service:   ins.ActorService,
			path:      ins.PathToActorField,
			field:     ins.ActorField,
			timeout:   ins.Timeout,
			batchSize: ins.BatchSize,
		}
		if m, ok := ins.Match.(*blueprint.MatchObjectIdentifier); ok {
			c.resultID = m.ResultID
		}
		return c, nil
	}
	return nil, fmt.Errorf("not a hydration instruction: %T", ins)
}

// Hydrate queries the actor field with the children of the hydrated field
// and returns its overall-shaped value.
func (h *hydrator) Hydrate(ctx context.Context, req *transform.HydrationRequest) (*transform.HydrationResult, error) {
	e := h.ex.engine
	call, err := actorCallOf(req.Instruction)
	if err != nil {
		return nil, err
	}
	svc := e.services[call.service]
	if svc == nil {
		return nil, fmt.Errorf("unknown service %q", call.service)
	}
	schema := e.bp.Underlying(call.service)

	tree := normalized.NewTree()
	root, last, err := actorChain(tree, schema, call.path, req.Arguments)
	if err != nil {
		return nil, err
	}
	tc := h.ex.transformContext(call.service)
	tc.Overall = req.Overall
	qr, err := e.queries.TransformInto(tc, tree, last, req.Overall.Field(req.Field).Children)
	if err != nil {
		return nil, err
	}
	if req.IdentifierAlias != "" {
		tree.Attach(last, tree.Add(normalized.Field{
			Name:            call.resultID,
			Alias:           req.IdentifierAlias,
			ObjectTypeNames: normalized.PossibleTypes(schema, call.field.Type.Name()),
		}))
	}
	doc, err := normalized.Compile(tree, []normalized.ID{root}, language.Query, "", schema)
	if err != nil {
		return nil, err
	}

	if call.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.timeout)
		defer cancel()
	}
	resp, err := h.ex.call(ctx, svc, &service.Params{
		Query:          doc,
		ExecutionID:    h.ex.executionID,
		ServiceContext: h.ex.serviceContext,
		Hydration: &service.HydrationDetails{
			Timeout:       call.timeout,
			BatchSize:     call.batchSize,
			SourceService: req.SourceService,
			SourceField:   req.Instruction.Location().String(),
			ActorField:    strings.Join(call.path, "."),
		},
	})
	if err != nil {
		return nil, err
	}

	data := result.NewDocument(resp.Data).Data()
	jsonnode.Settle(data)
	ins, err := transform.ResultTransformer{}.Instructions(ctx, tc, qr, data)
	if err != nil {
		return nil, err
	}
	out, errs, err := result.ApplyInstructions(data, ins)
	if err != nil {
		return nil, err
	}
	return &transform.HydrationResult{
		Value:  out.Get(call.path...),
		Errors: append(append([]*result.Error(nil), resp.Errors...), errs...),
	}, nil
}

// actorChain adds the fields leading from the query root to the actor
// field. The actor field receives args.
func actorChain(tree *normalized.Tree, schema *language.Schema, path []string, args []*normalized.Argument) (normalized.ID, normalized.ID, error) {
	if schema == nil || schema.Query == nil {
		return normalized.NoID, normalized.NoID, fmt.Errorf("actor schema has no query type")
	}
	var (
		root   = normalized.NoID
		parent = normalized.NoID
		owner  = schema.Query.Name
	)
	for i, name := range path {
		f := normalized.Field{Name: name, ObjectTypeNames: normalized.PossibleTypes(schema, owner)}
		if i == len(path)-1 {
			f.Arguments = args
		}
		id := tree.Add(f)
		if parent == normalized.NoID {
			root = id
		} else {
			tree.Attach(parent, id)
		}
		parent = id

		def := schema.Types[owner]
		if def == nil || def.Fields.ForName(name) == nil {
			return normalized.NoID, normalized.NoID, fmt.Errorf("field %q not found on %q", name, owner)
		}
		owner = def.Fields.ForName(name).Type.Name()
	}
	return root, parent, nil
}
