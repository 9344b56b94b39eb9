package transform

import (
	"context"

	"github.com/wundergraph/astjson"
	"golang.org/x/sync/errgroup"

	"github.com/russellyou/nadel/internal/jsonnode"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/result"
)

// ResultContext gives rules access to the service result.
type ResultContext struct {
	*Context
	Query *QueryResult
	Nodes *jsonnode.Nodes
}

// ParentNodes returns the objects in the result under which the rewritten
// field of app sits. Lists are flattened; nulls are skipped.
func (rc *ResultContext) ParentNodes(app *Applied) []jsonnode.Node {
	var qp jsonnode.QueryPath
	if app.UnderlyingParent != normalized.NoID {
		qp = rc.Query.Tree.QueryPath(app.UnderlyingParent)
	}
	var out []jsonnode.Node
	for _, n := range rc.Nodes.GetNodesAt(qp, true) {
		if n.IsObject() {
			out = append(out, n)
		}
	}
	return out
}

// ResultTransformer turns a service result into the instructions that make
// it overall-shaped.
type ResultTransformer struct{}

// Instructions runs the result phase of every applied rule. Rules run
// concurrently; their instructions are concatenated in the order the rules
// were applied, children before ancestors.
func (ResultTransformer) Instructions(ctx context.Context, tc *Context, qr *QueryResult, data *astjson.Value) ([]result.Instruction, error) {
	rc := &ResultContext{Context: tc, Query: qr, Nodes: jsonnode.New(data)}
	perRule := make([][]result.Instruction, len(qr.Applied))

	g, gctx := errgroup.WithContext(ctx)
	for i, app := range qr.Applied {
		g.Go(func() error {
			ins, err := app.Transform.ResultInstructions(gctx, rc, app)
			if err != nil {
				return err
			}
			perRule[i] = ins
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []result.Instruction
	for _, ins := range perRule {
		out = append(out, ins...)
	}
	return out, nil
}
