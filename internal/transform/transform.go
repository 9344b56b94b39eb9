// Package transform rewrites overall fields into underlying fields and
// produces the result instructions that turn underlying results back into
// overall results.
package transform

import (
	"context"
	"errors"

	"github.com/wundergraph/astjson"

	"github.com/russellyou/nadel/internal/blueprint"
	"github.com/russellyou/nadel/internal/jsonnode"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/result"
)

// ErrAmbiguousHydration is returned when a result node matches more than one
// hydration instruction and no hook is configured to choose between them.
var ErrAmbiguousHydration = errors.New("transform: ambiguous hydration instructions and no hook to choose")

// Transform is one rewrite rule. IsApplicable returns a state when the rule
// claims the field; the same state is handed to TransformField and, once the
// service answered, to ResultInstructions.
type Transform interface {
	Name() string
	IsApplicable(tc *Context, field normalized.ID) (any, bool)
	TransformField(tc *Context, cont *Continuation, field normalized.ID, state any) (FieldResult, error)
	ResultInstructions(ctx context.Context, rc *ResultContext, app *Applied) ([]result.Instruction, error)
}

// FieldResult is the outcome of a rule rewriting one field into zero or
// more fields. No NewFields drops the field from the outgoing query.
// Artificial fields are attached next to them and never reach the client.
type FieldResult struct {
	NewFields  []normalized.ID
	Artificial []normalized.ID
}

// Applied records a rule that claimed a field.
type Applied struct {
	Transform Transform
	// Field is the overall field.
	Field normalized.ID
	// UnderlyingParent is the field of the outgoing query under which the
	// rewritten field sits, NoID at the root.
	UnderlyingParent normalized.ID
	State            any
}

// Context is shared by all rules for one query sent to one service.
type Context struct {
	Blueprint *blueprint.Blueprint
	// Service receives the rewritten query.
	Service string
	// Overall holds the fields being rewritten.
	Overall     *normalized.Tree
	ExecutionID string
	Hooks       Hooks
	Hydrator    Hydrator

	// restricted narrows the object types of fields handed on by Rest.
	restricted map[normalized.ID][]string
}

// ObjectTypeNames returns the overall object types field is selected on, as
// seen by the rule currently looking at it.
func (tc *Context) ObjectTypeNames(field normalized.ID) []string {
	if names, ok := tc.restricted[field]; ok {
		return names
	}
	return tc.Overall.Field(field).ObjectTypeNames
}

// UnderlyingTypeNames maps overall object type names to the names used by
// the service.
func (tc *Context) UnderlyingTypeNames(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = tc.Blueprint.UnderlyingTypeName(n)
	}
	return out
}

// OverallTypeName maps a type name returned by the service to its overall
// name. Unmapped names are returned unchanged.
func (tc *Context) OverallTypeName(underlying string) string {
	name, _ := tc.Blueprint.OverallTypeName(tc.Service, underlying)
	return name
}

// Hooks customize rule behavior.
type Hooks interface {
	// HydrationInstruction picks the instruction used to hydrate the field
	// of parent among several candidates. Returning nil hydrates null.
	HydrationInstruction(candidates []blueprint.FieldInstruction, parent jsonnode.Node) blueprint.FieldInstruction
}

// HooksFunc adapts a function to Hooks.
type HooksFunc func(candidates []blueprint.FieldInstruction, parent jsonnode.Node) blueprint.FieldInstruction

func (f HooksFunc) HydrationInstruction(candidates []blueprint.FieldInstruction, parent jsonnode.Node) blueprint.FieldInstruction {
	return f(candidates, parent)
}

// Hydrator runs actor queries on behalf of hydration rules.
type Hydrator interface {
	Hydrate(ctx context.Context, req *HydrationRequest) (*HydrationResult, error)
}

// HydrationRequest asks for the actor field of Instruction, called with
// Arguments, selecting the children of the hydrated overall field.
type HydrationRequest struct {
	// Instruction is a *blueprint.Hydration or *blueprint.BatchHydration.
	Instruction blueprint.FieldInstruction
	Arguments   []*normalized.Argument
	Overall     *normalized.Tree
	Field       normalized.ID
	// SourceService owns the hydrated field.
	SourceService string
	// IdentifierAlias, when set, asks for the actor result's identifier
	// field under this alias, for batch matching by object identifier.
	IdentifierAlias string
}

// HydrationResult is the overall-shaped value of the actor field. Artificial
// keys are still present. A nil Value is null.
type HydrationResult struct {
	Value  *astjson.Value
	Errors []*result.Error
}
