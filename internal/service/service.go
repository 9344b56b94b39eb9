// Package service defines how the gateway talks to the services behind it.
package service

import (
	"context"
	"time"

	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/result"
)

// Service is a named backend with its own GraphQL schema.
type Service struct {
	Name      string
	Execution Execution
}

// Execution runs one operation against a service. A returned error means
// the call itself failed; GraphQL errors travel in the response.
type Execution interface {
	Execute(ctx context.Context, params *Params) (*result.Response, error)
}

// ExecutionFunc adapts a function to Execution.
type ExecutionFunc func(ctx context.Context, params *Params) (*result.Response, error)

func (f ExecutionFunc) Execute(ctx context.Context, params *Params) (*result.Response, error) {
	return f(ctx, params)
}

// Params describe one call to a service.
type Params struct {
	Query         *language.QueryDocument
	Variables     map[string]any
	OperationName string
	ExecutionID   string
	// ServiceContext is handed through untouched from the gateway caller.
	ServiceContext any
	// Hydration is set when the call fetches hydrated data.
	Hydration *HydrationDetails
}

// QueryString prints the query document.
func (p *Params) QueryString() string { return language.FormatQuery(p.Query) }

// IsHydration reports whether the call fetches hydrated data.
func (p *Params) IsHydration() bool { return p.Hydration != nil }

// HydrationDetails describe the hydration a call is made for.
type HydrationDetails struct {
	Timeout   time.Duration
	BatchSize int
	// SourceService owns the hydrated field, SourceField names it as
	// Type.field.
	SourceService string
	SourceField   string
	// ActorField is the dotted path of the field called on the actor.
	ActorField string
}
