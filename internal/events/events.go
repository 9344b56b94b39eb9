// Package events defines the payloads published on the event bus while a
// request moves through the gateway. Subscribers (tracing, metrics) join
// start and finish events by ExecutionID or CallID.
package events

import (
	"net/http"
	"time"

	"google.golang.org/grpc/codes"
)

// HTTPStart is emitted when the server receives a request, once its
// execution id is known.
type HTTPStart struct {
	ExecutionID string
	Request     *http.Request
}

// HTTPFinish is emitted after the handler wrote its response.
type HTTPFinish struct {
	ExecutionID string
	Request     *http.Request
	Status      int
	Duration    time.Duration
}

// GraphQLStart is emitted before the engine executes an operation.
type GraphQLStart struct {
	ExecutionID   string
	Query         string
	OperationName string
	OperationType string
}

// GraphQLFinish is emitted after the engine produced a response. Errors
// holds the GraphQL errors of the response, or the failure that aborted it.
type GraphQLFinish struct {
	ExecutionID   string
	Query         string
	OperationName string
	OperationType string
	Errors        []error
	Duration      time.Duration
}

// ServiceCallStart is emitted before the gateway calls a service.
type ServiceCallStart struct {
	Service     string
	CallID      string
	ExecutionID string
	// Hydration is the hydrated field as Type.field, empty for top-level
	// calls.
	Hydration string
}

// ServiceCallFinish is emitted after a service call returned.
type ServiceCallFinish struct {
	Service     string
	CallID      string
	ExecutionID string
	Hydration   string
	// Err is set when the call itself failed.
	Err error
	// ErrorCount counts GraphQL errors reported by the service.
	ErrorCount int
	Duration   time.Duration
}

// GRPCClientStart is emitted before the gRPC transport invokes an endpoint.
type GRPCClientStart struct {
	CallID  string
	Service string
	Method  string
	Target  string
}

// GRPCClientFinish is emitted after the invocation returned.
type GRPCClientFinish struct {
	CallID   string
	Service  string
	Method   string
	Target   string
	Code     codes.Code
	Err      error
	Duration time.Duration
}
