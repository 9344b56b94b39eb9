// Package reqid carries the execution id of a gateway request in a context.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

// key is the context key for the execution id.
type key struct{}

// callKey is the context key for the id of one service call.
type callKey struct{}

// NewContext returns a copy of parent with a new random execution id
// stored. It also returns the generated id.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithID(parent, id), id
}

// WithID returns a copy of parent carrying id.
func WithID(parent context.Context, id string) context.Context {
	return context.WithValue(parent, key{}, id)
}

// FromContext extracts the execution id from ctx.
// It returns the id and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok && id != ""
}

// NewCallContext returns a copy of parent carrying a new id for one
// outgoing service call. Concurrent calls of one request are told apart by
// it.
func NewCallContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(parent, callKey{}, id), id
}

// CallIDFromContext extracts the service call id from ctx.
func CallIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(callKey{}).(string)
	return id, ok
}
