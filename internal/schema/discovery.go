package schema

import (
	"context"
)

// ServiceMetadata describes one service found by a Discovery.
type ServiceMetadata struct {
	Name string
	// Paths of the SDL files, relative to the discovery root. Empty for
	// in-memory services.
	OverallPath    string
	UnderlyingPath string
}

// Discovery lists services and reads the two SDL documents each one has:
// its part of the overall schema and its own underlying schema.
type Discovery interface {
	ListServices(ctx context.Context) ([]*ServiceMetadata, error)
	ReadOverallSDL(ctx context.Context, name string) (string, error)
	ReadUnderlyingSDL(ctx context.Context, name string) (string, error)
}
