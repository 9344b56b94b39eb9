package schema

import (
	"context"
	"fmt"
)

type InMemoryService struct {
	Name       string
	Overall    string
	Underlying string
}

// InMemoryDiscovery serves schemas held in memory. Used by tests and by
// callers that assemble SDL themselves.
type InMemoryDiscovery struct {
	metas    map[string]*ServiceMetadata
	services map[string]InMemoryService
}

func NewInMemoryDiscovery(svcs []InMemoryService) *InMemoryDiscovery {
	discovery := &InMemoryDiscovery{
		metas:    make(map[string]*ServiceMetadata),
		services: make(map[string]InMemoryService),
	}
	for _, svc := range svcs {
		discovery.metas[svc.Name] = &ServiceMetadata{Name: svc.Name}
		discovery.services[svc.Name] = svc
	}
	return discovery
}

// ListServices implements Discovery interface
func (d *InMemoryDiscovery) ListServices(ctx context.Context) ([]*ServiceMetadata, error) {
	return sortedMetas(d.metas), nil
}

// ReadOverallSDL implements Discovery interface
func (d *InMemoryDiscovery) ReadOverallSDL(ctx context.Context, name string) (string, error) {
	svc, ok := d.services[name]
	if !ok {
		return "", fmt.Errorf("service %q not found", name)
	}
	return svc.Overall, nil
}

// ReadUnderlyingSDL implements Discovery interface
func (d *InMemoryDiscovery) ReadUnderlyingSDL(ctx context.Context, name string) (string, error) {
	svc, ok := d.services[name]
	if !ok {
		return "", fmt.Errorf("service %q not found", name)
	}
	return svc.Underlying, nil
}
