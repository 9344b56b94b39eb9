package schema

import (
	"context"
	"fmt"

	language "github.com/russellyou/nadel/internal/language"
)

// Set holds every schema the gateway is built from.
type Set struct {
	// Overall is the unified schema exposed to clients, with the gateway
	// directives declared.
	Overall  *language.Schema
	Services []*ServiceSchema
}

// ServiceSchema is one service's contribution to the overall schema and
// the schema of the service itself.
type ServiceSchema struct {
	Name string
	// Overall lists only the definitions and extensions this service
	// declares. Ownership of fields is derived from it.
	Overall    *language.SchemaDocument
	Underlying *language.Schema
}

// Service returns the named service schema or nil.
func (s *Set) Service(name string) *ServiceSchema {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc
		}
	}
	return nil
}

// Load reads every discovered service and builds the schema set.
func Load(ctx context.Context, discovery Discovery) (*Set, error) {
	metas, err := discovery.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("no services discovered")
	}

	set := &Set{}
	var overallSources []*language.Source
	for _, meta := range metas {
		overallSDL, err := discovery.ReadOverallSDL(ctx, meta.Name)
		if err != nil {
			return nil, err
		}
		underlyingSDL, err := discovery.ReadUnderlyingSDL(ctx, meta.Name)
		if err != nil {
			return nil, err
		}

		overallSrc := &language.Source{Name: sourceName(meta.OverallPath, meta.Name+overallExt), Input: overallSDL}
		doc, err := language.ParseSchemas(overallSrc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse overall schema of %q: %w", meta.Name, err)
		}
		underlying, err := language.LoadSchema(&language.Source{
			Name:  sourceName(meta.UnderlyingPath, meta.Name+underlyingExt),
			Input: underlyingSDL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load underlying schema of %q: %w", meta.Name, err)
		}
		set.Services = append(set.Services, &ServiceSchema{
			Name:       meta.Name,
			Overall:    doc,
			Underlying: underlying,
		})
		overallSources = append(overallSources, overallSrc)
	}

	overall, err := buildOverall(overallSources)
	if err != nil {
		return nil, fmt.Errorf("failed to load overall schema: %w", err)
	}
	set.Overall = overall
	return set, nil
}

// buildOverall merges the services' overall documents into one schema.
// Every service may declare its own `type Query`; repeated object
// definitions are folded in as extensions of the first one and repeated
// scalars are dropped. Sources are
// parsed afresh because validation mutates the definitions it merges.
func buildOverall(sources []*language.Source) (*language.Schema, error) {
	merged, err := language.ParseSchemas(language.Prelude, Prelude)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for _, def := range merged.Definitions {
		seen[def.Name] = true
	}
	for _, src := range sources {
		doc, err := language.ParseSchemas(src)
		if err != nil {
			return nil, err
		}
		for _, def := range doc.Definitions {
			if seen[def.Name] {
				switch def.Kind {
				case language.Object:
					merged.Extensions = append(merged.Extensions, def)
					continue
				case language.Scalar:
					continue
				}
			}
			seen[def.Name] = true
			merged.Definitions = append(merged.Definitions, def)
		}
		merged.Extensions = append(merged.Extensions, doc.Extensions...)
		merged.Directives = append(merged.Directives, doc.Directives...)
		merged.Schema = append(merged.Schema, doc.Schema...)
		merged.SchemaExtension = append(merged.SchemaExtension, doc.SchemaExtension...)
	}
	return language.BuildSchema(merged)
}

func sourceName(path, fallback string) string {
	if path != "" {
		return path
	}
	return fallback
}
