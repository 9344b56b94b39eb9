package blueprint

import (
	"sort"

	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/schema"
)

// Blueprint maps the overall schema onto the underlying services. It is
// immutable once built and safe to share between requests.
type Blueprint struct {
	overall      *language.Schema
	services     map[string]*schema.ServiceSchema
	serviceNames []string

	fieldInstructions map[Coordinates][]FieldInstruction
	typeRenames       map[string]*TypeRename
	// service -> underlying type name -> overall type name
	overallNames map[string]map[string]string
	owners       map[Coordinates]string
	namespaced   map[Coordinates]bool
}

// Overall returns the overall schema.
func (b *Blueprint) Overall() *language.Schema { return b.overall }

// Services returns the service names in order.
func (b *Blueprint) Services() []string { return b.serviceNames }

// Underlying returns the underlying schema of service, or nil.
func (b *Blueprint) Underlying(service string) *language.Schema {
	if svc, ok := b.services[service]; ok {
		return svc.Underlying
	}
	return nil
}

// FieldInstructions returns the instructions declared for c, in
// declaration order.
func (b *Blueprint) FieldInstructions(c Coordinates) []FieldInstruction {
	return b.fieldInstructions[c]
}

// UnderlyingTypeName returns the name an overall type has in its service.
// Types without a rename keep their name.
func (b *Blueprint) UnderlyingTypeName(overall string) string {
	if r, ok := b.typeRenames[overall]; ok {
		return r.UnderlyingName
	}
	return overall
}

// OverallTypeName maps an underlying type name of service back to the
// overall name. The boolean reports whether a rename was registered; when it
// is false the input name is returned unchanged.
func (b *Blueprint) OverallTypeName(service, underlying string) (string, bool) {
	if name, ok := b.overallNames[service][underlying]; ok {
		return name, true
	}
	return underlying, false
}

// TypeRenames lists all type renames ordered by overall name.
func (b *Blueprint) TypeRenames() []*TypeRename {
	out := make([]*TypeRename, 0, len(b.typeRenames))
	for _, r := range b.typeRenames {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OverallName < out[j].OverallName })
	return out
}

// Owner returns the service that declared the field at c.
func (b *Blueprint) Owner(c Coordinates) (string, bool) {
	svc, ok := b.owners[c]
	return svc, ok
}

// IsNamespaced reports whether the field at c groups fields owned by
// several services.
func (b *Blueprint) IsNamespaced(c Coordinates) bool { return b.namespaced[c] }
