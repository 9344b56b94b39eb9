package transform

import (
	"fmt"

	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/normalized"
)

// addChain adds nested fields following path in the service's schema. The
// first field is aliased and selected on typeNames, which are underlying
// names. It returns the first and the last field of the chain.
func addChain(tc *Context, tree *normalized.Tree, alias string, path []string, typeNames []string) (normalized.ID, normalized.ID, error) {
	schema := tc.Blueprint.Underlying(tc.Service)
	if schema == nil {
		return normalized.NoID, normalized.NoID, fmt.Errorf("unknown service %q", tc.Service)
	}
	root := tree.Add(normalized.Field{Name: path[0], Alias: alias, ObjectTypeNames: typeNames})
	last := root
	owner := typeNames[0]
	for i, name := range path[1:] {
		def := schema.Types[owner]
		if def == nil {
			return normalized.NoID, normalized.NoID, fmt.Errorf("type %q not found in service %q", owner, tc.Service)
		}
		fd := def.Fields.ForName(path[i])
		if fd == nil {
			return normalized.NoID, normalized.NoID, fmt.Errorf("field %q not found on %q in service %q", path[i], owner, tc.Service)
		}
		types := normalized.PossibleTypes(schema, fd.Type.Name())
		if len(types) == 0 {
			return normalized.NoID, normalized.NoID, fmt.Errorf("type %q not found in service %q", fd.Type.Name(), tc.Service)
		}
		next := tree.Add(normalized.Field{Name: name, ObjectTypeNames: types})
		tree.Attach(last, next)
		last = next
		owner = types[0]
	}
	return root, last, nil
}

// typeNameField adds an aliased __typename selected on the underlying
// names of typeNames.
func typeNameField(tc *Context, tree *normalized.Tree, alias string, typeNames []string) normalized.ID {
	return tree.Add(normalized.Field{
		Name:            language.TypeNameField,
		Alias:           alias,
		ObjectTypeNames: tc.UnderlyingTypeNames(typeNames),
	})
}
