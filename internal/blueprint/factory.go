package blueprint

import (
	"sort"
	"strconv"
	"strings"
	"time"

	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/schema"
)

const defaultBatchSize = 200

// New builds the blueprint of a schema set. Every mapping declaration is
// checked against the underlying schemas; all problems are reported
// together as a SchemaMappingError.
func New(set *schema.Set) (*Blueprint, error) {
	f := &factory{
		set: set,
		bp: &Blueprint{
			overall:           set.Overall,
			services:          make(map[string]*schema.ServiceSchema),
			fieldInstructions: make(map[Coordinates][]FieldInstruction),
			typeRenames:       make(map[string]*TypeRename),
			overallNames:      make(map[string]map[string]string),
			owners:            make(map[Coordinates]string),
			namespaced:        make(map[Coordinates]bool),
		},
	}
	for _, svc := range set.Services {
		f.bp.services[svc.Name] = svc
		f.bp.serviceNames = append(f.bp.serviceNames, svc.Name)
		f.bp.overallNames[svc.Name] = make(map[string]string)
	}
	sort.Strings(f.bp.serviceNames)

	for _, svc := range set.Services {
		f.collectTypeRenames(svc)
	}
	for _, svc := range set.Services {
		f.collectFields(svc)
	}
	f.inheritInterfaceInstructions()

	if len(f.violations) > 0 {
		return nil, f.violations
	}
	return f.bp, nil
}

type factory struct {
	set        *schema.Set
	bp         *Blueprint
	violations SchemaMappingError
}

func (f *factory) report(v *Violation) { f.violations = append(f.violations, v) }

func (f *factory) collectTypeRenames(svc *schema.ServiceSchema) {
	for _, def := range svc.Overall.Definitions {
		d := def.Directives.ForName(schema.DirectiveRenamed)
		if d == nil {
			continue
		}
		c := Coordinates{TypeName: def.Name}
		from, ok := stringArg(d, "from")
		if !ok || from == "" {
			f.report(violationBadDirectiveArgument(c, schema.DirectiveRenamed, "from", "must be a non-empty string", d.Position))
			continue
		}
		if svc.Underlying.Types[from] == nil {
			f.report(violationUnderlyingTypeNotFound(c, svc.Name, from, d.Position))
			continue
		}
		f.bp.typeRenames[def.Name] = &TypeRename{Service: svc.Name, OverallName: def.Name, UnderlyingName: from}
		f.bp.overallNames[svc.Name][from] = def.Name
	}
}

func (f *factory) collectFields(svc *schema.ServiceSchema) {
	defs := append(append(language.DefinitionList{}, svc.Overall.Definitions...), svc.Overall.Extensions...)
	for _, def := range defs {
		if def.Kind != language.Object && def.Kind != language.Interface {
			continue
		}
		for _, field := range def.Fields {
			c := Coordinates{TypeName: def.Name, FieldName: field.Name}
			if _, taken := f.bp.owners[c]; !taken {
				f.bp.owners[c] = svc.Name
			}
			if field.Directives.ForName(schema.DirectiveNamespaced) != nil {
				f.bp.namespaced[c] = true
			}

			renamed := field.Directives.ForName(schema.DirectiveRenamed)
			hydrated := field.Directives.ForNames(schema.DirectiveHydrated)
			if renamed != nil && len(hydrated) > 0 {
				f.report(violationConflictingInstructions(c, field.Position))
				continue
			}
			if renamed != nil {
				if ins := f.rename(svc, c, renamed); ins != nil {
					f.bp.fieldInstructions[c] = append(f.bp.fieldInstructions[c], ins)
				}
			}
			for _, d := range hydrated {
				if ins := f.hydration(svc, c, field, d); ins != nil {
					f.bp.fieldInstructions[c] = append(f.bp.fieldInstructions[c], ins)
				}
			}
		}
	}
}

func (f *factory) rename(svc *schema.ServiceSchema, c Coordinates, d *language.Directive) FieldInstruction {
	from, ok := stringArg(d, "from")
	if !ok || from == "" {
		f.report(violationBadDirectiveArgument(c, schema.DirectiveRenamed, "from", "must be a non-empty string", d.Position))
		return nil
	}
	path := strings.Split(from, ".")
	if _, ok := f.resolvePath(svc, c, f.bp.UnderlyingTypeName(c.TypeName), path, d.Position); !ok {
		return nil
	}
	if len(path) == 1 {
		return &Rename{Coordinates: c, UnderlyingName: from}
	}
	return &DeepRename{Coordinates: c, PathToField: path}
}

func (f *factory) hydration(svc *schema.ServiceSchema, c Coordinates, field *language.FieldDefinition, d *language.Directive) FieldInstruction {
	actorName, _ := stringArg(d, "service")
	actorSvc := f.set.Service(actorName)
	if actorSvc == nil {
		f.report(violationUnknownService(c, actorName, d.Position))
		return nil
	}
	actorPath, _ := stringArg(d, "field")
	if actorPath == "" {
		f.report(violationBadDirectiveArgument(c, schema.DirectiveHydrated, "field", "must be a non-empty string", d.Position))
		return nil
	}
	if actorSvc.Underlying.Query == nil {
		f.report(violationUnderlyingTypeNotFound(c, actorName, "Query", d.Position))
		return nil
	}
	pathToActor := strings.Split(actorPath, ".")
	actorField, ok := f.resolvePath(actorSvc, c, actorSvc.Underlying.Query.Name, pathToActor, d.Position)
	if !ok {
		return nil
	}

	args, sourceIsList, ok := f.hydrationArguments(svc, c, field, actorField, d)
	if !ok {
		return nil
	}

	var timeout time.Duration
	if ms, ok := intArg(d, "timeout"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	batched, _ := boolArg(d, "batched")
	var sources []HydrationArgument
	for _, arg := range args {
		if _, ok := arg.Source.(*FieldValue); ok {
			sources = append(sources, arg)
			if arg.Definition.Type.Elem != nil && actorField.Type.Elem != nil {
				batched = true
			}
		}
	}
	if !batched {
		strategy := OneToOne
		if sourceIsList {
			strategy = ManyToOne
		}
		return &Hydration{
			Coordinates:      c,
			ActorService:     actorName,
			PathToActorField: pathToActor,
			ActorField:       actorField,
			Arguments:        args,
			Strategy:         strategy,
			Timeout:          timeout,
		}
	}

	if len(sources) != 1 {
		f.report(violationBatchSource(c, len(sources), d.Position))
		return nil
	}
	batchSize := defaultBatchSize
	if n, ok := intArg(d, "batchSize"); ok {
		if n <= 0 {
			f.report(violationBadDirectiveArgument(c, schema.DirectiveHydrated, "batchSize", "must be positive", d.Position))
			return nil
		}
		batchSize = n
	}
	var match MatchStrategy = MatchIndex{}
	if indexed, _ := boolArg(d, "indexed"); !indexed {
		resultID := "id"
		if s, ok := stringArg(d, "identifiedBy"); ok && s != "" {
			resultID = s
		}
		resultType := actorSvc.Underlying.Types[actorField.Type.Name()]
		if resultType == nil || resultType.Fields.ForName(resultID) == nil {
			f.report(violationUnderlyingFieldNotFound(c, actorName, actorField.Type.Name(), resultID, d.Position))
			return nil
		}
		match = &MatchObjectIdentifier{ResultID: resultID}
	}
	return &BatchHydration{
		Coordinates:      c,
		ActorService:     actorName,
		PathToActorField: pathToActor,
		ActorField:       actorField,
		Arguments:        args,
		BatchSize:        batchSize,
		Match:            match,
		Timeout:          timeout,
	}
}

// hydrationArguments parses the arguments list of @hydrated. It also
// reports whether any $source field holds a list.
func (f *factory) hydrationArguments(svc *schema.ServiceSchema, c Coordinates, field *language.FieldDefinition, actorField *language.FieldDefinition, d *language.Directive) ([]HydrationArgument, bool, bool) {
	raw := d.Arguments.ForName("arguments")
	if raw == nil || raw.Value == nil || raw.Value.Kind != language.ListValue {
		f.report(violationBadDirectiveArgument(c, schema.DirectiveHydrated, "arguments", "must be a list", d.Position))
		return nil, false, false
	}

	var (
		args         []HydrationArgument
		sourceIsList bool
		ok           = true
	)
	for _, item := range raw.Value.Children {
		name := childString(item.Value, "name")
		value := childString(item.Value, "value")
		argDef := actorField.Arguments.ForName(name)
		if argDef == nil {
			f.report(violationUnknownActorArgument(c, name, actorField.Name, item.Value.Position))
			ok = false
			continue
		}
		switch {
		case strings.HasPrefix(value, sourcePrefix):
			path := strings.Split(strings.TrimPrefix(value, sourcePrefix), ".")
			def, found := f.resolveSourcePath(svc, c, path, item.Value.Position)
			if !found {
				ok = false
				continue
			}
			if def.Type.Elem != nil {
				sourceIsList = true
			}
			args = append(args, HydrationArgument{Name: name, Source: &FieldValue{Path: path}, Definition: argDef})
		case strings.HasPrefix(value, argumentPrefix):
			argName := strings.TrimPrefix(value, argumentPrefix)
			if field.Arguments.ForName(argName) == nil {
				f.report(violationUnknownFieldArgument(c, argName, item.Value.Position))
				ok = false
				continue
			}
			args = append(args, HydrationArgument{Name: name, Source: &ArgumentValue{Name: argName}, Definition: argDef})
		default:
			f.report(violationBadArgumentValue(c, value, item.Value.Position))
			ok = false
		}
	}
	return args, sourceIsList, ok
}

// resolvePath walks path from the underlying type typeName of svc and
// returns the definition of the last field. Every segment before the last
// must be a single object.
func (f *factory) resolvePath(svc *schema.ServiceSchema, c Coordinates, typeName string, path []string, pos *language.Position) (*language.FieldDefinition, bool) {
	var def *language.FieldDefinition
	for i, name := range path {
		typ := svc.Underlying.Types[typeName]
		if typ == nil {
			f.report(violationUnderlyingTypeNotFound(c, svc.Name, typeName, pos))
			return nil, false
		}
		def = typ.Fields.ForName(name)
		if def == nil {
			f.report(violationUnderlyingFieldNotFound(c, svc.Name, typeName, name, pos))
			return nil, false
		}
		if i < len(path)-1 {
			next := svc.Underlying.Types[def.Type.Name()]
			if def.Type.Elem != nil || next == nil || !next.IsCompositeType() {
				f.report(violationNotAnObject(c, svc.Name, strings.Join(path, "."), pos))
				return nil, false
			}
			typeName = next.Name
		}
	}
	return def, true
}

// resolveSourcePath is resolvePath for $source values: the last segment may
// hold a list.
func (f *factory) resolveSourcePath(svc *schema.ServiceSchema, c Coordinates, path []string, pos *language.Position) (*language.FieldDefinition, bool) {
	return f.resolvePath(svc, c, f.bp.UnderlyingTypeName(c.TypeName), path, pos)
}

// inheritInterfaceInstructions copies instructions declared on interface
// fields to implementing object types that declare none of their own.
func (f *factory) inheritInterfaceInstructions() {
	coords := make([]Coordinates, 0, len(f.bp.fieldInstructions))
	for c := range f.bp.fieldInstructions {
		coords = append(coords, c)
	}
	for _, c := range coords {
		iface := f.set.Overall.Types[c.TypeName]
		if iface == nil || iface.Kind != language.Interface {
			continue
		}
		for _, impl := range f.set.Overall.GetPossibleTypes(iface) {
			target := Coordinates{TypeName: impl.Name, FieldName: c.FieldName}
			if len(f.bp.fieldInstructions[target]) > 0 {
				continue
			}
			for _, ins := range f.bp.fieldInstructions[c] {
				f.bp.fieldInstructions[target] = append(f.bp.fieldInstructions[target], relocate(ins, target))
			}
		}
	}
}

func relocate(ins FieldInstruction, c Coordinates) FieldInstruction {
	switch ins := ins.(type) {
	case *Rename:
		out := *ins
		out.Coordinates = c
		return &out
	case *DeepRename:
		out := *ins
		out.Coordinates = c
		return &out
	case *Hydration:
		out := *ins
		out.Coordinates = c
		return &out
	case *BatchHydration:
		out := *ins
		out.Coordinates = c
		return &out
	}
	panic("unreachable")
}

func stringArg(d *language.Directive, name string) (string, bool) {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil || arg.Value.Kind != language.StringValue {
		return "", false
	}
	return arg.Value.Raw, true
}

func boolArg(d *language.Directive, name string) (bool, bool) {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil || arg.Value.Kind != language.BooleanValue {
		return false, false
	}
	return arg.Value.Raw == "true", true
}

func intArg(d *language.Directive, name string) (int, bool) {
	arg := d.Arguments.ForName(name)
	if arg == nil || arg.Value == nil || arg.Value.Kind != language.IntValue {
		return 0, false
	}
	n, err := strconv.Atoi(arg.Value.Raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func childString(v *language.Value, name string) string {
	if v == nil {
		return ""
	}
	for _, child := range v.Children {
		if child.Name == name && child.Value != nil {
			return child.Value.Raw
		}
	}
	return ""
}
