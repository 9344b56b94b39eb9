package blueprint

import (
	"strings"
	"time"

	language "github.com/russellyou/nadel/internal/language"
)

// Coordinates name a field of an overall type.
type Coordinates struct {
	TypeName  string
	FieldName string
}

func (c Coordinates) String() string {
	if c.FieldName == "" {
		return c.TypeName
	}
	return c.TypeName + "." + c.FieldName
}

// FieldInstruction tells the transformer how to rewrite one overall field.
// The set of variants is closed: Rename, DeepRename, Hydration and
// BatchHydration.
type FieldInstruction interface {
	Location() Coordinates
	fieldInstruction()
}

// Rename reads the field from an underlying field with another name.
type Rename struct {
	Coordinates
	UnderlyingName string
}

// DeepRename reads the field from a nested underlying field. PathToField
// starts at the underlying parent type and has at least two segments.
type DeepRename struct {
	Coordinates
	PathToField []string
}

// HydrationStrategy says how many actor calls one parent node needs.
type HydrationStrategy int

const (
	// OneToOne makes one actor call per parent node.
	OneToOne HydrationStrategy = iota
	// ManyToOne makes one actor call per element of a list source value.
	ManyToOne
)

func (s HydrationStrategy) String() string {
	if s == ManyToOne {
		return "many-to-one"
	}
	return "one-to-one"
}

// Hydration resolves the field through a call to another service.
type Hydration struct {
	Coordinates
	ActorService string
	// PathToActorField starts at the actor service's query type. Leading
	// segments select namespace objects.
	PathToActorField []string
	ActorField       *language.FieldDefinition
	Arguments        []HydrationArgument
	Strategy         HydrationStrategy
	// Timeout bounds each actor call. Zero means no timeout.
	Timeout time.Duration
}

// BatchHydration resolves the field for many parent nodes with one actor
// call per batch of source identifiers.
type BatchHydration struct {
	Coordinates
	ActorService     string
	PathToActorField []string
	ActorField       *language.FieldDefinition
	Arguments        []HydrationArgument
	BatchSize        int
	Match            MatchStrategy
	Timeout          time.Duration
}

func (i *Rename) Location() Coordinates         { return i.Coordinates }
func (i *DeepRename) Location() Coordinates     { return i.Coordinates }
func (i *Hydration) Location() Coordinates      { return i.Coordinates }
func (i *BatchHydration) Location() Coordinates { return i.Coordinates }

func (*Rename) fieldInstruction()         {}
func (*DeepRename) fieldInstruction()     {}
func (*Hydration) fieldInstruction()      {}
func (*BatchHydration) fieldInstruction() {}

// SourcePaths returns the underlying field paths read by $source arguments.
func (i *Hydration) SourcePaths() [][]string { return sourcePaths(i.Arguments) }

// SourcePaths returns the underlying field paths read by $source arguments.
func (i *BatchHydration) SourcePaths() [][]string { return sourcePaths(i.Arguments) }

// BatchArgument returns the argument that carries the batched identifiers.
func (i *BatchHydration) BatchArgument() HydrationArgument {
	for _, arg := range i.Arguments {
		if _, ok := arg.Source.(*FieldValue); ok {
			return arg
		}
	}
	return HydrationArgument{}
}

func sourcePaths(args []HydrationArgument) [][]string {
	var out [][]string
	for _, arg := range args {
		if fv, ok := arg.Source.(*FieldValue); ok {
			out = append(out, fv.Path)
		}
	}
	return out
}

// MatchStrategy pairs batch results with the identifiers that asked for
// them. Variants: MatchIndex and MatchObjectIdentifier.
type MatchStrategy interface {
	matchStrategy()
}

// MatchIndex pairs the i-th result with the i-th identifier.
type MatchIndex struct{}

// MatchObjectIdentifier pairs a result with the identifier equal to its
// ResultID field.
type MatchObjectIdentifier struct {
	ResultID string
}

func (MatchIndex) matchStrategy()             {}
func (*MatchObjectIdentifier) matchStrategy() {}

// HydrationArgument binds one actor field argument to a value source.
type HydrationArgument struct {
	Name   string
	Source ArgumentSource
	// Definition is the actor field's argument definition.
	Definition *language.ArgumentDefinition
}

// ArgumentSource is FieldValue or ArgumentValue.
type ArgumentSource interface {
	argumentSource()
	String() string
}

// FieldValue reads the value of an underlying field of the parent object.
type FieldValue struct {
	Path []string
}

// ArgumentValue reads an argument given to the hydrated field.
type ArgumentValue struct {
	Name string
}

func (*FieldValue) argumentSource()    {}
func (*ArgumentValue) argumentSource() {}

func (s *FieldValue) String() string    { return sourcePrefix + strings.Join(s.Path, ".") }
func (s *ArgumentValue) String() string { return argumentPrefix + s.Name }

const (
	sourcePrefix   = "$source."
	argumentPrefix = "$argument."
)

// TypeRename maps an overall type onto an underlying type of a service.
type TypeRename struct {
	Service        string
	OverallName    string
	UnderlyingName string
}
