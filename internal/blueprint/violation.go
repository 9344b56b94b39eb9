package blueprint

import (
	"fmt"

	language "github.com/russellyou/nadel/internal/language"
)

// Violation is one invalid mapping declaration.
type Violation struct {
	Coordinates Coordinates `json:"coordinates"`
	Message     string      `json:"message"`
	File        string      `json:"file,omitempty"`
	Line        int         `json:"line,omitempty"`
	Column      int         `json:"column,omitempty"`
}

// SchemaMappingError lists every violation found while building a
// blueprint. Construction never returns a partial blueprint.
type SchemaMappingError []*Violation

func (e SchemaMappingError) Error() string {
	msg := "schema mapping violations found:\n"
	for _, v := range e {
		line := "- "
		if v.Coordinates.TypeName != "" {
			line += v.Coordinates.String() + ": "
		}
		line += v.Message
		if v.File != "" {
			line += fmt.Sprintf(" %s:%d:%d", v.File, v.Line, v.Column)
		}
		msg += line + "\n"
	}
	return msg
}

func violationWithPosition(c Coordinates, message string, pos *language.Position) *Violation {
	v := &Violation{Coordinates: c, Message: message}
	if pos != nil {
		if pos.Src != nil {
			v.File = pos.Src.Name
		}
		v.Line = pos.Line
		v.Column = pos.Column
	}
	return v
}

func violationUnderlyingTypeNotFound(c Coordinates, service, typeName string, pos *language.Position) *Violation {
	return violationWithPosition(c,
		fmt.Sprintf("Type %q not found in underlying schema of service %q", typeName, service),
		pos,
	)
}

func violationUnderlyingFieldNotFound(c Coordinates, service, typeName, fieldName string, pos *language.Position) *Violation {
	return violationWithPosition(c,
		fmt.Sprintf("Field %q not found on underlying type %q of service %q", fieldName, typeName, service),
		pos,
	)
}

func violationNotAnObject(c Coordinates, service, path string, pos *language.Position) *Violation {
	return violationWithPosition(c,
		fmt.Sprintf("Path %q in service %q must pass through single objects only", path, service),
		pos,
	)
}

func violationUnknownService(c Coordinates, service string, pos *language.Position) *Violation {
	return violationWithPosition(c,
		fmt.Sprintf("Hydration actor service %q does not exist", service),
		pos,
	)
}

func violationUnknownActorArgument(c Coordinates, arg, actorField string, pos *language.Position) *Violation {
	return violationWithPosition(c,
		fmt.Sprintf("Argument %q does not exist on actor field %q", arg, actorField),
		pos,
	)
}

func violationUnknownFieldArgument(c Coordinates, arg string, pos *language.Position) *Violation {
	return violationWithPosition(c,
		fmt.Sprintf("Hydration reads $argument.%s but the field has no such argument", arg),
		pos,
	)
}

func violationBadArgumentValue(c Coordinates, value string, pos *language.Position) *Violation {
	return violationWithPosition(c,
		fmt.Sprintf("Hydration argument value %q must start with $source. or $argument.", value),
		pos,
	)
}

func violationBadDirectiveArgument(c Coordinates, directive, arg, reason string, pos *language.Position) *Violation {
	return violationWithPosition(c,
		fmt.Sprintf("Invalid argument '%s' in @%s directive: %s", arg, directive, reason),
		pos,
	)
}

func violationBatchSource(c Coordinates, count int, pos *language.Position) *Violation {
	return violationWithPosition(c,
		fmt.Sprintf("Batch hydration needs exactly one $source argument, found %d", count),
		pos,
	)
}

func violationConflictingInstructions(c Coordinates, pos *language.Position) *Violation {
	return violationWithPosition(c,
		"Field carries both @renamed and @hydrated",
		pos,
	)
}
