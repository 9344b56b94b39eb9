package result

import (
	"fmt"
	"strings"

	"github.com/wundergraph/astjson"
)

// ArtificialPrefix starts the result key of every field that was added to
// an outgoing query only to support a rewrite. Such keys never reach
// clients.
const ArtificialPrefix = "nadel__"

// IsArtificial reports whether key belongs to an artificial field.
func IsArtificial(key string) bool { return strings.HasPrefix(key, ArtificialPrefix) }

// Apply runs instructions in order against data, then strips every
// artificial key from the tree. Errors carried by AddError instructions are
// returned in order. A failing instruction aborts the whole application.
func Apply(data *astjson.Value, instructions []Instruction) (*astjson.Value, []*Error, error) {
	out, errs, err := ApplyInstructions(data, instructions)
	if err != nil {
		return nil, nil, err
	}
	StripArtificial(out)
	return out, errs, nil
}

// ApplyInstructions is Apply without the final strip. Results that are
// spliced into another document keep their artificial keys until the outer
// document is stripped.
func ApplyInstructions(data *astjson.Value, instructions []Instruction) (*astjson.Value, []*Error, error) {
	doc := NewDocument(data)
	var errs []*Error
	for _, ins := range instructions {
		var err error
		switch ins := ins.(type) {
		case *Set:
			err = doc.Set(ins.Path, ins.Value)
		case *Copy:
			err = doc.Copy(ins.From, ins.To)
		case *Remove:
			doc.Remove(ins.Path)
		case *AddError:
			errs = append(errs, ins.Error)
		default:
			err = fmt.Errorf("unknown instruction %T", ins)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("apply %s: %w", ins, err)
		}
	}
	return doc.Data(), errs, nil
}

// StripArtificial deletes artificial keys from every object below v.
func StripArtificial(v *astjson.Value) {
	if v == nil {
		return
	}
	switch v.Type() {
	case astjson.TypeObject:
		obj, _ := v.Object()
		var artificial []string
		obj.Visit(func(key []byte, e *astjson.Value) {
			if IsArtificial(string(key)) {
				artificial = append(artificial, string(key))
				return
			}
			StripArtificial(e)
		})
		for _, k := range artificial {
			v.Del(k)
		}
	case astjson.TypeArray:
		for _, e := range v.GetArray() {
			StripArtificial(e)
		}
	}
}
