package result

import (
	"fmt"

	"github.com/wundergraph/astjson"

	jsonnode "github.com/russellyou/nadel/internal/jsonnode"
)

// Instruction mutates a result document. The set of variants is closed:
// Set, Copy, Remove and AddError.
type Instruction interface {
	instruction()
	String() string
}

// Set writes Value at Path, creating intermediate objects as needed. A nil
// Value writes null.
type Set struct {
	Path  jsonnode.Path
	Value *astjson.Value
}

// Copy duplicates the subtree at From into To.
type Copy struct {
	From jsonnode.Path
	To   jsonnode.Path
}

// Remove deletes the value at Path. Missing paths are ignored.
type Remove struct {
	Path jsonnode.Path
}

// AddError appends Error to the response errors.
type AddError struct {
	Error *Error
}

func (*Set) instruction()      {}
func (*Copy) instruction()     {}
func (*Remove) instruction()   {}
func (*AddError) instruction() {}

func (i *Set) String() string      { return fmt.Sprintf("Set(%s, %s)", i.Path, jsonnode.OrNull(i.Value).MarshalTo(nil)) }
func (i *Copy) String() string     { return fmt.Sprintf("Copy(%s, %s)", i.From, i.To) }
func (i *Remove) String() string   { return fmt.Sprintf("Remove(%s)", i.Path) }
func (i *AddError) String() string { return fmt.Sprintf("AddError(%q)", i.Error.Message) }
