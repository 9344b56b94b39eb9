package normalized

import (
	"fmt"
	"strings"

	language "github.com/russellyou/nadel/internal/language"
)

// ID references a field stored in a Tree.
type ID int32

// NoID is the parent of root fields. As a transform result it means the
// field is dropped.
const NoID ID = -1

// Argument is one argument binding of a field. Values are literals: all
// variables have been substituted.
type Argument struct {
	Name  string
	Value *language.Value
}

// Field is one selected field of an operation, already resolved against
// fragments and type conditions.
type Field struct {
	Name  string
	Alias string
	// ObjectTypeNames lists the concrete object types the field is selected
	// on. Never empty.
	ObjectTypeNames []string
	Arguments       []*Argument

	// Parent and Children are maintained by Tree. Use SetChildren, Attach
	// and Detach to change them.
	Parent   ID
	Children []ID
}

// ResultKey returns the key of the field in a response.
func (f *Field) ResultKey() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Argument returns the named argument or nil.
func (f *Field) Argument(name string) *Argument {
	for _, a := range f.Arguments {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// HasObjectType reports whether the field is selected on typeName.
func (f *Field) HasObjectType(typeName string) bool {
	for _, n := range f.ObjectTypeNames {
		if n == typeName {
			return true
		}
	}
	return false
}

// Tree is an arena of fields. Fields reference each other by ID so that
// moving a subtree is an index update.
type Tree struct {
	fields []*Field
}

func NewTree() *Tree { return &Tree{} }

// Len returns the number of fields ever added.
func (t *Tree) Len() int { return len(t.fields) }

// Field returns the field stored under id.
func (t *Tree) Field(id ID) *Field { return t.fields[id] }

// Add stores f as a detached field and returns its ID. Children listed in
// f are attached to it.
func (t *Tree) Add(f Field) ID {
	children := f.Children
	f.Parent = NoID
	f.Children = nil
	f.ObjectTypeNames = append([]string(nil), f.ObjectTypeNames...)
	id := ID(len(t.fields))
	t.fields = append(t.fields, &f)
	if len(children) > 0 {
		t.SetChildren(id, children)
	}
	return id
}

// SetChildren replaces the children of parent. Previous children lose their
// parent and new children are detached from wherever they were.
func (t *Tree) SetChildren(parent ID, children []ID) {
	p := t.fields[parent]
	for _, old := range p.Children {
		if t.fields[old].Parent == parent {
			t.fields[old].Parent = NoID
		}
	}
	p.Children = nil
	for _, child := range children {
		t.Detach(child)
		t.fields[child].Parent = parent
		p.Children = append(p.Children, child)
	}
}

// Attach appends child to the children of parent.
func (t *Tree) Attach(parent, child ID) {
	t.Detach(child)
	t.fields[child].Parent = parent
	t.fields[parent].Children = append(t.fields[parent].Children, child)
}

// Detach removes child from its parent.
func (t *Tree) Detach(child ID) {
	c := t.fields[child]
	if c.Parent == NoID {
		return
	}
	p := t.fields[c.Parent]
	for i, id := range p.Children {
		if id == child {
			p.Children = append(p.Children[:i:i], p.Children[i+1:]...)
			break
		}
	}
	c.Parent = NoID
}

// QueryPath returns the result keys from the root down to id.
func (t *Tree) QueryPath(id ID) []string {
	var keys []string
	for cur := id; cur != NoID; cur = t.fields[cur].Parent {
		keys = append(keys, t.fields[cur].ResultKey())
	}
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys
}

// Check verifies that parent and child references agree.
func (t *Tree) Check() error {
	for id, f := range t.fields {
		if len(f.ObjectTypeNames) == 0 {
			return fmt.Errorf("field %d (%s) has no object types", id, f.Name)
		}
		for _, child := range f.Children {
			if got := t.fields[child].Parent; got != ID(id) {
				return fmt.Errorf("field %d (%s) lists child %d whose parent is %d", id, f.Name, child, got)
			}
		}
		if f.Parent != NoID {
			found := false
			for _, sibling := range t.fields[f.Parent].Children {
				if sibling == ID(id) {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("field %d (%s) is missing from the children of its parent %d", id, f.Name, f.Parent)
			}
		}
	}
	return nil
}

// Format prints the subtrees under roots, one field per line.
func (t *Tree) Format(roots ...ID) string {
	var b strings.Builder
	var walk func(id ID, depth int)
	walk = func(id ID, depth int) {
		f := t.fields[id]
		b.WriteString(strings.Repeat("  ", depth))
		if f.Alias != "" {
			b.WriteString(f.Alias + ": ")
		}
		b.WriteString(f.Name)
		if len(f.Arguments) > 0 {
			args := make([]string, len(f.Arguments))
			for i, a := range f.Arguments {
				args[i] = a.Name + ": " + a.Value.String()
			}
			b.WriteString("(" + strings.Join(args, ", ") + ")")
		}
		b.WriteString(" [" + strings.Join(f.ObjectTypeNames, " ") + "]\n")
		for _, child := range f.Children {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
	return b.String()
}
