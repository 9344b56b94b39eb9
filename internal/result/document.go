package result

import (
	"fmt"

	"github.com/wundergraph/astjson"

	jsonnode "github.com/russellyou/nadel/internal/jsonnode"
)

// Document is a mutable JSON tree addressed by typed paths.
type Document struct {
	root *astjson.Value
}

// NewDocument wraps data. A missing or null data starts an empty object.
func NewDocument(data *astjson.Value) *Document {
	if jsonnode.IsNull(data) {
		data = astjson.ObjectValue(nil)
	}
	return &Document{root: data}
}

// Data returns the root object.
func (d *Document) Data() *astjson.Value { return d.root }

// Get returns the value at path and whether it exists.
func (d *Document) Get(path jsonnode.Path) (*astjson.Value, bool) {
	cur := d.root
	for _, seg := range path {
		cur = child(cur, seg)
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func child(v *astjson.Value, seg jsonnode.Segment) *astjson.Value {
	switch v.Type() {
	case astjson.TypeObject:
		if seg.IsIndex() {
			return nil
		}
		return v.Get(seg.Key())
	case astjson.TypeArray:
		items := v.GetArray()
		if !seg.IsIndex() || seg.Index() < 0 || seg.Index() >= len(items) {
			return nil
		}
		return items[seg.Index()]
	}
	return nil
}

// Set writes value at path; a nil value writes null. Missing or null objects
// along the way are created; lists are never created and indices must be in
// range.
func (d *Document) Set(path jsonnode.Path, value *astjson.Value) error {
	value = jsonnode.OrNull(value)
	if len(path) == 0 {
		if value.Type() != astjson.TypeObject && value.Type() != astjson.TypeNull {
			return fmt.Errorf("result: root must be an object, got %s", value.Type())
		}
		d.root = NewDocument(value).root
		return nil
	}
	parent, err := d.container(path)
	if err != nil {
		return err
	}
	return set(parent, path, value)
}

func set(parent *astjson.Value, path jsonnode.Path, value *astjson.Value) error {
	last := path[len(path)-1]
	switch parent.Type() {
	case astjson.TypeObject:
		if last.IsIndex() {
			return fmt.Errorf("result: index %d on object at %s", last.Index(), path.Parent())
		}
		parent.Set(nil, last.Key(), value)
	case astjson.TypeArray:
		if !last.IsIndex() || last.Index() < 0 || last.Index() >= len(parent.GetArray()) {
			return fmt.Errorf("result: bad list segment %q at %s", last, path.Parent())
		}
		parent.SetArrayItem(nil, last.Index(), value)
	}
	return nil
}

// Remove deletes the value at path. Object keys are deleted; list elements
// are set to null so the positions of their siblings stay stable. Missing
// paths are ignored.
func (d *Document) Remove(path jsonnode.Path) {
	if len(path) == 0 {
		d.root = astjson.ObjectValue(nil)
		return
	}
	parent, ok := d.Get(path.Parent())
	if !ok {
		return
	}
	last := path[len(path)-1]
	switch parent.Type() {
	case astjson.TypeObject:
		if !last.IsIndex() {
			parent.Del(last.Key())
		}
	case astjson.TypeArray:
		if last.IsIndex() && last.Index() >= 0 && last.Index() < len(parent.GetArray()) {
			parent.SetArrayItem(nil, last.Index(), astjson.NullValue)
		}
	}
}

// Copy duplicates the subtree at from into to. A missing source copies null.
func (d *Document) Copy(from, to jsonnode.Path) error {
	v, _ := d.Get(from)
	return d.Set(to, jsonnode.Clone(v))
}

// container walks to the parent of the last segment of path, replacing
// missing or null entries with new objects.
func (d *Document) container(path jsonnode.Path) (*astjson.Value, error) {
	cur := d.root
	for i := 0; i < len(path)-1; i++ {
		seg := path[i]
		if cur.Type() != astjson.TypeObject && cur.Type() != astjson.TypeArray {
			return nil, fmt.Errorf("result: cannot descend into %s at %s", cur.Type(), path[:i])
		}
		if cur.Type() == astjson.TypeObject && seg.IsIndex() {
			return nil, fmt.Errorf("result: index %d on object at %s", seg.Index(), path[:i])
		}
		next := child(cur, seg)
		if jsonnode.IsNull(next) {
			if cur.Type() == astjson.TypeArray && next == nil {
				return nil, fmt.Errorf("result: bad list segment %q at %s", seg, path[:i])
			}
			if path[i+1].IsIndex() {
				return nil, fmt.Errorf("result: no list at %s", path[:i+1])
			}
			next = astjson.ObjectValue(nil)
			if err := set(cur, path[:i+1], next); err != nil {
				return nil, err
			}
		}
		cur = next
	}
	if cur.Type() != astjson.TypeObject && cur.Type() != astjson.TypeArray {
		return nil, fmt.Errorf("result: cannot descend into %s at %s", cur.Type(), path.Parent())
	}
	return cur, nil
}
