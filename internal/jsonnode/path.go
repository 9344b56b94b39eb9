package jsonnode

import (
	"strconv"
	"strings"
)

// Segment is one step of a Path: a map key or a list index.
type Segment struct {
	key     string
	index   int
	isIndex bool
}

// Key returns a segment addressing a map entry.
func Key(k string) Segment { return Segment{key: k} }

// Index returns a segment addressing a list element.
func Index(i int) Segment { return Segment{index: i, isIndex: true} }

func (s Segment) IsIndex() bool { return s.isIndex }
func (s Segment) Key() string   { return s.key }
func (s Segment) Index() int    { return s.index }

func (s Segment) String() string {
	if s.isIndex {
		return strconv.Itoa(s.index)
	}
	return s.key
}

// Path is an absolute location inside a result document.
type Path []Segment

// PathOf builds a Path from strings (keys) and ints (indices).
func PathOf(elems ...any) Path {
	p := make(Path, 0, len(elems))
	for _, e := range elems {
		switch v := e.(type) {
		case string:
			p = append(p, Key(v))
		case int:
			p = append(p, Index(v))
		default:
			panic("jsonnode: path element must be string or int")
		}
	}
	return p
}

// Append returns a new Path; p is never modified.
func (p Path) Append(segs ...Segment) Path {
	out := make(Path, len(p), len(p)+len(segs))
	copy(out, p)
	return append(out, segs...)
}

// Key is shorthand for p.Append(Key(k)).
func (p Path) Key(k string) Path { return p.Append(Key(k)) }

// Parent drops the last segment. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1:len(p)-1]
}

// Values converts p to the GraphQL response representation of a path.
func (p Path) Values() []any {
	out := make([]any, len(p))
	for i, s := range p {
		if s.isIndex {
			out[i] = s.index
		} else {
			out[i] = s.key
		}
	}
	return out
}

func (p Path) String() string {
	var b strings.Builder
	b.WriteByte('/')
	for i, s := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// QueryPath is a list of result keys from the operation root, as selected in
// a query. It carries no list indices.
type QueryPath []string

// Append returns a new QueryPath; q is never modified.
func (q QueryPath) Append(keys ...string) QueryPath {
	out := make(QueryPath, len(q), len(q)+len(keys))
	copy(out, q)
	return append(out, keys...)
}

// Last returns the final key, or "" for the root.
func (q QueryPath) Last() string {
	if len(q) == 0 {
		return ""
	}
	return q[len(q)-1]
}
