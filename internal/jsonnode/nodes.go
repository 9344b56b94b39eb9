package jsonnode

import (
	"strings"
	"sync"

	"github.com/wundergraph/astjson"
)

// Node is one value of a result document together with its absolute path.
type Node struct {
	Path  Path
	Value *astjson.Value
}

// IsObject reports whether the node holds a JSON object.
func (n Node) IsObject() bool {
	return n.Value != nil && n.Value.Type() == astjson.TypeObject
}

// Get returns the member key of an object node, or nil.
func (n Node) Get(key string) *astjson.Value {
	if !n.IsObject() {
		return nil
	}
	return n.Value.Get(key)
}

// StringAt returns the string member key of an object node.
func (n Node) StringAt(key string) (string, bool) {
	v := n.Get(key)
	if v == nil || v.Type() != astjson.TypeString {
		return "", false
	}
	return string(v.GetStringBytes()), true
}

// Nodes answers path queries over one result document. Lookups are cached,
// so the document must not be mutated while a Nodes is in use.
type Nodes struct {
	root *astjson.Value

	mu    sync.Mutex
	cache map[string][]Node
}

// New returns a Nodes over data, usually the "data" object of a response.
func New(data *astjson.Value) *Nodes {
	return &Nodes{root: data, cache: make(map[string][]Node)}
}

// GetNodesAt returns every node reached by following queryPath from the
// document root. Lists met on the way are walked element by element and the
// element index becomes part of each node path. With flatten, a list found
// at the end of the path is expanded too (recursively), otherwise the list
// itself is returned as one node. Missing keys yield no node; null values
// yield a node holding a JSON null when they terminate the path.
func (n *Nodes) GetNodesAt(queryPath QueryPath, flatten bool) []Node {
	key := strings.Join(queryPath, "\x00")
	if flatten {
		key += "\x00+"
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if hit, ok := n.cache[key]; ok {
		return hit
	}
	out := GetNodesAt(Node{Path: Path{}, Value: n.root}, queryPath, flatten)
	n.cache[key] = out
	return out
}

// GetNodesAt is the uncached form of Nodes.GetNodesAt, relative to from.
func GetNodesAt(from Node, queryPath QueryPath, flatten bool) []Node {
	return collect(nil, from, queryPath, flatten)
}

// GetNodeAt returns the single node at queryPath below from. It reports false
// when there is no node, or more than one.
func GetNodeAt(from Node, queryPath QueryPath) (Node, bool) {
	nodes := GetNodesAt(from, queryPath, false)
	if len(nodes) != 1 {
		return Node{}, false
	}
	return nodes[0], true
}

func collect(out []Node, node Node, queryPath QueryPath, flatten bool) []Node {
	if len(queryPath) == 0 {
		if flatten {
			return flattenInto(out, node)
		}
		return append(out, node)
	}
	if node.Value == nil {
		return out
	}
	switch node.Value.Type() {
	case astjson.TypeObject:
		child := node.Value.Get(queryPath[0])
		if child == nil {
			return out
		}
		return collect(out, Node{Path: node.Path.Key(queryPath[0]), Value: child}, queryPath[1:], flatten)
	case astjson.TypeArray:
		for i, elem := range node.Value.GetArray() {
			out = collect(out, Node{Path: node.Path.Append(Index(i)), Value: elem}, queryPath, flatten)
		}
		return out
	default:
		return out
	}
}

func flattenInto(out []Node, node Node) []Node {
	if node.Value == nil || node.Value.Type() != astjson.TypeArray {
		return append(out, node)
	}
	for i, elem := range node.Value.GetArray() {
		out = flattenInto(out, Node{Path: node.Path.Append(Index(i)), Value: elem})
	}
	return out
}
