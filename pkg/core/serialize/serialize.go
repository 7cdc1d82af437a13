// Package serialize projects the node graph into the presentation tree sent
// to clients. It only reads from the store.
package serialize

import (
	"distritree/pkg/common"
	"distritree/pkg/core/nodestore"
)

const (
	TypeInternal = "Internal"
	TypeLeaf     = "Leaf"
	// TypeEmpty marks the sentinel returned for a tree without a root.
	TypeEmpty = "Empty"
)

// Reader is the read side of the node store.
type Reader interface {
	Get(id common.NodeID) (*nodestore.Node, error)
}

// Value is one leaf entry together with its physical location.
type Value struct {
	NodeID common.NodeID  `json:"node_id"`
	Key    common.KeyType `json:"key"`
	Value  string         `json:"value"`
}

// Node is the serialized form of a tree node.
type Node struct {
	Type     string           `json:"type"`
	NodeID   common.NodeID    `json:"node_id,omitempty"`
	Keys     []common.KeyType `json:"keys"`
	Children []*Node          `json:"children,omitempty"`
	Values   []Value          `json:"values,omitempty"`
}

// IsEmpty reports whether n is the empty-tree sentinel.
func (n *Node) IsEmpty() bool { return n.Type == TypeEmpty }

// Empty returns the empty-tree sentinel.
func Empty() *Node {
	return &Node{Type: TypeEmpty, Keys: []common.KeyType{}}
}

// Tree serializes the subtree rooted at root.
func Tree(r Reader, root common.NodeID) (*Node, error) {
	if root == common.NilNode {
		return Empty(), nil
	}
	return node(r, root)
}

func node(r Reader, id common.NodeID) (*Node, error) {
	n, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	out := &Node{
		NodeID: id,
		Keys:   append(make([]common.KeyType, 0, len(n.Keys)), n.Keys...),
	}

	switch n.Kind {
	case nodestore.KindInternal:
		out.Type = TypeInternal
		out.Children = make([]*Node, 0, len(n.Children))
		for _, c := range n.Children {
			child, err := node(r, c)
			if err != nil {
				return nil, err
			}
			out.Children = append(out.Children, child)
		}
	case nodestore.KindLeaf:
		out.Type = TypeLeaf
		out.Values = make([]Value, 0, len(n.Keys))
		for i, k := range n.Keys {
			out.Values = append(out.Values, Value{NodeID: id, Key: k, Value: string(n.Values[i])})
		}
	}
	return out, nil
}

// Stats summarises the shape of a serialized tree.
type Stats struct {
	Height    int `json:"height"`
	Nodes     int `json:"nodes"`
	Internals int `json:"internal_nodes"`
	Leaves    int `json:"leaf_nodes"`
	Keys      int `json:"keys"`
}

// Shape walks a serialized tree and counts its nodes. The empty sentinel has
// height -1.
func Shape(n *Node) Stats {
	if n == nil || n.IsEmpty() {
		return Stats{Height: -1}
	}
	var s Stats
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		s.Nodes++
		if n.Type == TypeLeaf {
			s.Leaves++
			s.Keys += len(n.Keys)
			if depth > s.Height {
				s.Height = depth
			}
			return
		}
		s.Internals++
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
	return s
}
