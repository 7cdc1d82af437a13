// Structure of the B+ Tree
/*
Tree
 ├── Internal Node (separator keys + child ids)
 │      └── Child Internal Nodes ...
 │             └── Leaf Nodes (keys + values + next id)

- keys: strictly ascending inside every node
- internal nodes: len(children) == len(keys)+1, at most order children
- leaf nodes: len(values) == len(keys), at most order-1 entries
- leaf nodes linked through `Next` from the leftmost leaf (head)
- all leaf nodes at the same depth
*/
package bptree

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"distritree/pkg/common"
	"distritree/pkg/core/nodestore"
	"distritree/pkg/logging"
)

// MinOrder is the smallest branching order that keeps both halves of a split
// non-empty.
const MinOrder = 3

// DefaultOrder matches the demo configuration: a leaf splits on its 4th entry.
const DefaultOrder = 4

// ErrInvalidInput is the mark carried by every error caused by caller input
// that bypassed validation.
var ErrInvalidInput = errors.New("invalid input")

// Tree is the B+Tree engine. It is not safe for concurrent use: callers must
// hold an exclusive lock around Insert and a shared lock around reads.
type Tree struct {
	store   *nodestore.Store
	order   int
	root    common.NodeID
	head    common.NodeID // leftmost leaf, never changes once allocated
	height  int
	size    int
	version uint64
	logger  *zap.Logger
}

// New creates an empty tree of the given order backed by store.
func New(store *nodestore.Store, order int, logger *zap.Logger) (*Tree, error) {
	if order < MinOrder {
		return nil, errors.Mark(errors.Newf("order must be at least %d, got %d", MinOrder, order), ErrInvalidInput)
	}
	if store == nil {
		return nil, errors.Mark(errors.New("nil node store"), ErrInvalidInput)
	}
	return &Tree{
		store:  store,
		order:  order,
		logger: logging.Named(logger, "bptree").With(zap.Int("order", order)),
	}, nil
}

// Store returns the arena backing the tree.
func (t *Tree) Store() *nodestore.Store { return t.store }

// Order returns the maximum number of children per internal node.
func (t *Tree) Order() int { return t.order }

// Root returns the root id, or NilNode for an empty tree.
func (t *Tree) Root() common.NodeID { return t.root }

// Head returns the leftmost leaf, or NilNode for an empty tree.
func (t *Tree) Head() common.NodeID { return t.head }

// Height is the number of edges from the root to any leaf. A lone root leaf
// has height 0; an empty tree reports -1.
func (t *Tree) Height() int {
	if t.root == common.NilNode {
		return -1
	}
	return t.height
}

// Len returns the number of stored keys.
func (t *Tree) Len() int { return t.size }

// IsEmpty reports whether the tree has no root.
func (t *Tree) IsEmpty() bool { return t.root == common.NilNode }

// Version increases on every successful mutation, including overwrites.
func (t *Tree) Version() uint64 { return t.version }

func (t *Tree) maxLeafEntries() int { return t.order - 1 }

func (t *Tree) minLeafEntries() int { return t.order / 2 }

func (t *Tree) minChildren() int { return (t.order + 1) / 2 }
