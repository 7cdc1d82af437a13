// Package nodestore is the arena that owns every B+Tree node.
//
// Nodes are addressed by NodeID and every structural relation (parent to
// child, leaf to sibling) is stored as an id field, never as a pointer held
// outside the store. Ids are handed out monotonically and never reused, so
// an id observed in one snapshot names the same physical node in every later
// snapshot of the same store.
package nodestore

import (
	"sync"

	"github.com/cockroachdb/errors"

	"distritree/pkg/common"
)

// ErrNodeNotFound is returned for ids the store never allocated.
var ErrNodeNotFound = errors.New("node not found")

// Kind tags the two node shapes.
type Kind uint8

const (
	KindInternal Kind = iota
	KindLeaf
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "Internal"
	case KindLeaf:
		return "Leaf"
	default:
		return "Unknown"
	}
}

// Node is a tagged variant. Internal nodes use Keys and Children; leaves use
// Keys, Values and Next.
type Node struct {
	ID   common.NodeID
	Kind Kind

	Keys     []common.KeyType
	Children []common.NodeID   // internal only, len(Keys)+1 entries
	Values   []common.ValueType // leaf only, aligned with Keys
	Next     common.NodeID     // leaf only, right sibling or NilNode
}

// IsLeaf reports whether n is a leaf.
func (n *Node) IsLeaf() bool { return n.Kind == KindLeaf }

// Store allocates and addresses nodes.
type Store struct {
	mu     sync.RWMutex
	nodes  map[common.NodeID]*Node
	nextID common.NodeID
	counts [2]int
}

// New returns an empty store. The first allocated id is 1.
func New() *Store {
	return &Store{
		nodes:  make(map[common.NodeID]*Node),
		nextID: 1,
	}
}

// Allocate creates an empty node of the given kind and returns its id.
func (s *Store) Allocate(kind Kind) common.NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	n := &Node{ID: id, Kind: kind, Keys: make([]common.KeyType, 0, 4)}
	if kind == KindInternal {
		n.Children = make([]common.NodeID, 0, 5)
	} else {
		n.Values = make([]common.ValueType, 0, 4)
	}
	s.nodes[id] = n
	s.counts[kind]++
	return id
}

// Get returns the node stored under id. The returned node must only be
// changed through Mutate.
func (s *Store) Get(id common.NodeID) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "get %s", id)
	}
	return n, nil
}

// Mutate applies f to the node stored under id while holding the store's
// write lock. f must not call back into the store.
func (s *Store) Mutate(id common.NodeID, f func(n *Node)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[id]
	if !ok {
		return errors.Wrapf(ErrNodeNotFound, "mutate %s", id)
	}
	f(n)
	return nil
}

// Len returns the number of allocated nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Count returns the number of allocated nodes of the given kind.
func (s *Store) Count(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[kind]
}

// LastID returns the most recently allocated id, or NilNode.
func (s *Store) LastID() common.NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID - 1
}
