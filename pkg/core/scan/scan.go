// Package scan is the non-indexed read path. It walks the leaf chain from the
// leftmost leaf and tests every entry in turn, so its cost grows with the
// number of leaves rather than with the height of the tree. It never reads a
// separator key or a child id: doing so would let the index leak into the
// numbers this package exists to contrast with it.
package scan

import (
	"github.com/cockroachdb/errors"

	"distritree/pkg/common"
	"distritree/pkg/core/cost"
	"distritree/pkg/core/nodestore"
)

// ErrInvalidRange is returned when start is after end.
var ErrInvalidRange = errors.New("invalid range")

// LeafReader is the part of the node store the scanner may use.
type LeafReader interface {
	Get(id common.NodeID) (*nodestore.Node, error)
}

// Scanner performs linear lookups starting from a fixed head leaf.
type Scanner struct {
	store LeafReader
	head  common.NodeID
}

// New returns a scanner over the chain starting at head. A NilNode head is an
// empty tree.
func New(store LeafReader, head common.NodeID) *Scanner {
	return &Scanner{store: store, head: head}
}

// leaf loads id and refuses anything that is not a leaf.
func (s *Scanner) leaf(id common.NodeID) (*nodestore.Node, error) {
	n, err := s.store.Get(id)
	if err != nil {
		return nil, errors.NewAssertionErrorWithWrappedErrf(err, "scan chain node %s", id)
	}
	if !n.IsLeaf() {
		return nil, errors.AssertionFailedf("scan reached %s node %s", n.Kind, id)
	}
	return n, nil
}

// Search visits leaves left to right until key is found or the chain ends.
// IOCost is the 1-based position of the containing leaf, or the total number
// of leaves when the key is absent.
func (s *Scanner) Search(key common.KeyType) (common.LookupResult, error) {
	tr := cost.NewTracker()
	for id := s.head; id != common.NilNode; {
		n, err := s.leaf(id)
		if err != nil {
			return common.LookupResult{}, err
		}
		tr.Visit(id)
		for i, k := range n.Keys {
			if k == key {
				return common.LookupResult{
					Found:  true,
					Entry:  common.Entry{Key: k, Value: n.Values[i], NodeID: id},
					IOCost: tr.IOCost(),
					Path:   tr.Path(),
				}, nil
			}
		}
		id = n.Next
	}
	return common.LookupResult{IOCost: tr.IOCost(), Path: tr.Path()}, nil
}

// Range collects every entry in [start, end] by walking from the head leaf.
// The walk stops at the first key beyond end since the chain is ordered.
func (s *Scanner) Range(start, end common.KeyType) (common.RangeResult, error) {
	if start > end {
		return common.RangeResult{}, errors.Wrapf(ErrInvalidRange, "start %d after end %d", start, end)
	}
	tr := cost.NewTracker()
	entries := []common.Entry{}
	for id := s.head; id != common.NilNode; {
		n, err := s.leaf(id)
		if err != nil {
			return common.RangeResult{}, err
		}
		tr.Visit(id)
		for i, k := range n.Keys {
			if k > end {
				return common.RangeResult{Entries: entries, IOCost: tr.IOCost(), Path: tr.Path()}, nil
			}
			if k >= start {
				entries = append(entries, common.Entry{Key: k, Value: n.Values[i], NodeID: id})
			}
		}
		id = n.Next
	}
	return common.RangeResult{Entries: entries, IOCost: tr.IOCost(), Path: tr.Path()}, nil
}

// Count returns the number of leaves in the chain.
func (s *Scanner) Count() (int, error) {
	count := 0
	for id := s.head; id != common.NilNode; count++ {
		n, err := s.leaf(id)
		if err != nil {
			return 0, err
		}
		id = n.Next
	}
	return count, nil
}
