package bptree

import (
	"github.com/cockroachdb/errors"

	"distritree/pkg/common"
	"distritree/pkg/core/nodestore"
)

// bound is an optional key limit used while checking separator ranges.
type bound struct {
	key common.KeyType
	set bool
}

// Validate checks every structural invariant and returns an assertion error
// describing the first violation found. It never mutates the tree.
func (t *Tree) Validate() error {
	if t.root == common.NilNode {
		if t.head != common.NilNode || t.size != 0 {
			return errors.AssertionFailedf("empty tree with head %s and %d keys", t.head, t.size)
		}
		return nil
	}

	var leaves []common.NodeID
	if err := t.validateNode(t.root, 0, bound{}, bound{}, &leaves); err != nil {
		return err
	}
	if leaves[0] != t.head {
		return errors.AssertionFailedf("head is %s but leftmost leaf is %s", t.head, leaves[0])
	}
	return t.validateChain(leaves)
}

func (t *Tree) validateNode(id common.NodeID, depth int, lo, hi bound, leaves *[]common.NodeID) error {
	n, err := t.store.Get(id)
	if err != nil {
		return errors.NewAssertionErrorWithWrappedErrf(err, "reachable node %s", id)
	}
	isRoot := id == t.root

	for i, k := range n.Keys {
		if i > 0 && n.Keys[i-1] >= k {
			return errors.AssertionFailedf("%s keys not strictly ascending at %d: %v", id, i, n.Keys)
		}
		if lo.set && k < lo.key {
			return errors.AssertionFailedf("%s key %d below lower separator %d", id, k, lo.key)
		}
		if hi.set && k >= hi.key {
			return errors.AssertionFailedf("%s key %d not below upper separator %d", id, k, hi.key)
		}
	}

	switch n.Kind {
	case nodestore.KindLeaf:
		if depth != t.height {
			return errors.AssertionFailedf("leaf %s at depth %d, height %d", id, depth, t.height)
		}
		if len(n.Values) != len(n.Keys) {
			return errors.AssertionFailedf("leaf %s has %d keys and %d values", id, len(n.Keys), len(n.Values))
		}
		if len(n.Keys) > t.maxLeafEntries() {
			return errors.AssertionFailedf("leaf %s holds %d entries, max %d", id, len(n.Keys), t.maxLeafEntries())
		}
		if !isRoot && len(n.Keys) < t.minLeafEntries() {
			return errors.AssertionFailedf("leaf %s holds %d entries, min %d", id, len(n.Keys), t.minLeafEntries())
		}
		if isRoot && len(n.Keys) == 0 {
			return errors.AssertionFailedf("root leaf %s is empty", id)
		}
		*leaves = append(*leaves, id)
		return nil

	case nodestore.KindInternal:
		if len(n.Children) != len(n.Keys)+1 {
			return errors.AssertionFailedf("internal %s has %d keys and %d children", id, len(n.Keys), len(n.Children))
		}
		if len(n.Children) > t.order {
			return errors.AssertionFailedf("internal %s has %d children, order %d", id, len(n.Children), t.order)
		}
		minKids := t.minChildren()
		if isRoot {
			minKids = 2
		}
		if len(n.Children) < minKids {
			return errors.AssertionFailedf("internal %s has %d children, min %d", id, len(n.Children), minKids)
		}
		for i, c := range n.Children {
			clo, chi := lo, hi
			if i > 0 {
				clo = bound{key: n.Keys[i-1], set: true}
			}
			if i < len(n.Keys) {
				chi = bound{key: n.Keys[i], set: true}
			}
			if err := t.validateNode(c, depth+1, clo, chi, leaves); err != nil {
				return err
			}
		}
		return nil

	default:
		return errors.AssertionFailedf("node %s has unknown kind %d", id, n.Kind)
	}
}

// validateChain walks the sibling links from the head and compares them with
// the in-order leaves found by the recursive walk.
func (t *Tree) validateChain(inOrder []common.NodeID) error {
	var (
		id    = t.head
		pos   int
		count int
		prev  common.KeyType
		first = true
	)
	for ; id != common.NilNode; pos++ {
		if pos >= len(inOrder) {
			return errors.AssertionFailedf("leaf chain longer than the %d reachable leaves", len(inOrder))
		}
		if inOrder[pos] != id {
			return errors.AssertionFailedf("leaf chain position %d is %s, in-order leaf is %s", pos, id, inOrder[pos])
		}
		n, err := t.store.Get(id)
		if err != nil {
			return errors.NewAssertionErrorWithWrappedErrf(err, "leaf chain node %s", id)
		}
		for _, k := range n.Keys {
			if !first && k <= prev {
				return errors.AssertionFailedf("leaf chain not ascending: %d after %d", k, prev)
			}
			prev, first = k, false
			count++
		}
		id = n.Next
	}
	if pos != len(inOrder) {
		return errors.AssertionFailedf("leaf chain reaches %d of %d leaves", pos, len(inOrder))
	}
	if count != t.size {
		return errors.AssertionFailedf("leaf chain holds %d keys, tree size %d", count, t.size)
	}
	return nil
}
