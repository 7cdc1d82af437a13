package bptree

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"distritree/pkg/common"
	"distritree/pkg/core/cost"
	"distritree/pkg/core/nodestore"
)

// splitLeaf moves the upper half of a full leaf into a new right sibling and
// links it into the chain. The first key of the right leaf is copied up.
func (t *Tree) splitLeaf(leftID common.NodeID, tr *cost.Tracker) (common.NodeID, common.KeyType, error) {
	rightID := t.store.Allocate(nodestore.KindLeaf)
	tr.Create(rightID)

	var (
		keys []common.KeyType
		vals []common.ValueType
		next common.NodeID
	)
	if err := t.store.Mutate(leftID, func(n *nodestore.Node) {
		mid := len(n.Keys) / 2
		keys = append(keys, n.Keys[mid:]...)
		vals = append(vals, n.Values[mid:]...)
		clear(n.Values[mid:])
		n.Keys = n.Keys[:mid]
		n.Values = n.Values[:mid]
		next = n.Next
		n.Next = rightID
	}); err != nil {
		return common.NilNode, 0, err
	}
	if len(keys) == 0 {
		return common.NilNode, 0, errors.AssertionFailedf("split of leaf %s produced an empty right half", leftID)
	}
	if err := t.store.Mutate(rightID, func(n *nodestore.Node) {
		n.Keys = append(n.Keys, keys...)
		n.Values = append(n.Values, vals...)
		n.Next = next
	}); err != nil {
		return common.NilNode, 0, err
	}

	t.logger.Debug("leaf split",
		zap.Stringer("left", leftID),
		zap.Stringer("right", rightID),
		zap.Int64("separator", int64(keys[0])))
	return rightID, keys[0], nil
}

// splitInternal moves the keys right of the middle separator into a new
// internal node. The middle separator is pushed up, not copied.
func (t *Tree) splitInternal(leftID common.NodeID, tr *cost.Tracker) (common.NodeID, common.KeyType, error) {
	rightID := t.store.Allocate(nodestore.KindInternal)
	tr.Create(rightID)

	var (
		promote  common.KeyType
		keys     []common.KeyType
		children []common.NodeID
	)
	if err := t.store.Mutate(leftID, func(n *nodestore.Node) {
		mid := len(n.Keys) / 2
		promote = n.Keys[mid]
		keys = append(keys, n.Keys[mid+1:]...)
		children = append(children, n.Children[mid+1:]...)
		n.Keys = n.Keys[:mid]
		n.Children = n.Children[:mid+1]
	}); err != nil {
		return common.NilNode, 0, err
	}
	if len(children) < 2 {
		return common.NilNode, 0, errors.AssertionFailedf("split of internal %s left %d children on the right", leftID, len(children))
	}
	if err := t.store.Mutate(rightID, func(n *nodestore.Node) {
		n.Keys = append(n.Keys, keys...)
		n.Children = append(n.Children, children...)
	}); err != nil {
		return common.NilNode, 0, err
	}

	t.logger.Debug("internal split",
		zap.Stringer("left", leftID),
		zap.Stringer("right", rightID),
		zap.Int64("promoted", int64(promote)))
	return rightID, promote, nil
}
