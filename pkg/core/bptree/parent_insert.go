package bptree

import (
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"distritree/pkg/common"
	"distritree/pkg/core/cost"
	"distritree/pkg/core/nodestore"
)

// insertIntoParent adds sep and rightID next to leftID in the last node of
// ancestors. A parent that overflows is split and the split propagates
// upward; with no ancestors left a new root is allocated. It returns the
// number of internal nodes split on the way.
func (t *Tree) insertIntoParent(ancestors []common.NodeID, leftID common.NodeID, sep common.KeyType, rightID common.NodeID, tr *cost.Tracker) (int, error) {
	if len(ancestors) == 0 {
		rootID := t.store.Allocate(nodestore.KindInternal)
		tr.Create(rootID)
		if err := t.store.Mutate(rootID, func(n *nodestore.Node) {
			n.Keys = append(n.Keys, sep)
			n.Children = append(n.Children, leftID, rightID)
		}); err != nil {
			return 0, err
		}
		t.root = rootID
		t.height++
		t.logger.Debug("new root", zap.Stringer("node", rootID), zap.Int("height", t.height))
		return 0, nil
	}

	parentID := ancestors[len(ancestors)-1]
	var overflow, linked bool
	if err := t.store.Mutate(parentID, func(n *nodestore.Node) {
		idx := slices.Index(n.Children, leftID)
		if idx < 0 {
			return
		}
		linked = true
		n.Keys = slices.Insert(n.Keys, idx, sep)
		n.Children = slices.Insert(n.Children, idx+1, rightID)
		overflow = len(n.Children) > t.order
	}); err != nil {
		return 0, err
	}
	if !linked {
		return 0, errors.AssertionFailedf("node %s is not a child of %s", leftID, parentID)
	}
	if !overflow {
		return 0, nil
	}

	newRight, promote, err := t.splitInternal(parentID, tr)
	if err != nil {
		return 0, err
	}
	splits, err := t.insertIntoParent(ancestors[:len(ancestors)-1], parentID, promote, newRight, tr)
	return splits + 1, err
}
