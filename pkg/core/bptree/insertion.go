package bptree

import (
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"distritree/pkg/common"
	"distritree/pkg/core/cost"
	"distritree/pkg/core/nodestore"
)

// InsertResult describes where an insert landed and what it cost.
type InsertResult struct {
	Location common.StorageLocation
	// Replaced is true when the key already existed and only its value changed.
	Replaced bool
	// Splits counts the nodes split by this insert, leaf included.
	Splits int
	IOCost int
	Path   []common.NodeID
}

// Insert stores value under key. An existing key has its value overwritten in
// place without any structural change.
func (t *Tree) Insert(key common.KeyType, value common.ValueType) (InsertResult, error) {
	if len(value) == 0 {
		return InsertResult{}, errors.Mark(errors.Newf("insert key %d: empty value", key), ErrInvalidInput)
	}
	value = slices.Clone(value)
	tr := cost.NewTracker()

	if t.root == common.NilNode {
		id := t.store.Allocate(nodestore.KindLeaf)
		if err := t.store.Mutate(id, func(n *nodestore.Node) {
			n.Keys = append(n.Keys, key)
			n.Values = append(n.Values, value)
		}); err != nil {
			return InsertResult{}, err
		}
		tr.Visit(id)
		t.root, t.head, t.height = id, id, 0
		t.size = 1
		t.version++
		t.logger.Debug("root leaf allocated", zap.Stringer("node", id), zap.Int64("key", int64(key)))
		return t.insertResult(id, false, 0, tr), nil
	}

	path, err := t.findLeaf(key, tr)
	if err != nil {
		return InsertResult{}, err
	}
	leafID := path[len(path)-1]

	var replaced, overflow bool
	if err := t.store.Mutate(leafID, func(n *nodestore.Node) {
		i, found := entryIndex(n.Keys, key)
		if found {
			n.Values[i] = value
			replaced = true
			return
		}
		n.Keys = slices.Insert(n.Keys, i, key)
		n.Values = slices.Insert(n.Values, i, value)
		overflow = len(n.Keys) > t.maxLeafEntries()
	}); err != nil {
		return InsertResult{}, err
	}
	t.version++
	if replaced {
		return t.insertResult(leafID, true, 0, tr), nil
	}
	t.size++
	if !overflow {
		return t.insertResult(leafID, false, 0, tr), nil
	}

	rightID, sep, err := t.splitLeaf(leafID, tr)
	if err != nil {
		return InsertResult{}, err
	}
	location := leafID
	if key >= sep {
		location = rightID
	}
	splits, err := t.insertIntoParent(path[:len(path)-1], leafID, sep, rightID, tr)
	if err != nil {
		return InsertResult{}, err
	}
	return t.insertResult(location, false, splits+1, tr), nil
}

func (t *Tree) insertResult(leaf common.NodeID, replaced bool, splits int, tr *cost.Tracker) InsertResult {
	return InsertResult{
		Location: common.StorageLocation{NodeID: leaf},
		Replaced: replaced,
		Splits:   splits,
		IOCost:   tr.IOCost(),
		Path:     tr.Path(),
	}
}
