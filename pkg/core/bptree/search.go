package bptree

import (
	"distritree/pkg/common"
	"distritree/pkg/core/cost"
)

// Search performs an indexed point lookup. The path is the root-to-leaf
// descent, so IOCost equals Height()+1 on a non-empty tree whether or not
// the key is present.
func (t *Tree) Search(key common.KeyType) (common.LookupResult, error) {
	tr := cost.NewTracker()
	if t.root == common.NilNode {
		return common.LookupResult{Path: tr.Path()}, nil
	}

	path, err := t.findLeaf(key, tr)
	if err != nil {
		return common.LookupResult{}, err
	}
	leafID := path[len(path)-1]
	leaf, err := t.store.Get(leafID)
	if err != nil {
		return common.LookupResult{}, err
	}

	res := common.LookupResult{IOCost: tr.IOCost(), Path: tr.Path()}
	if i, found := entryIndex(leaf.Keys, key); found {
		res.Found = true
		res.Entry = common.Entry{Key: key, Value: leaf.Values[i], NodeID: leafID}
	}
	return res, nil
}
