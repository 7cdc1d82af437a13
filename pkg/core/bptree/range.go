package bptree

import (
	"github.com/cockroachdb/errors"

	"distritree/pkg/common"
	"distritree/pkg/core/cost"
)

// Range returns every entry with start <= key <= end in ascending order. It
// descends once to the leaf that would hold start and then follows the leaf
// chain until a key beyond end shows up.
func (t *Tree) Range(start, end common.KeyType) (common.RangeResult, error) {
	if start > end {
		return common.RangeResult{}, errors.Mark(errors.Newf("range start %d after end %d", start, end), ErrInvalidInput)
	}
	tr := cost.NewTracker()
	res := common.RangeResult{Entries: []common.Entry{}}
	if t.root == common.NilNode {
		res.Path = tr.Path()
		return res, nil
	}

	path, err := t.findLeaf(start, tr)
	if err != nil {
		return common.RangeResult{}, err
	}

	id := path[len(path)-1]
	for {
		leaf, err := t.store.Get(id)
		if err != nil {
			return common.RangeResult{}, err
		}
		for i, k := range leaf.Keys {
			if k < start {
				continue
			}
			if k > end {
				return t.rangeResult(res.Entries, tr), nil
			}
			res.Entries = append(res.Entries, common.Entry{Key: k, Value: leaf.Values[i], NodeID: id})
		}
		if leaf.Next == common.NilNode {
			return t.rangeResult(res.Entries, tr), nil
		}
		id = leaf.Next
		tr.Visit(id)
	}
}

func (t *Tree) rangeResult(entries []common.Entry, tr *cost.Tracker) common.RangeResult {
	return common.RangeResult{Entries: entries, IOCost: tr.IOCost(), Path: tr.Path()}
}
