package bptree

import (
	"distritree/pkg/common"
)

// Leaves returns the leaf ids in chain order.
func (t *Tree) Leaves() ([]common.NodeID, error) {
	var out []common.NodeID
	for id := t.head; id != common.NilNode; {
		n, err := t.store.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
		id = n.Next
	}
	return out, nil
}
