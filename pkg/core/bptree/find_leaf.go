package bptree

import (
	"github.com/cockroachdb/errors"

	"distritree/pkg/common"
	"distritree/pkg/core/cost"
)

// findLeaf walks from the root to the leaf whose range holds key, charging
// every node to tr. It returns the full root-to-leaf path; the leaf is last.
func (t *Tree) findLeaf(key common.KeyType, tr *cost.Tracker) ([]common.NodeID, error) {
	path := make([]common.NodeID, 0, t.height+1)
	id := t.root
	for depth := 0; ; depth++ {
		n, err := t.store.Get(id)
		if err != nil {
			return nil, errors.NewAssertionErrorWithWrappedErrf(err, "descend to key %d at depth %d", key, depth)
		}
		tr.Visit(id)
		path = append(path, id)

		if n.IsLeaf() {
			if depth != t.height {
				return nil, errors.AssertionFailedf("leaf %s at depth %d, tree height %d", id, depth, t.height)
			}
			return path, nil
		}
		if len(n.Children) != len(n.Keys)+1 {
			return nil, errors.AssertionFailedf("internal %s has %d keys and %d children", id, len(n.Keys), len(n.Children))
		}
		id = n.Children[childIndex(n.Keys, key)]
	}
}
