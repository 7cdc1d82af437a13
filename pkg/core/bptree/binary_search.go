package bptree

import (
	"slices"
	"sort"

	"distritree/pkg/common"
)

// childIndex picks the child of an internal node whose range holds key: the
// child to the left of the first separator strictly greater than key, or the
// last child when there is none.
func childIndex(keys []common.KeyType, key common.KeyType) int {
	return sort.Search(len(keys), func(i int) bool { return keys[i] > key })
}

// entryIndex returns the position of key in a leaf, or the position it would
// be inserted at, and whether it is already present.
func entryIndex(keys []common.KeyType, key common.KeyType) (int, bool) {
	return slices.BinarySearch(keys, key)
}
