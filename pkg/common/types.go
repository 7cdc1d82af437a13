package common

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyType is the index key. Keys are unique across the whole tree.
type KeyType int64

// ValueType is the opaque payload stored in leaves.
type ValueType []byte

// NodeID addresses a node inside a node store. Zero means "no node".
type NodeID uint64

// NilNode is the null node reference.
const NilNode NodeID = 0

const nodeIDPrefix = "node_"

// String renders the id in its wire form, e.g. "node_7".
func (id NodeID) String() string {
	return nodeIDPrefix + strconv.FormatUint(uint64(id), 10)
}

// ParseNodeID is the inverse of NodeID.String.
func ParseNodeID(s string) (NodeID, error) {
	if !strings.HasPrefix(s, nodeIDPrefix) {
		return NilNode, fmt.Errorf("node id %q: missing %q prefix", s, nodeIDPrefix)
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, nodeIDPrefix), 10, 64)
	if err != nil {
		return NilNode, fmt.Errorf("node id %q: %w", s, err)
	}
	return NodeID(n), nil
}

// MarshalText lets node ids travel as "node_<n>" strings in JSON.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *NodeID) UnmarshalText(b []byte) error {
	v, err := ParseNodeID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// StorageLocation names the leaf physically holding a value.
type StorageLocation struct {
	NodeID NodeID `json:"node_id"`
}

// Entry is a stored key/value together with the leaf that holds it.
type Entry struct {
	Key    KeyType
	Value  ValueType
	NodeID NodeID
}

// LookupResult is the shape shared by indexed and linear point lookups.
// IOCost and Path are populated even when Found is false.
type LookupResult struct {
	Found  bool
	Entry  Entry
	IOCost int
	Path   []NodeID
}

// RangeResult is the shape shared by indexed and linear range lookups.
type RangeResult struct {
	Entries []Entry
	IOCost  int
	Path    []NodeID
}
