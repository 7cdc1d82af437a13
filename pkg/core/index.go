package core

import (
	"distritree/pkg/common"
	"distritree/pkg/core/serialize"
)

// Labels reported next to every lookup so clients can tell the two read
// paths apart.
const (
	MethodIndexed = "B+ Tree Optimized"
	MethodScan    = "Linear Scan (Unoptimized)"
)

// Index is what the transports need from the engine.
type Index interface {
	Insert(key common.KeyType, val common.ValueType) (InsertOutcome, error)
	Search(key common.KeyType, optimized bool) (SearchOutcome, error)
	Range(start, end common.KeyType, optimized bool) (RangeOutcome, error)
	Snapshot() (*serialize.Node, error)
	Reset() error
	Stats() map[string]interface{}
}

// InsertOutcome is everything an insert reports back to the caller.
type InsertOutcome struct {
	Location common.StorageLocation
	RecordID string
	Shard    int // archive shard holding the record
	Replaced bool
	Splits   int
	IOCost   int
	Path     []common.NodeID
	Tree     *serialize.Node
}

// SearchOutcome is a point lookup tagged with the read path that served it.
type SearchOutcome struct {
	common.LookupResult
	Method string
}

// RangeOutcome is a range lookup tagged with the read path that served it.
type RangeOutcome struct {
	common.RangeResult
	Method string
}

func method(optimized bool) string {
	if optimized {
		return MethodIndexed
	}
	return MethodScan
}
