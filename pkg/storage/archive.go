package storage

import (
	"time"

	"github.com/google/uuid"

	"distritree/pkg/common"
)

// Record is one accepted insert as it is archived. Overwrites produce a new
// record; the archive is an append-only history, not a copy of the tree.
type Record struct {
	RecordID  string           `json:"record_id"`
	Key       common.KeyType   `json:"key"`
	Value     common.ValueType `json:"value"`
	NodeID    common.NodeID    `json:"node_id"`
	Timestamp time.Time        `json:"timestamp"`
	// Shard is filled in by ShardedArchive; single archives leave it 0.
	Shard     int              `json:"shard"`
}

// NewRecord stamps an insert with a fresh record id and the current time.
func NewRecord(key common.KeyType, val common.ValueType, node common.NodeID) Record {
	return Record{
		RecordID:  uuid.NewString(),
		Key:       key,
		Value:     val,
		NodeID:    node,
		Timestamp: time.Now().UTC(),
	}
}

// Archive persists the insert history. Implementations are safe for
// concurrent use.
type Archive interface {
	Write(rec Record) error
	BatchWrite(records []Record) error
	// LoadAll returns every record in write order.
	LoadAll() ([]Record, error)
	Count() (int, error)
	Truncate() error
	Close() error
}

// Discard is the archive used when persistence is disabled.
type Discard struct{}

func (Discard) Write(Record) error { return nil }
func (Discard) BatchWrite([]Record) error { return nil }
func (Discard) LoadAll() ([]Record, error) { return []Record{}, nil }
func (Discard) Count() (int, error) { return 0, nil }
func (Discard) Truncate() error { return nil }
func (Discard) Close() error { return nil }
