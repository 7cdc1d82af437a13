package core

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"

	"distritree/pkg/common"
	"distritree/pkg/config"
	"distritree/pkg/core/bptree"
	"distritree/pkg/core/nodestore"
	"distritree/pkg/core/scan"
	"distritree/pkg/core/serialize"
	"distritree/pkg/logging"
	"distritree/pkg/monitor"
	"distritree/pkg/storage"
)

// ErrInvalidInput marks every error caused by a bad request.
var ErrInvalidInput = bptree.ErrInvalidInput

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("index closed")

// Event is published after every successful mutation.
type Event struct {
	Kind     string          `json:"event"`         // "insert" or "reset"
	Key      *common.KeyType `json:"key,omitempty"` // nil for reset
	Location common.NodeID   `json:"node_id,omitempty"`
	Version  uint64          `json:"version"`
	Tree     *serialize.Node `json:"tree_structure"`
}

// persistOp is a unit of work for the archive goroutine. Exactly one of rec,
// truncate or flush is set; truncate and flush carry a reply channel so they
// take effect in order with the records queued before them.
type persistOp struct {
	rec      *storage.Record
	truncate chan error
	flush    chan error
}

// TreeIndex is the concurrency-safe facade over one B+Tree. Inserts and
// resets take the write lock; every read takes the read lock.
type TreeIndex struct {
	mu    sync.RWMutex
	tree  *bptree.Tree
	gen   uint64 // bumped on Reset so cached snapshots never outlive their tree
	order int

	snapshots *ristretto.Cache[uint64, *serialize.Node]
	archive   storage.Archive
	stats     *monitor.WorkloadStats
	base      *zap.Logger // handed to every new tree
	logger    *zap.Logger

	subMu       sync.RWMutex
	subscribers []func(Event)

	writeCh   chan persistOp
	closeCh   chan struct{}
	doneCh    chan struct{} // closed when backgroundPersist returns
	closeOnce sync.Once
	wg        sync.WaitGroup
	batchSize int
}

// NewTreeIndex builds an empty index. A nil archive disables persistence.
func NewTreeIndex(cfg *config.Config, archive storage.Archive, logger *zap.Logger) (*TreeIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if archive == nil {
		archive = storage.Discard{}
	}

	tree, err := bptree.New(nodestore.New(), cfg.Tree.Order, logger)
	if err != nil {
		return nil, err
	}

	cacheSize := int64(cfg.Tree.SnapshotCacheSize)
	if cacheSize <= 0 {
		cacheSize = 64
	}
	snapshots, err := ristretto.NewCache(&ristretto.Config[uint64, *serialize.Node]{
		NumCounters:        cacheSize * 10,
		MaxCost:            cacheSize,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "snapshot cache")
	}

	batchSize := cfg.Storage.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	bufferSize := cfg.Storage.BufferSize
	if bufferSize <= 0 {
		bufferSize = 5000
	}

	ti := &TreeIndex{
		tree:      tree,
		order:     cfg.Tree.Order,
		snapshots: snapshots,
		archive:   archive,
		stats:     monitor.NewWorkloadStats(),
		base:      logger,
		logger:    logging.Named(logger, "index"),
		writeCh:   make(chan persistOp, bufferSize),
		closeCh:   make(chan struct{}),
		doneCh:    make(chan struct{}),
		batchSize: batchSize,
	}

	ti.wg.Add(1)
	go ti.backgroundPersist()

	return ti, nil
}

// Subscribe registers fn to receive every mutation event. fn runs on the
// mutating goroutine after the lock is released and must not block.
func (ti *TreeIndex) Subscribe(fn func(Event)) {
	ti.subMu.Lock()
	defer ti.subMu.Unlock()
	ti.subscribers = append(ti.subscribers, fn)
}

func (ti *TreeIndex) publish(ev Event) {
	ti.subMu.RLock()
	defer ti.subMu.RUnlock()
	for _, fn := range ti.subscribers {
		fn(ev)
	}
}

func (ti *TreeIndex) closed() bool {
	select {
	case <-ti.closeCh:
		return true
	default:
		return false
	}
}

// Insert adds or overwrites key and returns the leaf now holding it together
// with the tree after the insert.
func (ti *TreeIndex) Insert(key common.KeyType, val common.ValueType) (InsertOutcome, error) {
	if ti.closed() {
		return InsertOutcome{}, ErrClosed
	}

	ti.mu.Lock()
	res, err := ti.tree.Insert(key, val)
	if err != nil {
		ti.mu.Unlock()
		return InsertOutcome{}, err
	}
	// Queued under the lock so the archive sees inserts and truncates in
	// the same order as the tree.
	rec := storage.NewRecord(key, val, res.Location.NodeID)
	rec.Shard = storage.ShardOf(ti.archive, key)
	ti.enqueue(persistOp{rec: &rec})
	snap, err := ti.snapshotLocked()
	version := ti.tree.Version()
	ti.mu.Unlock()
	if err != nil {
		return InsertOutcome{}, err
	}

	ti.stats.RecordInsert(res.Replaced, res.Splits)

	if res.Splits > 0 {
		ti.logger.Debug("insert split nodes",
			zap.Int64("key", int64(key)),
			zap.Int("splits", res.Splits),
			zap.Stringer("leaf", res.Location.NodeID))
	}

	ti.publish(Event{Kind: "insert", Key: &key, Location: res.Location.NodeID, Version: version, Tree: snap})

	return InsertOutcome{
		Location: res.Location,
		RecordID: rec.RecordID,
		Shard:    rec.Shard,
		Replaced: res.Replaced,
		Splits:   res.Splits,
		IOCost:   res.IOCost,
		Path:     res.Path,
		Tree:     snap,
	}, nil
}

func (ti *TreeIndex) enqueue(op persistOp) bool {
	select {
	case ti.writeCh <- op:
		return true
	case <-ti.closeCh:
		return false
	}
}

// Search looks key up through the index when optimized is set and by walking
// the leaf chain otherwise.
func (ti *TreeIndex) Search(key common.KeyType, optimized bool) (SearchOutcome, error) {
	ti.mu.RLock()
	var (
		res common.LookupResult
		err error
	)
	if optimized {
		res, err = ti.tree.Search(key)
	} else {
		res, err = scan.New(ti.tree.Store(), ti.tree.Head()).Search(key)
	}
	ti.mu.RUnlock()
	if err != nil {
		return SearchOutcome{}, err
	}

	ti.stats.RecordSearch(optimized, res.IOCost, res.Found)
	return SearchOutcome{LookupResult: res, Method: method(optimized)}, nil
}

// Range returns the entries with start <= key <= end in ascending order.
func (ti *TreeIndex) Range(start, end common.KeyType, optimized bool) (RangeOutcome, error) {
	if start > end {
		return RangeOutcome{}, errors.Mark(errors.Newf("range start %d after end %d", start, end), ErrInvalidInput)
	}

	ti.mu.RLock()
	var (
		res common.RangeResult
		err error
	)
	if optimized {
		res, err = ti.tree.Range(start, end)
	} else {
		res, err = scan.New(ti.tree.Store(), ti.tree.Head()).Range(start, end)
	}
	ti.mu.RUnlock()
	if err != nil {
		return RangeOutcome{}, err
	}

	ti.stats.RecordRange(optimized, res.IOCost)
	return RangeOutcome{RangeResult: res, Method: method(optimized)}, nil
}

// Snapshot returns the serialized tree. The result is shared between callers
// and must be treated as read-only.
func (ti *TreeIndex) Snapshot() (*serialize.Node, error) {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return ti.snapshotLocked()
}

func (ti *TreeIndex) snapshotKey() uint64 {
	return ti.gen<<40 | ti.tree.Version()
}

func (ti *TreeIndex) snapshotLocked() (*serialize.Node, error) {
	key := ti.snapshotKey()
	if snap, ok := ti.snapshots.Get(key); ok {
		return snap, nil
	}
	snap, err := serialize.Tree(ti.tree.Store(), ti.tree.Root())
	if err != nil {
		return nil, err
	}
	ti.snapshots.Set(key, snap, 1)
	return snap, nil
}

// Reset replaces the tree with an empty one and truncates the archive once
// every insert queued before the reset has been written.
func (ti *TreeIndex) Reset() error {
	if ti.closed() {
		return ErrClosed
	}

	ti.mu.Lock()
	tree, err := bptree.New(nodestore.New(), ti.order, ti.base)
	if err != nil {
		ti.mu.Unlock()
		return err
	}
	ti.tree = tree
	ti.gen++
	ti.snapshots.Clear()
	reply := make(chan error, 1)
	queued := ti.enqueue(persistOp{truncate: reply})
	ti.mu.Unlock()

	if !queued {
		return ErrClosed
	}
	if err := ti.await(reply); err != nil {
		return errors.Wrap(err, "truncate archive")
	}

	ti.stats.Reset()
	ti.logger.Info("index reset")
	ti.publish(Event{Kind: "reset", Tree: serialize.Empty()})
	return nil
}

// Flush blocks until every queued insert has reached the archive.
func (ti *TreeIndex) Flush() error {
	reply := make(chan error, 1)
	if !ti.enqueue(persistOp{flush: reply}) {
		return ErrClosed
	}
	return ti.await(reply)
}

// await waits for the archive goroutine to answer an op, which it may never
// do if it exits first.
func (ti *TreeIndex) await(reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-ti.doneCh:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// Records returns the archived insert history after flushing pending writes.
func (ti *TreeIndex) Records() ([]storage.Record, error) {
	if err := ti.Flush(); err != nil {
		return nil, err
	}
	return ti.archive.LoadAll()
}

// Validate checks the structural invariants of the current tree.
func (ti *TreeIndex) Validate() error {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return ti.tree.Validate()
}

func (ti *TreeIndex) Stats() map[string]interface{} {
	ti.mu.RLock()
	snap, err := ti.snapshotLocked()
	version := ti.tree.Version()
	ti.mu.RUnlock()

	shape := serialize.Shape(nil)
	if err == nil {
		shape = serialize.Shape(snap)
	}

	out := map[string]interface{}{
		"order":          ti.order,
		"height":         shape.Height,
		"nodes":          shape.Nodes,
		"internal_nodes": shape.Internals,
		"leaf_nodes":     shape.Leaves,
		"keys":           shape.Keys,
		"version":        version,
		"pending_writes": len(ti.writeCh),
		"mode":           "B+ Tree",
	}
	for k, v := range ti.stats.Snapshot() {
		out[k] = v
	}
	return out
}

// Workload exposes the raw counters.
func (ti *TreeIndex) Workload() *monitor.WorkloadStats { return ti.stats }

func (ti *TreeIndex) backgroundPersist() {
	defer ti.wg.Done()
	defer close(ti.doneCh)
	buffer := make([]storage.Record, 0, ti.batchSize)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		err := ti.archive.BatchWrite(buffer)
		if err != nil {
			ti.logger.Error("batch write failed", zap.Int("records", len(buffer)), zap.Error(err))
		}
		buffer = buffer[:0]
		return err
	}

	handle := func(op persistOp) {
		switch {
		case op.rec != nil:
			buffer = append(buffer, *op.rec)
			if len(buffer) >= ti.batchSize {
				flush()
			}
		case op.truncate != nil:
			flush()
			op.truncate <- ti.archive.Truncate()
		case op.flush != nil:
			op.flush <- flush()
		}
	}

	for {
		select {
		case op := <-ti.writeCh:
			handle(op)
		case <-ticker.C:
			flush()
		case <-ti.closeCh:
			for {
				select {
				case op := <-ti.writeCh:
					handle(op)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close drains pending archive writes and closes the archive.
func (ti *TreeIndex) Close() error {
	var err error
	ti.closeOnce.Do(func() {
		close(ti.closeCh)
		ti.wg.Wait()
		ti.snapshots.Close()
		err = ti.archive.Close()
	})
	return err
}
