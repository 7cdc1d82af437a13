package monitor

import (
	"sync/atomic"
)

// WorkloadStats counts operations and the simulated I/O they were charged.
type WorkloadStats struct {
	InsertCount     uint64
	OverwriteCount  uint64
	SplitCount      uint64
	IndexedSearches uint64
	ScanSearches    uint64
	HitCount        uint64
	RangeCount      uint64
	IndexedIO       uint64
	ScanIO          uint64
}

func NewWorkloadStats() *WorkloadStats {
	return &WorkloadStats{}
}

func (ws *WorkloadStats) RecordInsert(replaced bool, splits int) {
	atomic.AddUint64(&ws.InsertCount, 1)
	if replaced {
		atomic.AddUint64(&ws.OverwriteCount, 1)
	}
	atomic.AddUint64(&ws.SplitCount, uint64(splits))
}

func (ws *WorkloadStats) RecordSearch(optimized bool, ioCost int, found bool) {
	if optimized {
		atomic.AddUint64(&ws.IndexedSearches, 1)
		atomic.AddUint64(&ws.IndexedIO, uint64(ioCost))
	} else {
		atomic.AddUint64(&ws.ScanSearches, 1)
		atomic.AddUint64(&ws.ScanIO, uint64(ioCost))
	}
	if found {
		atomic.AddUint64(&ws.HitCount, 1)
	}
}

func (ws *WorkloadStats) RecordRange(optimized bool, ioCost int) {
	atomic.AddUint64(&ws.RangeCount, 1)
	if optimized {
		atomic.AddUint64(&ws.IndexedIO, uint64(ioCost))
	} else {
		atomic.AddUint64(&ws.ScanIO, uint64(ioCost))
	}
}

// AvgIndexedIO is the mean io_cost of indexed point lookups.
func (ws *WorkloadStats) AvgIndexedIO() float64 {
	return avg(atomic.LoadUint64(&ws.IndexedIO), atomic.LoadUint64(&ws.IndexedSearches))
}

// AvgScanIO is the mean io_cost of linear point lookups.
func (ws *WorkloadStats) AvgScanIO() float64 {
	return avg(atomic.LoadUint64(&ws.ScanIO), atomic.LoadUint64(&ws.ScanSearches))
}

// GetScanToIndexRatio is how many times more pages a linear lookup touches on
// average than an indexed one.
func (ws *WorkloadStats) GetScanToIndexRatio() float64 {
	idx, scan := ws.AvgIndexedIO(), ws.AvgScanIO()
	if idx == 0 {
		if scan > 0 {
			return 100.0
		}
		return 0.0
	}
	return scan / idx
}

// Reset zeroes every counter.
func (ws *WorkloadStats) Reset() {
	for _, p := range []*uint64{
		&ws.InsertCount, &ws.OverwriteCount, &ws.SplitCount,
		&ws.IndexedSearches, &ws.ScanSearches, &ws.HitCount,
		&ws.RangeCount, &ws.IndexedIO, &ws.ScanIO,
	} {
		atomic.StoreUint64(p, 0)
	}
}

// Snapshot copies the counters into a plain map for JSON output.
func (ws *WorkloadStats) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"inserts":             atomic.LoadUint64(&ws.InsertCount),
		"overwrites":          atomic.LoadUint64(&ws.OverwriteCount),
		"splits":              atomic.LoadUint64(&ws.SplitCount),
		"indexed_searches":    atomic.LoadUint64(&ws.IndexedSearches),
		"scan_searches":       atomic.LoadUint64(&ws.ScanSearches),
		"hits":                atomic.LoadUint64(&ws.HitCount),
		"ranges":              atomic.LoadUint64(&ws.RangeCount),
		"avg_indexed_io":      ws.AvgIndexedIO(),
		"avg_scan_io":         ws.AvgScanIO(),
		"scan_to_index_ratio": ws.GetScanToIndexRatio(),
	}
}

func avg(total, n uint64) float64 {
	if n == 0 {
		return 0
	}
	return float64(total) / float64(n)
}
