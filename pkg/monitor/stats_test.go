package monitor

import "testing"

func TestRecordSearchSplitsByMode(t *testing.T) {
	ws := NewWorkloadStats()
	ws.RecordSearch(true, 2, true)
	ws.RecordSearch(true, 2, false)
	ws.RecordSearch(false, 6, true)

	if got := ws.AvgIndexedIO(); got != 2 {
		t.Errorf("avg indexed io: got %v, want 2", got)
	}
	if got := ws.AvgScanIO(); got != 6 {
		t.Errorf("avg scan io: got %v, want 6", got)
	}
	if got := ws.GetScanToIndexRatio(); got != 3 {
		t.Errorf("ratio: got %v, want 3", got)
	}
	if ws.HitCount != 2 {
		t.Errorf("hits: got %d, want 2", ws.HitCount)
	}
}

func TestRatioWithoutIndexedSearches(t *testing.T) {
	ws := NewWorkloadStats()
	if got := ws.GetScanToIndexRatio(); got != 0 {
		t.Errorf("empty ratio: got %v", got)
	}
	ws.RecordSearch(false, 3, false)
	if got := ws.GetScanToIndexRatio(); got != 100 {
		t.Errorf("scan-only ratio: got %v", got)
	}
}

func TestRecordInsertAndReset(t *testing.T) {
	ws := NewWorkloadStats()
	ws.RecordInsert(false, 2)
	ws.RecordInsert(true, 0)
	ws.RecordRange(true, 4)

	snap := ws.Snapshot()
	if snap["inserts"].(uint64) != 2 || snap["overwrites"].(uint64) != 1 || snap["splits"].(uint64) != 2 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}
	if snap["ranges"].(uint64) != 1 {
		t.Fatalf("ranges: %v", snap["ranges"])
	}

	ws.Reset()
	if ws.InsertCount != 0 || ws.IndexedIO != 0 {
		t.Fatalf("reset left counters: %+v", ws)
	}
}
